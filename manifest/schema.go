package manifest

// schema is applied once at Open time. It is idempotent (CREATE IF NOT
// EXISTS) so repeated opens of the same manifest.db are safe.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    exchange        TEXT NOT NULL,
    market          TEXT NOT NULL,
    symbol          TEXT NOT NULL,
    type            TEXT NOT NULL,
    period          TEXT,
    path            TEXT NOT NULL UNIQUE,
    time_from       INTEGER NOT NULL,
    time_to         INTEGER NOT NULL,
    row_count       INTEGER NOT NULL,
    file_size       INTEGER NOT NULL,
    checksum        TEXT NOT NULL,
    version         TEXT,
    created_at      TEXT NOT NULL,
    last_modified   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_identity
    ON entries (exchange, symbol, market, type, period);

CREATE INDEX IF NOT EXISTS idx_entries_path
    ON entries (path);
`
