// Package manifest is the SQLite-backed catalog of every partition file the
// lake has written: its identity, time range, size, checksum, and version.
// It is the source of truth the reader prunes against and the writer
// upserts into after every successful partition write.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marketlake/lake/layout"
)

// Entry is one row of the manifest: everything known about a stored
// partition file.
type Entry struct {
	ID           int64
	Exchange     string
	Market       string
	Symbol       string
	Type         string
	Period       string
	Path         string
	TimeFrom     int64
	TimeTo       int64
	RowCount     int64
	FileSize     int64
	Checksum     string
	Version      string
	CreatedAt    time.Time
	LastModified time.Time
}

// Filter selects a subset of entries. Zero-value fields are not applied;
// use pointers/bools to express "match this field" vs "don't care".
type Filter struct {
	Exchange  string
	Market    string
	Symbol    string
	Type      string
	Period    string
	HasPeriod bool // when true, Period is applied even if empty

	// Time-range overlap: an entry matches if [TimeFrom,TimeTo] intersects
	// [RangeFrom,RangeTo]. Callers wanting an open upper bound should pass
	// math.MaxInt64.
	RangeFrom    int64
	RangeTo      int64
	UseTimeRange bool
}

// Manifest wraps the SQLite catalog. Safe for concurrent use: writes are
// serialized with an internal mutex plus SQLite's own BEGIN IMMEDIATE
// transaction; reads do not block each other (WAL mode).
type Manifest struct {
	db   *sql.DB
	path string
	mu   sync.Mutex // serializes writer transactions in-process
}

// Open opens (creating if necessary) the manifest database at path and
// ensures the schema exists.
func Open(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	db.SetMaxOpenConns(8)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply manifest schema: %w", err)
	}
	return &Manifest{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Upsert inserts or replaces the entry keyed by its Path. Atomic: either
// the whole row lands or none of it does. Exchange, market and symbol are
// normalized (layout.Normalize) before storing, as every lookup normalizes
// its filter. CreatedAt is preserved across updates; LastModified always
// advances to now.
func (m *Manifest) Upsert(ctx context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin immediate: %w", err)
	}
	defer tx.Rollback()

	e.Exchange = layout.Normalize(e.Exchange)
	e.Market = layout.Normalize(e.Market)
	e.Symbol = layout.Normalize(e.Symbol)

	now := time.Now().UTC()
	createdAt := now
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (exchange, market, symbol, type, period, path, time_from, time_to,
		                      row_count, file_size, checksum, version, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			exchange=excluded.exchange, market=excluded.market, symbol=excluded.symbol,
			type=excluded.type, period=excluded.period,
			time_from=excluded.time_from, time_to=excluded.time_to,
			row_count=excluded.row_count, file_size=excluded.file_size,
			checksum=excluded.checksum, version=excluded.version,
			last_modified=excluded.last_modified
	`, e.Exchange, e.Market, e.Symbol, e.Type, e.Period, e.Path, e.TimeFrom, e.TimeTo,
		e.RowCount, e.FileSize, e.Checksum, e.Version, createdAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("upsert entry %s: %w", e.Path, err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit upsert: %w", err)
	}

	return m.FindByPath(ctx, e.Path)
}

// FindByPath returns the entry for an exact path, or sql.ErrNoRows-wrapped
// error if it doesn't exist.
func (m *Manifest) FindByPath(ctx context.Context, path string) (Entry, error) {
	row := m.db.QueryRowContext(ctx, selectColumns+` WHERE path = ?`, path)
	return scanEntry(row)
}

// FindByID returns the entry with the given primary key, or an
// sql.ErrNoRows-wrapped error if it doesn't exist. Used by the REST
// adapter, which addresses datasets by manifest id rather than path.
func (m *Manifest) FindByID(ctx context.Context, id int64) (Entry, error) {
	row := m.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return scanEntry(row)
}

// Find returns every entry matching filter, ordered by time_from ascending.
func (m *Manifest) Find(ctx context.Context, f Filter) ([]Entry, error) {
	where, args := buildWhere(f)
	query := selectColumns + where + ` ORDER BY time_from ASC`
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteBy removes every entry matching filter and returns the removed set.
func (m *Manifest) DeleteBy(ctx context.Context, f Filter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed, err := m.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin immediate: %w", err)
	}
	defer tx.Rollback()

	where, args := buildWhere(f)
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`+where, args...); err != nil {
		return nil, fmt.Errorf("delete_by: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete_by: %w", err)
	}
	return removed, nil
}

// DeletePath removes the single entry for path, if any. Used by the writer
// to roll back a manifest row for one partition without disturbing sibling
// partitions that share the same identity/type/period.
func (m *Manifest) DeletePath(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete_path %s: %w", path, err)
	}
	return tx.Commit()
}

// LatestVersion returns the entry with the maximum version (lexicographic
// ordering) for a feature_set under the given identity, ties broken by
// created_at desc.
func (m *Manifest) LatestVersion(ctx context.Context, featureSet string, id layout.Identity) (Entry, error) {
	id = layout.NormalizeIdentity(id)
	row := m.db.QueryRowContext(ctx, selectColumns+`
		WHERE exchange = ? AND market = ? AND symbol = ? AND type = ?
		ORDER BY version DESC, created_at DESC
		LIMIT 1
	`, id.Exchange, id.Market, id.Symbol, featureSet)
	return scanEntry(row)
}

// DistinctTypes returns every distinct "type" value in the manifest (e.g.
// "raw", "funding", plus any feature_set names uploaded via the feature
// store), sorted ascending.
func (m *Manifest) DistinctTypes(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT DISTINCT type FROM entries ORDER BY type ASC`)
	if err != nil {
		return nil, fmt.Errorf("distinct types: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReconcileReport is the result of a reconcile pass.
type ReconcileReport struct {
	Orphans   []string // files on disk with no manifest row
	DeadLinks []string // manifest rows whose file is missing
}

// Reconcile walks the filesystem under root and compares it against the
// manifest. It never mutates either side; the caller decides remediation.
func (m *Manifest) Reconcile(ctx context.Context, root string) (ReconcileReport, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT path FROM entries`)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile: list manifest paths: %w", err)
	}
	manifestPaths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return ReconcileReport{}, err
		}
		manifestPaths[p] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ReconcileReport{}, err
	}

	diskPaths := make(map[string]bool)
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".parquet") {
			return nil
		}
		diskPaths[p] = true
		return nil
	})
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile: walk %s: %w", root, err)
	}

	var report ReconcileReport
	for p := range diskPaths {
		if !manifestPaths[p] {
			report.Orphans = append(report.Orphans, p)
		}
	}
	for p := range manifestPaths {
		if !diskPaths[p] {
			report.DeadLinks = append(report.DeadLinks, p)
		}
	}
	return report, nil
}

const selectColumns = `
	SELECT id, exchange, market, symbol, type, period, path, time_from, time_to,
	       row_count, file_size, checksum, version, created_at, last_modified
	FROM entries
`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row *sql.Row) (Entry, error) {
	return scanEntryGeneric(row)
}

func scanEntryRows(rows *sql.Rows) (Entry, error) {
	return scanEntryGeneric(rows)
}

func scanEntryGeneric(s scanner) (Entry, error) {
	var e Entry
	var period, version sql.NullString
	var createdAt, lastModified string
	err := s.Scan(&e.ID, &e.Exchange, &e.Market, &e.Symbol, &e.Type, &period, &e.Path,
		&e.TimeFrom, &e.TimeTo, &e.RowCount, &e.FileSize, &e.Checksum, &version,
		&createdAt, &lastModified)
	if err != nil {
		return Entry{}, err
	}
	e.Period = period.String
	e.Version = version.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.LastModified, _ = time.Parse(time.RFC3339Nano, lastModified)
	return e, nil
}

func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(col, val string) {
		if val != "" {
			clauses = append(clauses, col+" = ?")
			args = append(args, layout.Normalize(val))
		}
	}
	add("exchange", f.Exchange)
	add("market", f.Market)
	add("symbol", f.Symbol)
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.HasPeriod {
		clauses = append(clauses, "period = ?")
		args = append(args, f.Period)
	}
	if f.UseTimeRange {
		clauses = append(clauses, "time_from <= ? AND time_to >= ?")
		args = append(args, f.RangeTo, f.RangeFrom)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
