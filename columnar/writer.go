// Package columnar implements the partitioned Parquet store: atomic
// per-day-partition writes with merge/dedup/sort on ts, and a manifest-
// pruned range reader. The writer builds every partition path through
// layout.Path; the reader does not build paths, it opens the paths recorded
// in the manifest.
package columnar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
	"github.com/marketlake/lake/observability"
)

// CacheInvalidator is the query-cache side of a write: told which
// identity/data-type/period combination just changed on disk so it can
// evict any range read it cached for that combination. Defined here
// (rather than depending on resultcache directly) because resultcache
// itself depends on columnar for the Point type it caches.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id layout.Identity, dataType, period string) error
}

// WriteResult describes one day-partition written by a single Write call.
type WriteResult struct {
	Path      string
	Day       time.Time
	RowCount  int
	TimeFrom  int64
	TimeTo    int64
	Checksum  string
	FileSize  int64
}

// Writer performs atomic, merge-on-write partition writes and keeps the
// manifest in step with the filesystem.
type Writer struct {
	root     string
	manifest *manifest.Manifest
	locks    *partitionLock
	log      zerolog.Logger

	// Alerter, if set, pages when the same partition gets quarantined
	// more than once — a single quarantine is routine (one bad write);
	// a repeat points at a systemic problem.
	Alerter *observability.PagerDutyClient

	// Metrics, if set, records merge duration, rows-per-write, and
	// failure counts for every partition write.
	Metrics *observability.Metrics

	// Cache, if set, is told to evict stale range reads after every
	// successful write or delete — the query result cache consults the
	// reader before Write/Delete's effects are otherwise visible to it.
	Cache CacheInvalidator

	qmu            sync.Mutex
	quarantineHits map[string]int
}

// NewWriter constructs a writer rooted at root, upserting into m.
func NewWriter(root string, m *manifest.Manifest, log zerolog.Logger) *Writer {
	return &Writer{
		root:           root,
		manifest:       m,
		locks:          newPartitionLock(),
		log:            log.With().Str("component", "columnar.writer").Logger(),
		quarantineHits: make(map[string]int),
	}
}

// Write partitions batch by UTC day and performs one merge-write per
// day-partition, returning one WriteResult per partition touched.
func (w *Writer) Write(ctx context.Context, batch []Point, id layout.Identity, dataType, period string) ([]WriteResult, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	byDay := make(map[time.Time][]Point)
	for _, p := range batch {
		day := layout.DayBucket(p.Ts)
		byDay[day] = append(byDay[day], p)
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	results := make([]WriteResult, 0, len(days))
	for _, day := range days {
		res, err := w.writeDayPartition(ctx, id, dataType, period, day, byDay[day])
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (w *Writer) writeDayPartition(ctx context.Context, id layout.Identity, dataType, period string, day time.Time, points []Point) (WriteResult, error) {
	path := layout.Path(w.root, id, dataType, period, day)
	unlock := w.locks.Lock(path)
	defer unlock()

	started := time.Now()

	w.cleanStaleTemp(path)

	existing, err := readPartitionFile(path)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("existing partition unreadable, quarantining")
		if qerr := quarantine(path); qerr != nil && !os.IsNotExist(qerr) {
			w.recordFailure("corrupt_existing")
			return WriteResult{}, errs.Wrap(errs.ErrCorruptExisting, "quarantine %s: %v", path, qerr)
		}
		existing = nil
		w.recordQuarantineKind(path, "corrupt_existing")
	}

	merged, err := mergeRows(existing, points)
	if err != nil {
		w.recordFailure("schema_mismatch")
		return WriteResult{}, errs.Wrap(errs.ErrSchemaMismatch, "merge partition %s: %v", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		werr := classifyIOErr(err, path)
		w.recordFailure(failureKind(werr))
		return WriteResult{}, werr
	}

	checksum, size, err := writeRowsAtomic(path, merged)
	if err != nil {
		werr := classifyIOErr(err, path)
		w.recordFailure(failureKind(werr))
		return WriteResult{}, werr
	}

	timeFrom, timeTo := merged[0].Ts, merged[len(merged)-1].Ts
	entry := manifest.Entry{
		Exchange: id.Exchange, Market: id.Market, Symbol: id.Symbol,
		Type: dataType, Period: period, Path: path,
		TimeFrom: timeFrom, TimeTo: timeTo,
		RowCount: int64(len(merged)), FileSize: size, Checksum: checksum,
	}
	if _, err := w.manifest.Upsert(ctx, entry); err != nil {
		return WriteResult{}, fmt.Errorf("upsert manifest for %s: %w", path, err)
	}

	if err := w.verifyIntegrity(path, len(merged)); err != nil {
		if derr := w.manifest.DeletePath(ctx, path); derr != nil {
			w.log.Error().Err(derr).Str("path", path).Msg("failed to roll back manifest row after integrity failure")
		}
		os.Remove(path)
		w.recordQuarantineKind(path, "data_integrity")
		w.recordFailure("data_integrity")
		return WriteResult{}, errs.Wrap(errs.ErrDataIntegrity, "post-write check failed for %s: %v", path, err)
	}

	if w.Metrics != nil {
		w.Metrics.WriterMergeDuration.WithLabelValues(dataType).Observe(time.Since(started).Seconds())
		w.Metrics.WriterRowsPerWrite.WithLabelValues(dataType).Observe(float64(len(merged)))
	}

	if w.Cache != nil {
		if err := w.Cache.Invalidate(ctx, id, dataType, period); err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("failed to invalidate query cache after write")
		}
	}

	return WriteResult{
		Path: path, Day: day, RowCount: len(merged),
		TimeFrom: timeFrom, TimeTo: timeTo, Checksum: checksum, FileSize: size,
	}, nil
}

func (w *Writer) recordFailure(kind string) {
	if w.Metrics != nil {
		w.Metrics.WriterFailuresTotal.WithLabelValues(kind).Inc()
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, errs.ErrDiskFull):
		return "disk_full"
	case errors.Is(err, errs.ErrPermissionDenied):
		return "permission_denied"
	default:
		return "other"
	}
}

// Delete removes every partition matching identity/type/period (period
// empty matches any period) and the corresponding manifest rows.
func (w *Writer) Delete(ctx context.Context, id layout.Identity, dataType, period string) (int, error) {
	f := manifest.Filter{Exchange: id.Exchange, Market: id.Market, Symbol: id.Symbol, Type: dataType}
	if period != "" {
		f.HasPeriod = true
		f.Period = period
	}
	removed, err := w.manifest.DeleteBy(ctx, f)
	if err != nil {
		return 0, err
	}
	invalidated := make(map[layout.Identity]map[[2]string]bool)
	for _, e := range removed {
		unlock := w.locks.Lock(e.Path)
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			w.log.Error().Err(err).Str("path", e.Path).Msg("failed to remove partition file during delete")
		}
		unlock()

		eid := layout.Identity{Exchange: e.Exchange, Market: e.Market, Symbol: e.Symbol}
		if invalidated[eid] == nil {
			invalidated[eid] = make(map[[2]string]bool)
		}
		invalidated[eid][[2]string{e.Type, e.Period}] = true
	}
	if w.Cache != nil {
		for eid, combos := range invalidated {
			for combo := range combos {
				if err := w.Cache.Invalidate(ctx, eid, combo[0], combo[1]); err != nil {
					w.log.Warn().Err(err).Str("exchange", eid.Exchange).Str("symbol", eid.Symbol).
						Msg("failed to invalidate query cache after delete")
				}
			}
		}
	}
	return len(removed), nil
}

// cleanStaleTemp removes any leftover P.tmp.* file from a crash between
// writer step 4 and step 5 (S5): the target file is absent or present,
// either way a stale temp must not linger or be confused for a live write.
func (w *Writer) cleanStaleTemp(path string) {
	matches, _ := filepath.Glob(path + ".tmp.*")
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			w.log.Warn().Err(err).Str("path", m).Msg("failed to clean stale temp file")
		}
	}
}

func (w *Writer) verifyIntegrity(path string, wantRows int) error {
	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		return fmt.Errorf("reopen: %w", err)
	}
	if len(rows) != wantRows {
		return fmt.Errorf("row count mismatch: got %d want %d", len(rows), wantRows)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Ts <= rows[i-1].Ts {
			return fmt.Errorf("ts not strictly increasing at row %d (%d <= %d)", i, rows[i].Ts, rows[i-1].Ts)
		}
	}
	return nil
}

// mergeRows unions existing on-disk rows with new points, keeping the
// latest value for a duplicate ts (last-write-wins: points from the new
// batch override existing rows), then sorts ascending by ts.
func mergeRows(existing []parquetRow, points []Point) ([]parquetRow, error) {
	byTs := make(map[int64]parquetRow, len(existing)+len(points))
	for _, r := range existing {
		byTs[r.Ts] = r
	}
	for _, p := range points {
		row, err := toParquetRow(p)
		if err != nil {
			return nil, err
		}
		byTs[row.Ts] = row
	}

	out := make([]parquetRow, 0, len(byTs))
	for _, r := range byTs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}

// readPartitionFile returns the rows of an existing partition, nil with no
// error if the file does not exist, or an error if it exists but cannot be
// read (the caller quarantines it per the CorruptExisting policy).
func readPartitionFile(path string) ([]parquetRow, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func quarantine(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	dest := fmt.Sprintf("%s.corrupt.%d", path, time.Now().UTC().UnixNano())
	return os.Rename(path, dest)
}

// recordQuarantineKind tracks how many times path has failed integrity
// checks this process, by kind ("corrupt_existing" or "data_integrity"),
// and pages past the first occurrence.
func (w *Writer) recordQuarantineKind(path, kind string) {
	key := kind + ":" + path
	w.qmu.Lock()
	w.quarantineHits[key]++
	count := w.quarantineHits[key]
	w.qmu.Unlock()

	if count > 1 && w.Alerter != nil {
		w.Alerter.AlertRepeatedIntegrityFailure(path, kind, count)
	}
}

// writeRowsAtomic writes rows to a sibling temp file, fsyncs the file and
// its parent directory, then atomically renames it into place. Returns the
// SHA-256 checksum and size of the final file.
func writeRowsAtomic(path string, rows []parquetRow) (checksum string, size int64, err error) {
	dir := filepath.Dir(path)
	tmp := fmt.Sprintf("%s.tmp.%s", path, uuid.NewString())

	if err = parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("write temp partition: %w", err)
	}

	if err = fsyncFile(tmp); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("fsync temp partition: %w", err)
	}
	if err = fsyncDir(dir); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("fsync partition dir: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("rename into place: %w", err)
	}
	if err = fsyncDir(dir); err != nil {
		return "", 0, fmt.Errorf("fsync dir after rename: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read back for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), int64(len(data)), nil
}

func fsyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func classifyIOErr(err error, path string) error {
	if errors.Is(err, os.ErrPermission) {
		return errs.Wrap(errs.ErrPermissionDenied, "partition %s: %v", path, err)
	}
	if isDiskFull(err) {
		return errs.Wrap(errs.ErrDiskFull, "partition %s: %v", path, err)
	}
	return err
}

func isDiskFull(err error) bool {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return strings.Contains(pe.Err.Error(), "no space left on device")
	}
	return false
}
