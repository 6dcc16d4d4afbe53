package columnar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
)

func f64(v float64) *float64 { return &v }

func testID() layout.Identity {
	return layout.Identity{Exchange: "binance", Market: "spot", Symbol: "btcusdt"}
}

func newTestStore(t *testing.T) (*Writer, *Reader, *manifest.Manifest, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := manifest.Open(filepath.Join(dir, "manifest.db"))
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	root := filepath.Join(dir, "data")
	w := NewWriter(root, m, zerolog.Nop())
	r := NewReader(root, m, zerolog.Nop())
	return w, r, m, root
}

// S1 — basic merge across two overlapping writes to the same day partition.
func TestWriteBasicMerge(t *testing.T) {
	w, r, _, _ := newTestStore(t)
	ctx := context.Background()
	id := testID()

	batch1 := []Point{
		{Ts: 0, Close: f64(1)},
		{Ts: 60_000, Close: f64(2)},
		{Ts: 120_000, Close: f64(3)},
	}
	if _, err := w.Write(ctx, batch1, id, "raw", "1m"); err != nil {
		t.Fatalf("write batch1: %v", err)
	}

	batch2 := []Point{
		{Ts: 60_000, Close: f64(9)},
		{Ts: 180_000, Close: f64(4)},
	}
	results, err := w.Write(ctx, batch2, id, "raw", "1m")
	if err != nil {
		t.Fatalf("write batch2: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one partition touched, got %d", len(results))
	}
	if results[0].RowCount != 4 || results[0].TimeFrom != 0 || results[0].TimeTo != 180_000 {
		t.Fatalf("unexpected write result: %+v", results[0])
	}

	rows, err := r.Read(ctx, id, "raw", "1m", 0, 180_001)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	wantTs := []int64{0, 60_000, 120_000, 180_000}
	wantClose := []float64{1, 9, 3, 4}
	for i, row := range rows {
		if row.Ts != wantTs[i] {
			t.Fatalf("row %d ts = %d, want %d", i, row.Ts, wantTs[i])
		}
		if row.Close == nil || *row.Close != wantClose[i] {
			t.Fatalf("row %d close = %v, want %v", i, row.Close, wantClose[i])
		}
	}
}

// S2 — a batch spanning a day boundary produces two partitions, each with
// exactly one row, landing the boundary record in the later day (invariant 8).
func TestWriteDayBoundarySplit(t *testing.T) {
	w, _, m, _ := newTestStore(t)
	ctx := context.Background()
	id := testID()

	batch := []Point{
		{Ts: 86_399_000, Close: f64(1)},
		{Ts: 86_400_000, Close: f64(2)},
	}
	results, err := w.Write(ctx, batch, id, "raw", "1m")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(results))
	}
	for _, res := range results {
		if res.RowCount != 1 {
			t.Fatalf("expected 1 row per partition, got %d at %s", res.RowCount, res.Path)
		}
	}
	if results[0].TimeFrom != 86_399_000 {
		t.Fatalf("day1 partition holds wrong record: %+v", results[0])
	}
	if results[1].TimeFrom != 86_400_000 {
		t.Fatalf("day2 partition holds wrong record: %+v", results[1])
	}

	all, err := m.Find(ctx, manifest.Filter{Exchange: "BINANCE", Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("manifest find: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 manifest rows, got %d", len(all))
	}
}

// Idempotence law 5: writing the same batch twice yields the same checksum.
func TestWriteIdempotent(t *testing.T) {
	w, _, _, _ := newTestStore(t)
	ctx := context.Background()
	id := testID()
	batch := []Point{{Ts: 0, Close: f64(1)}, {Ts: 60_000, Close: f64(2)}}

	r1, err := w.Write(ctx, batch, id, "raw", "1m")
	if err != nil {
		t.Fatalf("write 1: %v", err)
	}
	r2, err := w.Write(ctx, batch, id, "raw", "1m")
	if err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if r1[0].Checksum != r2[0].Checksum {
		t.Fatalf("expected identical checksum on re-write, got %s vs %s", r1[0].Checksum, r2[0].Checksum)
	}
}

// S5 — a stale temp file left behind by a crash between write and rename
// must not be picked up as the partition, and must be cleaned on the next
// write to the same partition.
func TestWriteCleansStaleTempFile(t *testing.T) {
	w, r, _, root := newTestStore(t)
	ctx := context.Background()
	id := testID()

	path := layout.Path(root, id, "raw", "1m", layout.DayBucket(0))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	stale := path + ".tmp.deadbeef"
	if err := os.WriteFile(stale, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write(ctx, []Point{{Ts: 0, Close: f64(1)}}, id, "raw", "1m"); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale temp file removed, stat err = %v", err)
	}
	rows, err := r.Read(ctx, id, "raw", "1m", 0, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the real write to have landed, got %d rows", len(rows))
	}
}

func TestDeleteRemovesFileAndManifestRow(t *testing.T) {
	w, r, m, _ := newTestStore(t)
	ctx := context.Background()
	id := testID()

	if _, err := w.Write(ctx, []Point{{Ts: 0, Close: f64(1)}}, id, "raw", "1m"); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := w.Delete(ctx, id, "raw", "1m")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 partition deleted, got %d", n)
	}

	rows, err := r.Read(ctx, id, "raw", "1m", 0, 1_000_000)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(rows))
	}
	remaining, err := m.Find(ctx, manifest.Filter{Exchange: "BINANCE", Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected manifest row removed, got %d", len(remaining))
	}
}
