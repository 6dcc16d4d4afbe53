package manifest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/marketlake/lake/layout"
)

func openTestManifest(t *testing.T) (*Manifest, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "manifest.db")
	m, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, dir
}

func sampleEntry(path string) Entry {
	return Entry{
		Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT", Type: "raw", Period: "1m",
		Path: path, TimeFrom: 0, TimeTo: 180_000, RowCount: 4, FileSize: 1024, Checksum: "abc123",
	}
}

func TestUpsertInsertsAndUpdatesInPlace(t *testing.T) {
	m, dir := openTestManifest(t)
	ctx := context.Background()
	p := filepath.Join(dir, "part.parquet")

	e1, err := m.Upsert(ctx, sampleEntry(p))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if e1.ID == 0 {
		t.Fatalf("expected assigned ID")
	}

	e2 := sampleEntry(p)
	e2.RowCount = 5
	e2.TimeTo = 240_000
	updated, err := m.Upsert(ctx, e2)
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if updated.ID != e1.ID {
		t.Fatalf("expected same row ID on upsert, got %d want %d", updated.ID, e1.ID)
	}
	if updated.RowCount != 5 || updated.TimeTo != 240_000 {
		t.Fatalf("update did not apply: %+v", updated)
	}

	all, err := m.Find(ctx, Filter{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row after upsert-in-place, got %d", len(all))
	}
}

func TestFindByTimeRange(t *testing.T) {
	m, dir := openTestManifest(t)
	ctx := context.Background()

	e1 := sampleEntry(filepath.Join(dir, "day1.parquet"))
	e1.TimeFrom, e1.TimeTo = 0, 86_399_999
	e2 := sampleEntry(filepath.Join(dir, "day2.parquet"))
	e2.TimeFrom, e2.TimeTo = 86_400_000, 172_799_999

	if _, err := m.Upsert(ctx, e1); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Upsert(ctx, e2); err != nil {
		t.Fatal(err)
	}

	found, err := m.Find(ctx, Filter{
		Exchange: "binance", Symbol: "btcusdt", Market: "spot", Type: "raw",
		UseTimeRange: true, RangeFrom: 0, RangeTo: 1000,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 1 || found[0].Path != e1.Path {
		t.Fatalf("expected only day1 partition, got %+v", found)
	}

	all, err := m.Find(ctx, Filter{
		Exchange: "binance", UseTimeRange: true, RangeFrom: 0, RangeTo: math.MaxInt64,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both partitions, got %d", len(all))
	}
}

func TestDeleteBy(t *testing.T) {
	m, dir := openTestManifest(t)
	ctx := context.Background()
	p := filepath.Join(dir, "part.parquet")
	if _, err := m.Upsert(ctx, sampleEntry(p)); err != nil {
		t.Fatal(err)
	}

	removed, err := m.DeleteBy(ctx, Filter{Exchange: "binance", Symbol: "btcusdt"})
	if err != nil {
		t.Fatalf("DeleteBy: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed row, got %d", len(removed))
	}

	remaining, err := m.Find(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected manifest empty after delete, got %d rows", len(remaining))
	}
}

func TestLatestVersionLexicographic(t *testing.T) {
	m, dir := openTestManifest(t)
	ctx := context.Background()
	id := layout.Identity{Exchange: "binance", Market: "spot", Symbol: "btcusdt"}

	for _, v := range []string{"v1", "v10", "v2"} {
		e := Entry{
			Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT", Type: "momentum",
			Path: filepath.Join(dir, v+".parquet"), Version: v, FileSize: 1, Checksum: "x",
		}
		if _, err := m.Upsert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := m.LatestVersion(ctx, "momentum", id)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	// lexicographic ordering: "v2" > "v10" > "v1"
	if latest.Version != "v2" {
		t.Fatalf("expected lexicographically-max version v2, got %q", latest.Version)
	}
}

func TestReconcileReportsOrphansAndDeadLinks(t *testing.T) {
	m, dir := openTestManifest(t)
	ctx := context.Background()

	root := filepath.Join(dir, "root")
	layoutPath := filepath.Join(root, "BINANCE", "SPOT", "BTCUSDT", "raw", "1m", "1970", "01", "01")
	if err := os.MkdirAll(layoutPath, 0o755); err != nil {
		t.Fatal(err)
	}

	deadLinkPath := filepath.Join(layoutPath, "BTCUSDT_1m_19700101.parquet")
	e := sampleEntry(deadLinkPath)
	if _, err := m.Upsert(ctx, e); err != nil {
		t.Fatal(err)
	}
	// deadLinkPath is in the manifest but never written to disk.

	orphanPath := filepath.Join(layoutPath, "ETHUSDT_1m_19700101.parquet")
	if err := os.WriteFile(orphanPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := m.Reconcile(ctx, root)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Orphans) != 1 || report.Orphans[0] != orphanPath {
		t.Fatalf("expected orphan %q, got %+v", orphanPath, report.Orphans)
	}
	if len(report.DeadLinks) != 1 || report.DeadLinks[0] != deadLinkPath {
		t.Fatalf("expected dead link %q, got %+v", deadLinkPath, report.DeadLinks)
	}
}
