package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/exchange"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
)

// fakeConnector serves a fixed in-memory OHLCV series, ts>=since, up to limit.
type fakeConnector struct {
	name string
	data []columnar.Point
}

func (f *fakeConnector) Name() string           { return f.name }
func (f *fakeConnector) Markets() []string      { return []string{"SPOT"} }
func (f *fakeConnector) Symbols(ctx context.Context, market string) ([]string, error) {
	return []string{"BTCUSDT"}, nil
}

func (f *fakeConnector) FetchOHLCV(ctx context.Context, market, symbol, period string, sinceMs int64, limit int) ([]columnar.Point, error) {
	if limit <= 0 {
		limit = 1000
	}
	var out []columnar.Point
	for _, p := range f.data {
		if p.Ts >= sinceMs {
			out = append(out, p)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeConnector) FetchFunding(ctx context.Context, market, symbol string, sinceMs int64) ([]columnar.Point, error) {
	return nil, nil
}

func (f *fakeConnector) ProbeListingDate(ctx context.Context, market, symbol string) (int64, error) {
	if len(f.data) == 0 {
		return 0, errs.ErrNotFound
	}
	return f.data[0].Ts, nil
}

func newTestPipeline(t *testing.T, conn exchange.Connector) (*Pipeline, *manifest.Manifest) {
	t.Helper()
	dir := t.TempDir()
	m, err := manifest.Open(filepath.Join(dir, "manifest.db"))
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	root := filepath.Join(dir, "data")
	w := columnar.NewWriter(root, m, zerolog.Nop())
	reg := exchange.NewRegistry()
	reg.Register(conn)
	return New(reg, w, m, zerolog.Nop()), m
}

func f64p(v float64) *float64 { return &v }

// S3 — idempotent resume: running to completion twice yields unchanged
// manifest checksums and no new files; t_start resolves to max(time_to)+1.
func TestRunIdempotentResume(t *testing.T) {
	conn := &fakeConnector{name: "FAKE", data: []columnar.Point{
		{Ts: 0, Close: f64p(1)},
		{Ts: 60_000, Close: f64p(2)},
		{Ts: 120_000, Close: f64p(3)},
	}}
	p, m := newTestPipeline(t, conn)
	id := layout.Identity{Exchange: "FAKE", Market: "SPOT", Symbol: "BTCUSDT"}
	start := int64(0)

	res1, err := p.Run(context.Background(), Options{Identity: id, Kind: KindOHLCV, Period: "1m", Start: &start})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res1.RowsWritten != 3 {
		t.Fatalf("expected 3 rows written on first run, got %d", res1.RowsWritten)
	}

	entries1, err := m.Find(context.Background(), manifest.Filter{Exchange: "FAKE", Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatal(err)
	}
	checksums1 := make(map[string]string)
	for _, e := range entries1 {
		checksums1[e.Path] = e.Checksum
	}

	res2, err := p.Run(context.Background(), Options{Identity: id, Kind: KindOHLCV, Period: "1m"})
	if err != nil {
		t.Fatalf("second run (resume): %v", err)
	}
	if res2.RowsWritten != 0 {
		t.Fatalf("expected no new rows on resume, got %d", res2.RowsWritten)
	}

	entries2, err := m.Find(context.Background(), manifest.Filter{Exchange: "FAKE", Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries2) != len(entries1) {
		t.Fatalf("expected same partition count, got %d vs %d", len(entries2), len(entries1))
	}
	for _, e := range entries2 {
		if checksums1[e.Path] != e.Checksum {
			t.Fatalf("checksum changed for %s across resume", e.Path)
		}
	}
}

func TestRunRequiresStartWhenNoHistoryAndNotFullHistory(t *testing.T) {
	conn := &fakeConnector{name: "FAKE"}
	p, _ := newTestPipeline(t, conn)
	id := layout.Identity{Exchange: "FAKE", Market: "SPOT", Symbol: "BTCUSDT"}

	_, err := p.Run(context.Background(), Options{Identity: id, Kind: KindOHLCV, Period: "1m"})
	if !errors.Is(err, errs.ErrMissingStart) {
		t.Fatalf("expected ErrMissingStart, got %v", err)
	}
}

func TestRunFullHistoryProbesListingDate(t *testing.T) {
	conn := &fakeConnector{name: "FAKE", data: []columnar.Point{
		{Ts: 500_000, Close: f64p(1)},
	}}
	p, _ := newTestPipeline(t, conn)
	id := layout.Identity{Exchange: "FAKE", Market: "SPOT", Symbol: "BTCUSDT"}

	res, err := p.Run(context.Background(), Options{Identity: id, Kind: KindOHLCV, Period: "1m", FullHistory: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StartedAt != 500_000 {
		t.Fatalf("expected StartedAt resolved via probe to 500_000, got %d", res.StartedAt)
	}
	if res.RowsWritten != 1 {
		t.Fatalf("expected 1 row written, got %d", res.RowsWritten)
	}
}
