package csvingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
)

func newTestWriter(t *testing.T) (*columnar.Writer, *columnar.Reader, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := manifest.Open(filepath.Join(dir, "manifest.db"))
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	root := filepath.Join(dir, "data")
	return columnar.NewWriter(root, m, zerolog.Nop()), columnar.NewReader(root, m, zerolog.Nop()), dir
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIngestFileWithHeader(t *testing.T) {
	w, r, dir := newTestWriter(t)
	content := "ts,open,high,low,close,volume,exchange_trade_id\n" +
		"0,1,1.5,0.5,1.2,100,tid-1\n" +
		"60000,1.2,1.3,1.1,1.25,80,tid-2\n"
	path := writeCSV(t, dir, "candles.csv", content)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}

	res, err := IngestFile(context.Background(), path, id, "raw", "1m", w, 0)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.RowsRead != 2 {
		t.Fatalf("expected 2 rows read, got %d", res.RowsRead)
	}

	rows, err := r.Read(context.Background(), id, "raw", "1m", 0, 60_001)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %d", len(rows))
	}
	if rows[0].Extra["exchange_trade_id"] != "tid-1" {
		t.Fatalf("expected extra column preserved, got %+v", rows[0].Extra)
	}
}

func TestIngestFileHeaderlessFallback(t *testing.T) {
	w, r, dir := newTestWriter(t)
	content := "0,1,1.5,0.5,1.2,100\n60000,1.2,1.3,1.1,1.25,80\n"
	path := writeCSV(t, dir, "candles_noheader.csv", content)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "ETHUSDT"}

	res, err := IngestFile(context.Background(), path, id, "raw", "1m", w, 0)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.RowsRead != 2 {
		t.Fatalf("expected 2 rows read, got %d", res.RowsRead)
	}

	rows, err := r.Read(context.Background(), id, "raw", "1m", 0, 60_001)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0].Close == nil || *rows[0].Close != 1.2 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestIngestFileChunking(t *testing.T) {
	w, _, dir := newTestWriter(t)
	content := "ts,close\n0,1\n60000,2\n120000,3\n180000,4\n"
	path := writeCSV(t, dir, "chunked.csv", content)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}

	res, err := IngestFile(context.Background(), path, id, "raw", "1m", w, 2)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.RowsRead != 4 {
		t.Fatalf("expected 4 rows read across chunks, got %d", res.RowsRead)
	}
	if len(res.Partitions) != 2 {
		t.Fatalf("expected 2 write calls (2 chunks merged into 1 day partition each call), got %d", len(res.Partitions))
	}
}
