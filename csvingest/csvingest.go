// Package csvingest streams a local CSV file into the columnar writer in
// bounded-size chunks, so a multi-gigabyte history backfill never holds
// the whole file in memory at once.
package csvingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/layout"
)

// defaultChunkRows matches the source's chunk_rows default.
const defaultChunkRows = 250_000

// knownColumns are the header names mapped to dedicated Point fields;
// anything else in a header row is carried through Point.Extra verbatim.
var knownColumns = map[string]bool{
	"ts": true, "open": true, "high": true, "low": true,
	"close": true, "volume": true, "funding_rate": true,
}

// fallbackHeader is used when the file has no header row: a fixed
// six-column candle schema.
var fallbackHeader = []string{"ts", "open", "high", "low", "close", "volume"}

// Result summarizes one CSV ingest run.
type Result struct {
	RowsRead   int
	Partitions []columnar.WriteResult
}

// IngestFile streams path in chunks of chunkRows (0 uses the default),
// writing each chunk through w. Behavior is identical to API-sourced
// ingest once rows reach the writer: merge/dedup/sort and atomic write
// apply exactly as they do for columnar.Writer.Write called directly.
func IngestFile(ctx context.Context, path string, id layout.Identity, dataType, period string, w *columnar.Writer, chunkRows int) (Result, error) {
	if chunkRows <= 0 {
		chunkRows = defaultChunkRows
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}

	header, pending, err := resolveHeader(first)
	if err != nil {
		return Result{}, err
	}

	var result Result
	batch := make([]columnar.Point, 0, chunkRows)
	if pending != nil {
		batch = append(batch, *pending)
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		wr, err := w.Write(ctx, batch, id, dataType, period)
		if err != nil {
			return err
		}
		result.Partitions = append(result.Partitions, wr...)
		result.RowsRead += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read row %d: %w", result.RowsRead+len(batch)+1, err)
		}

		p, err := parseRow(header, record)
		if err != nil {
			return result, err
		}
		batch = append(batch, p)
		if len(batch) >= chunkRows {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

// resolveHeader decides whether the first record is a header row or the
// first data row (fixed six-column fallback schema). If it is data, it is
// parsed and returned as pending so the caller doesn't drop it.
func resolveHeader(first []string) (header []string, pending *columnar.Point, err error) {
	if _, parseErr := strconv.ParseInt(strings.TrimSpace(first[0]), 10, 64); parseErr == nil {
		if len(first) < len(fallbackHeader) {
			return nil, nil, errs.Wrap(errs.ErrSchemaMismatch, "headerless CSV has %d columns, want at least %d", len(first), len(fallbackHeader))
		}
		p, err := parseRow(fallbackHeader, first)
		if err != nil {
			return nil, nil, err
		}
		return fallbackHeader, &p, nil
	}

	lower := make([]string, len(first))
	hasTs := false
	for i, col := range first {
		lower[i] = strings.ToLower(strings.TrimSpace(col))
		if lower[i] == "ts" {
			hasTs = true
		}
	}
	if !hasTs {
		return nil, nil, errs.Wrap(errs.ErrSchemaMismatch, "csv header %v has no ts column", first)
	}
	return lower, nil, nil
}

func parseRow(header []string, record []string) (columnar.Point, error) {
	var p columnar.Point
	var extra map[string]any

	for i, col := range header {
		if i >= len(record) {
			break
		}
		val := strings.TrimSpace(record[i])
		if val == "" {
			continue
		}
		if col == "ts" {
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return columnar.Point{}, errs.Wrap(errs.ErrSchemaMismatch, "invalid ts %q: %v", val, err)
			}
			p.Ts = ts
			continue
		}
		if !knownColumns[col] {
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[col] = val
			continue
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return columnar.Point{}, errs.Wrap(errs.ErrSchemaMismatch, "invalid %s %q: %v", col, val, err)
		}
		switch col {
		case "open":
			p.Open = &f
		case "high":
			p.High = &f
		case "low":
			p.Low = &f
		case "close":
			p.Close = &f
		case "volume":
			p.Volume = &f
		case "funding_rate":
			p.FundingRate = &f
		}
	}
	p.Extra = extra
	return p, nil
}
