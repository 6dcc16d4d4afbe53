package main

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/marketlake/lake/columnar"
)

// writeCSVTo prints points as a minimal OHLCV/funding CSV — the same
// fixed columns the REST adapter's export writes, without the dynamic
// "extra" columns (the CLI is for quick inspection, not archival export;
// use the REST export endpoints for that).
func writeCSVTo(w io.Writer, points []columnar.Point) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"ts", "open", "high", "low", "close", "volume", "funding_rate"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			strconv.FormatInt(p.Ts, 10),
			formatPtr(p.Open),
			formatPtr(p.High),
			formatPtr(p.Low),
			formatPtr(p.Close),
			formatPtr(p.Volume),
			formatPtr(p.FundingRate),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return cw.Error()
}

func formatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
