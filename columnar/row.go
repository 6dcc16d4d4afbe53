package columnar

import "encoding/json"

// Point is one record of a candle or funding-rate batch as seen by callers
// of the writer and reader. Only Ts is required; the OHLCV/funding fields
// are optional pointers so a funding-rate batch (which has no open/high/
// low/close/volume) round-trips without writing spurious zeros. Extra
// carries any additional fields the caller supplied that this lake has no
// dedicated column for — they are preserved verbatim, never dropped.
type Point struct {
	Ts          int64
	Open        *float64
	High        *float64
	Low         *float64
	Close       *float64
	Volume      *float64
	FundingRate *float64
	Extra       map[string]any
}

// parquetRow is the on-disk schema. It is deliberately a fixed, statically
// typed struct: the known OHLCV/funding columns get real optional Parquet
// columns (for compression and projection), and Extra is a side-channel
// JSON blob carrying whatever the caller put in Point.Extra that this
// schema has no dedicated column for. This trades a fully dynamic runtime
// schema for a statically checkable one; §9's "dynamic map of optional
// typed columns" is satisfied at the Point/public-API level, not by
// exposing a dynamic schema to the Parquet codec itself.
type parquetRow struct {
	Ts          int64    `parquet:"ts,timestamp(millisecond)"`
	Open        *float64 `parquet:"open,optional"`
	High        *float64 `parquet:"high,optional"`
	Low         *float64 `parquet:"low,optional"`
	Close       *float64 `parquet:"close,optional"`
	Volume      *float64 `parquet:"volume,optional"`
	FundingRate *float64 `parquet:"funding_rate,optional"`
	Extra       string   `parquet:"extra,optional"`
}

func toParquetRow(p Point) (parquetRow, error) {
	row := parquetRow{
		Ts: p.Ts, Open: p.Open, High: p.High, Low: p.Low,
		Close: p.Close, Volume: p.Volume, FundingRate: p.FundingRate,
	}
	if len(p.Extra) > 0 {
		b, err := json.Marshal(p.Extra)
		if err != nil {
			return parquetRow{}, err
		}
		row.Extra = string(b)
	}
	return row, nil
}

func fromParquetRow(r parquetRow) (Point, error) {
	p := Point{
		Ts: r.Ts, Open: r.Open, High: r.High, Low: r.Low,
		Close: r.Close, Volume: r.Volume, FundingRate: r.FundingRate,
	}
	if r.Extra != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(r.Extra), &extra); err != nil {
			return Point{}, err
		}
		p.Extra = extra
	}
	return p, nil
}
