package httpapi

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/marketlake/lake/columnar"
)

// baseColumns are always present, in this order; any keys left over from
// Point.Extra across the whole set are appended afterward, sorted for a
// deterministic header.
var baseColumns = []string{"ts", "open", "high", "low", "close", "volume", "funding_rate"}

// writeCSV encodes points as CSV to w: the fixed OHLCV/funding columns
// first, then the union of every row's Extra keys, sorted. Missing cells
// are written empty rather than "null" or "0", matching the writer's
// null-for-missing semantics (§4.2 schema evolution).
func writeCSV(w io.Writer, points []columnar.Point) error {
	extraKeys := collectExtraKeys(points)
	header := append(append([]string{}, baseColumns...), extraKeys...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range points {
		record := make([]string, 0, len(header))
		record = append(record,
			fmt.Sprintf("%d", p.Ts),
			formatFloatPtr(p.Open),
			formatFloatPtr(p.High),
			formatFloatPtr(p.Low),
			formatFloatPtr(p.Close),
			formatFloatPtr(p.Volume),
			formatFloatPtr(p.FundingRate),
		)
		for _, k := range extraKeys {
			v, ok := p.Extra[k]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, fmt.Sprintf("%v", v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func collectExtraKeys(points []columnar.Point) []string {
	seen := make(map[string]bool)
	for _, p := range points {
		for k := range p.Extra {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", *v)
}
