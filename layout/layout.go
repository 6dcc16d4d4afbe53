// Package layout computes the deterministic filesystem path for a stored
// partition and parses such a path back to its identity. It is pure: no
// I/O, no global state. The columnar writer calls Path for every partition
// it writes; the reader opens the paths recorded in the manifest instead.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Identity names the data series a partition belongs to.
type Identity struct {
	Exchange string
	Market   string
	Symbol   string
}

// Normalize upper-cases an identity component and replaces '/' and ':'
// with '_', matching the normalization every path and manifest lookup
// must apply.
func Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

// NormalizeIdentity normalizes every component of id.
func NormalizeIdentity(id Identity) Identity {
	return Identity{
		Exchange: Normalize(id.Exchange),
		Market:   Normalize(id.Market),
		Symbol:   Normalize(id.Symbol),
	}
}

// Path returns the deterministic partition path for the given identity,
// data type ("raw", "funding", "alt", or a feature_set name), period
// (e.g. "1m"; may be empty for types where it doesn't apply), and UTC day.
func Path(root string, id Identity, dataType, period string, day time.Time) string {
	id = NormalizeIdentity(id)
	day = day.UTC()
	y := fmt.Sprintf("%04d", day.Year())
	mo := fmt.Sprintf("%02d", day.Month())
	d := fmt.Sprintf("%02d", day.Day())
	fname := fmt.Sprintf("%s_%s_%04d%02d%02d.parquet", id.Symbol, period, day.Year(), day.Month(), day.Day())
	return filepath.Join(root, id.Exchange, id.Market, id.Symbol, dataType, period, y, mo, d, fname)
}

// DayBucket floors a millisecond UTC timestamp to the start of its UTC day.
func DayBucket(tsMillis int64) time.Time {
	const dayMs = 86_400_000
	floored := (tsMillis / dayMs) * dayMs
	if tsMillis < 0 && tsMillis%dayMs != 0 {
		floored -= dayMs
	}
	return time.UnixMilli(floored).UTC()
}

// Parsed is the identity and day recovered from a partition path by Parse.
type Parsed struct {
	Identity Identity
	DataType string
	Period   string
	Day      time.Time
}

// Parse inverts Path: given root and a path beneath it, recover the
// identity, type, period, and day that produced it.
func Parse(root, path string) (Parsed, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Parsed{}, fmt.Errorf("path %q not under root %q: %w", path, root, err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 8 {
		// Empty period: filepath.Join in Path drops that component.
		parts = append(parts[:5], append([]string{""}, parts[5:]...)...)
	}
	if len(parts) != 9 {
		return Parsed{}, fmt.Errorf("path %q does not match the partition layout", path)
	}
	exchange, market, symbol, dataType, period, yStr, moStr, dFile := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5], parts[6], parts[8]

	y, err := strconv.Atoi(yStr)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid year component %q: %w", yStr, err)
	}
	mo, err := strconv.Atoi(moStr)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid month component %q: %w", moStr, err)
	}
	dayPart := strings.TrimSuffix(dFile, filepath.Ext(dFile))
	idx := strings.LastIndex(dayPart, "_")
	if idx < 0 {
		return Parsed{}, fmt.Errorf("invalid filename %q", dFile)
	}
	dStr := dayPart[idx+1:]
	if len(dStr) != 8 {
		return Parsed{}, fmt.Errorf("invalid date suffix %q in filename %q", dStr, dFile)
	}
	d, err := strconv.Atoi(dStr[6:8])
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid day component in %q: %w", dFile, err)
	}

	return Parsed{
		Identity: Identity{Exchange: exchange, Market: market, Symbol: symbol},
		DataType: dataType,
		Period:   period,
		Day:      time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC),
	}, nil
}
