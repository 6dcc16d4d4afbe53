package layout

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"binance", "BINANCE"},
		{"btc/usdt", "BTC_USDT"},
		{"foo:bar", "FOO_BAR"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestPathAndParseRoundTrip(t *testing.T) {
	root := "/data"
	id := Identity{Exchange: "binance", Market: "spot", Symbol: "btc/usdt"}
	day := time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)

	p := Path(root, id, "raw", "1m", day)
	want := "/data/BINANCE/SPOT/BTC_USDT/raw/1m/1970/01/02/BTC_USDT_1m_19700102.parquet"
	if p != want {
		t.Fatalf("Path = %q, want %q", p, want)
	}

	parsed, err := Parse(root, p)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Identity != (Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTC_USDT"}) {
		t.Fatalf("parsed identity = %+v", parsed.Identity)
	}
	if parsed.DataType != "raw" || parsed.Period != "1m" {
		t.Fatalf("parsed type/period = %q/%q", parsed.DataType, parsed.Period)
	}
	if !parsed.Day.Equal(day) {
		t.Fatalf("parsed day = %v, want %v", parsed.Day, day)
	}
}

func TestDayBucket(t *testing.T) {
	tests := []struct {
		ts   int64
		want time.Time
	}{
		{0, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{86_399_000, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{86_400_000, time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		if got := DayBucket(tc.ts); !got.Equal(tc.want) {
			t.Fatalf("DayBucket(%d) = %v, want %v", tc.ts, got, tc.want)
		}
	}
}
