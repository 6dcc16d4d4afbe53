package columnar

import (
	"context"
	"testing"
)

func TestReadEmptyWhenT0AfterT1(t *testing.T) {
	_, r, _, _ := newTestStore(t)
	rows, err := r.Read(context.Background(), testID(), "raw", "1m", 100, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty result for t0>t1, got %d rows", len(rows))
	}
}

func TestReadReturnsEmptyNotErrorWhenNothingMatches(t *testing.T) {
	_, r, _, _ := newTestStore(t)
	rows, err := r.Read(context.Background(), testID(), "raw", "1m", 0, 1000)
	if err != nil {
		t.Fatalf("expected no error for no matching partitions, got %v", err)
	}
	if rows != nil {
		t.Fatalf("expected nil/empty slice, got %v", rows)
	}
}

// Invariant 10 (second half): a range spanning a missing middle day returns
// the surrounding days concatenated, with no filler for the gap.
func TestReadSpanningMissingDayHasNoFiller(t *testing.T) {
	w, r, _, _ := newTestStore(t)
	ctx := context.Background()
	id := testID()

	day0 := int64(0)
	day2 := int64(2 * 86_400_000)
	if _, err := w.Write(ctx, []Point{{Ts: day0, Close: f64(1)}}, id, "raw", "1d"); err != nil {
		t.Fatalf("write day0: %v", err)
	}
	// day1 (86_400_000 .. 172_799_999) intentionally never written.
	if _, err := w.Write(ctx, []Point{{Ts: day2, Close: f64(3)}}, id, "raw", "1d"); err != nil {
		t.Fatalf("write day2: %v", err)
	}

	rows, err := r.Read(ctx, id, "raw", "1d", 0, day2+1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected exactly the two written rows with no filler, got %d", len(rows))
	}
	if rows[0].Ts != day0 || rows[1].Ts != day2 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReadPreservesExtraFieldsAndNilOHLC(t *testing.T) {
	w, r, _, _ := newTestStore(t)
	ctx := context.Background()
	id := testID()

	rate := 0.0001
	batch := []Point{{Ts: 0, FundingRate: &rate, Extra: map[string]any{"mark_price": 42000.5, "source": "rest"}}}
	if _, err := w.Write(ctx, batch, id, "funding", ""); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := r.Read(ctx, id, "funding", "", 0, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.Close != nil {
		t.Fatalf("expected nil Close for a funding record, got %v", *got.Close)
	}
	if got.FundingRate == nil || *got.FundingRate != rate {
		t.Fatalf("funding rate not preserved: %v", got.FundingRate)
	}
	if got.Extra["source"] != "rest" {
		t.Fatalf("extra fields not preserved: %+v", got.Extra)
	}
}
