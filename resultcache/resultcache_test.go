package resultcache

import (
	"context"
	"testing"

	"github.com/marketlake/lake/layout"
)

func TestKeyIsStableAndNormalizesIdentity(t *testing.T) {
	id := layout.Identity{Exchange: "binance", Market: "spot", Symbol: "btcusdt"}
	idUpper := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}

	k1 := Key(id, "raw", "1m", 0, 1000)
	k2 := Key(idUpper, "raw", "1m", 0, 1000)
	if k1 != k2 {
		t.Fatalf("expected case-normalized identities to collide on the same key, got %q vs %q", k1, k2)
	}
}

func TestKeyDistinguishesRanges(t *testing.T) {
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}
	k1 := Key(id, "raw", "1m", 0, 1000)
	k2 := Key(id, "raw", "1m", 0, 2000)
	if k1 == k2 {
		t.Fatalf("expected different time ranges to produce different keys")
	}
}

func TestNilCacheIsSafeNoOp(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	id := layout.Identity{Exchange: "binance", Market: "spot", Symbol: "btcusdt"}

	if _, ok := c.Get(ctx, "whatever"); ok {
		t.Fatalf("expected nil cache to always miss")
	}
	c.Set(ctx, "whatever", id, "raw", "1m", nil) // must not panic
	if err := c.Invalidate(ctx, id, "raw", "1m"); err != nil {
		t.Fatalf("Invalidate on nil cache: %v", err)
	}
	if stats := c.Stats(); stats != (Stats{}) {
		t.Fatalf("expected zero-value stats from nil cache, got %+v", stats)
	}
}

func TestUnbackedCacheIsSafeNoOp(t *testing.T) {
	c := &Cache{}
	ctx := context.Background()
	id := layout.Identity{Exchange: "binance", Market: "spot", Symbol: "btcusdt"}

	if _, ok := c.Get(ctx, "whatever"); ok {
		t.Fatalf("expected cache with no client to always miss")
	}
	c.Set(ctx, "whatever", id, "raw", "1m", nil)
	if err := c.Invalidate(ctx, id, "raw", "1m"); err != nil {
		t.Fatalf("Invalidate with no client: %v", err)
	}
}
