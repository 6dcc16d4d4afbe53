// Package exchange presents a uniform operation set over heterogeneous
// exchange APIs: static discovery, OHLCV/funding fetch, and listing-date
// probing. Concrete connectors (e.g. binance.go) implement Connector;
// Registry lets the ingest pipeline look one up by exchange name.
package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/layout"
)

// Connector is the uniform, synchronous-appearing operation set a single
// exchange integration must implement. Every blocking call takes a
// context so the ingest pipeline can cancel between batches.
type Connector interface {
	// Name is the normalized exchange identifier (e.g. "BINANCE").
	Name() string

	// Markets lists the market segments this exchange exposes (e.g. "SPOT", "FUTURES").
	Markets() []string

	// Symbols lists tradeable symbols within a market.
	Symbols(ctx context.Context, market string) ([]string, error)

	// FetchOHLCV returns at most limit candle records with ts >= sinceMs,
	// ascending by ts. limit <= 0 means use the exchange's own default.
	FetchOHLCV(ctx context.Context, market, symbol, period string, sinceMs int64, limit int) ([]columnar.Point, error)

	// FetchFunding returns funding-rate records with ts >= sinceMs, ascending.
	FetchFunding(ctx context.Context, market, symbol string, sinceMs int64) ([]columnar.Point, error)

	// ProbeListingDate binary-searches backward for the earliest ts at
	// which the symbol has any data at all.
	ProbeListingDate(ctx context.Context, market, symbol string) (int64, error)
}

// Registry holds every connector the lake has been configured with,
// keyed by normalized exchange name.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector, keyed by its own Name().
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[layout.Normalize(c.Name())] = c
}

// Get returns the connector for exchange, or ErrUnknownExchange.
func (r *Registry) Get(exchange string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[layout.Normalize(exchange)]
	if !ok {
		return nil, errs.Wrap(errs.ErrUnknownExchange, "%s", exchange)
	}
	return c, nil
}

// Exchanges lists every registered exchange name.
func (r *Registry) Exchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	return names
}

// probeListingDate is the connector-agnostic binary search used by
// implementations that don't have a cheaper exchange-native way to find
// the oldest available record. It assumes "has data since ts" is monotonic
// in ts (true past a symbol's listing date) and narrows to day resolution.
func probeListingDate(ctx context.Context, lo, hi int64, hasDataSince func(ctx context.Context, ts int64) (bool, error)) (int64, error) {
	const dayMs = 86_400_000
	for hi-lo > dayMs {
		mid := lo + (hi-lo)/2
		ok, err := hasDataSince(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	ok, err := hasDataSince(ctx, lo)
	if err != nil {
		return 0, err
	}
	if ok {
		return lo, nil
	}
	ok, err = hasDataSince(ctx, hi)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("probe_listing_date: no data found in range [%d,%d]", lo, hi)
	}
	return hi, nil
}
