// Package resultcache is an optional Redis-backed cache in front of the
// columnar range reader. Unlike a semantic response cache, range queries
// are addressed by an exact key (identity + data type + period + time
// range); there is no similarity matching, only exact hit or miss.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/observability"
	"github.com/marketlake/lake/redisclient"
)

const (
	keyPrefix = "lake:query:"
	idxPrefix = "lake:queryidx:"
)

// Stats is a point-in-time snapshot of cache activity since process start.
type Stats struct {
	Hits      int64
	Misses    int64
	Stores    int64
	Evictions int64
}

// Cache fronts columnar.Reader.Read with an exact-key TTL cache. A nil
// *Cache (or one with no Redis client) is a safe no-op: Get always
// misses and Set is a no-op, so callers never need a separate enabled check.
type Cache struct {
	client  *redisclient.Client
	ttl     time.Duration
	log     zerolog.Logger
	metrics *observability.Metrics

	hits, misses, stores, evictions int64
}

// New constructs a Cache backed by client with entries expiring after ttl.
// A zero ttl defaults to 5 minutes.
func New(client *redisclient.Client, ttl time.Duration, log zerolog.Logger, m *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		log:     log.With().Str("component", "resultcache").Logger(),
		metrics: m,
	}
}

// Key derives the exact cache key for one range read. Two calls with the
// same (normalized) identity, data type, period, and range collide on the
// same key, which is exactly what we want for an exact-match cache.
func Key(id layout.Identity, dataType, period string, t0, t1 int64) string {
	id = layout.NormalizeIdentity(id)
	raw := fmt.Sprintf("%s:%s:%s:%s:%s:%d:%d", id.Exchange, id.Market, id.Symbol, dataType, period, t0, t1)
	sum := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// indexKey identifies the set of every range key ever cached for one
// identity/data-type/period combination, regardless of the t0/t1 a
// particular query used. Invalidate reads this set to find everything a
// write to that combination might have made stale.
func indexKey(id layout.Identity, dataType, period string) string {
	id = layout.NormalizeIdentity(id)
	return fmt.Sprintf("%s%s:%s:%s:%s:%s", idxPrefix, id.Exchange, id.Market, id.Symbol, dataType, period)
}

// Get returns the cached points for key, or ok=false on a miss (including
// when the cache is disabled or Redis is unreachable — a cache failure
// degrades to a direct read, it never fails the request).
func (c *Cache) Get(ctx context.Context, key string) ([]columnar.Point, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed, falling back to direct read")
		c.recordOutcome("error")
		return nil, false
	}
	if raw == nil {
		atomic.AddInt64(&c.misses, 1)
		c.recordOutcome("miss")
		return nil, false
	}

	var points []columnar.Point
	if err := json.Unmarshal(raw, &points); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, treating as miss")
		atomic.AddInt64(&c.misses, 1)
		c.recordOutcome("miss")
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	c.recordOutcome("hit")
	return points, true
}

// Set stores points under key (as returned by Key for the same
// identity/data-type/period/range) with the cache's configured TTL, and
// registers key against that identity/data-type/period's index set so a
// later Invalidate can find it. Errors are logged, not returned: a failed
// cache write must never fail the read that produced the value.
func (c *Cache) Set(ctx context.Context, key string, id layout.Identity, dataType, period string, points []columnar.Point) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(points)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to store cache entry")
		return
	}
	if err := c.client.SAdd(ctx, indexKey(id, dataType, period), key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to index cache entry for invalidation")
	}
	atomic.AddInt64(&c.stores, 1)
}

// Invalidate evicts every range key ever cached for id/dataType/period.
// A write only knows the identity/data-type/period it touched, not the
// t0/t1 of every past query against it, so this walks the index set Set
// built rather than recomputing a single Key. Called after a write or
// delete touches that combination, since a stale cached range read would
// otherwise outlive the TTL.
func (c *Cache) Invalidate(ctx context.Context, id layout.Identity, dataType, period string) error {
	if c == nil || c.client == nil {
		return nil
	}
	idx := indexKey(id, dataType, period)
	keys, err := c.client.SMembers(ctx, idx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.DelMulti(ctx, keys); err != nil {
		return err
	}
	if err := c.client.Del(ctx, idx); err != nil {
		return err
	}
	atomic.AddInt64(&c.evictions, int64(len(keys)))
	return nil
}

// Stats returns a snapshot of cumulative hit/miss/store/eviction counts.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Stores:    atomic.LoadInt64(&c.stores),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

func (c *Cache) recordOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.QueryCacheHits.WithLabelValues(outcome).Inc()
	}
}
