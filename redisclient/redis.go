package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/marketlake/lake/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client for the query result cache.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error if
// RedisURL is empty or cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL not configured")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

// Ping checks connectivity.
func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Get returns the cached value for key, or (nil, nil) on a cache miss.
func (r *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

// Set stores value under key with the given TTL.
func (r *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

// Del removes key from the cache.
func (r *Client) Del(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

// DelMulti removes every key in keys in one round trip. A no-op for an
// empty slice (redis.Del with zero keys is a protocol error).
func (r *Client) DelMulti(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

// SAdd adds member to the set at key.
func (r *Client) SAdd(ctx context.Context, key, member string) error {
	return r.c.SAdd(ctx, key, member).Err()
}

// SMembers returns every member of the set at key.
func (r *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.c.SMembers(ctx, key).Result()
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}
