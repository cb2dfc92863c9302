package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const opTimeout = 500 * time.Millisecond

// Connect parses a redis:// URL and pings the server. A failed ping is only
// logged: the cache is an accelerator and the service runs without it.
func Connect(ctx context.Context, rawURL string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without cache", "error", err, "addr", opts.Addr)
	} else {
		logger.Info("redis connected", "addr", opts.Addr)
	}

	return rdb, nil
}

// Client is a best-effort key/value cache. Backend failures never reach the
// caller: Get degrades to a miss and SetWithTTL to a no-op.
type Client struct {
	rdb    redis.Cmdable
	logger *slog.Logger

	hits   metric.Int64Counter
	misses metric.Int64Counter
	errors metric.Int64Counter
}

func NewClient(rdb redis.Cmdable, logger *slog.Logger) *Client {
	meter := otel.Meter("cache")
	c := &Client{rdb: rdb, logger: logger}
	c.hits, _ = meter.Int64Counter("cache.hits", metric.WithDescription("Cache lookups served from the cache"))
	c.misses, _ = meter.Int64Counter("cache.misses", metric.WithDescription("Cache lookups that found nothing"))
	c.errors, _ = meter.Int64Counter("cache.errors", metric.WithDescription("Cache operations that failed and were degraded"))
	return c
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.misses.Add(ctx, 1)
		return nil, false
	case err != nil:
		c.errors.Add(ctx, 1)
		c.logger.Warn("cache get failed, treating as miss", "error", err, "key", key)
		return nil, false
	}

	c.hits.Add(ctx, 1)
	return val, true
}

func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.errors.Add(ctx, 1)
		c.logger.Warn("cache set failed", "error", err, "key", key)
	}
}
