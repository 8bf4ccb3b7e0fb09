// Package rediscache is the network-shared tier of the retrieval result
// cache, for multi-process deployments where the in-process LRU tier
// (internal/adapters/cache) can't be shared across server instances. It
// satisfies the same cache.Cache interface, so the pipeline wrapper can
// swap tiers without caring which one it's holding.
package rediscache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aman-cerp/ragmcp/internal/adapters/cache"
)

// Config configures the Redis-backed cache tier.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key namespace, defaults to "ragmcp:"
}

// Cache is a cache.Cache backed by a Redis server. Every operation degrades
// to a miss (Get) or a no-op (Set/Delete) on a Redis error, logging at warn
// rather than surfacing the failure: a cache outage must never fail a
// retrieval.
type Cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	hits, misses, evictions int64
}

var _ cache.Cache = (*Cache)(nil)

// New builds a Redis-backed cache tier. It does not verify connectivity;
// callers should ping separately (e.g. in a health probe) if they want to
// fail fast on a misconfigured address.
func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = "ragmcp:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.Prefix,
		logger: logger,
	}
}

func (c *Cache) key(k string) string { return c.prefix + k }

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("rediscache get failed", slog.String("error", err.Error()))
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return data, true
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.logger.Warn("rediscache set failed", slog.String("error", err.Error()))
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.Warn("rediscache delete failed", slog.String("error", err.Error()))
	}
}

// Stats reports only the counters this process has observed; hit rate
// across a whole cluster would require a shared counter, which is out of
// scope here.
func (c *Cache) Stats() cache.Stats {
	return cache.Stats{Hits: c.hits, Misses: c.misses}
}

func (c *Cache) Close() error {
	return c.client.Close()
}
