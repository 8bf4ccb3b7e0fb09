// Package cache defines the Cache interface shared by the in-process LRU
// tier and the optional Redis tier (internal/adapters/rediscache), and
// provides the LRU implementation. Both tiers fail silently: a cache is an
// optimization, never a correctness dependency, so a Get miss and a Get
// error are indistinguishable to the caller.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores opaque byte payloads under string keys with an optional TTL.
// Implementations must never return an error that the pipeline wrapper needs
// to handle specially: a failed cache operation degrades to a cache miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats summarizes cache effectiveness for the cache://stats resource.
type Stats struct {
	Hits      int64
	Misses    int64
	Entries   int
	Evictions int64
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// DefaultSize is the default number of entries kept by the LRU tier.
const DefaultSize = 2000

type entry struct {
	value     []byte
	expiresAt time.Time
}

// LRU is an in-process, bounded cache. It is the default retrieval-result
// cache tier. The embedding cache decorator (embedder.CachedEmbedder) keeps
// its own separate LRU and does not use this type.
type LRU struct {
	cache *lru.Cache[string, entry]

	hits      int64
	misses    int64
	evictions int64
}

var _ Cache = (*LRU)(nil)

// New creates an LRU cache holding up to size entries. A non-positive size
// falls back to DefaultSize.
func New(size int) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	l := &LRU{}
	c, _ := lru.NewWithEvict[string, entry](size, func(string, entry) {
		l.evictions++
	})
	l.cache = c
	return l
}

func (l *LRU) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok := l.cache.Get(key)
	if !ok {
		l.misses++
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		l.cache.Remove(key)
		l.misses++
		return nil, false
	}
	l.hits++
	return e.value, true
}

func (l *LRU) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	l.cache.Add(key, entry{value: value, expiresAt: expiresAt})
}

func (l *LRU) Delete(ctx context.Context, key string) {
	l.cache.Remove(key)
}

func (l *LRU) Stats() Stats {
	return Stats{
		Hits:      l.hits,
		Misses:    l.misses,
		Entries:   l.cache.Len(),
		Evictions: l.evictions,
	}
}

func (l *LRU) Close() error {
	l.cache.Purge()
	return nil
}
