package pubquery

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the process-wide (or shared, for the Redis variant) read-through
// cache the QueryBuilder checks before hitting the pool, per spec.md §4.1.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// NoopCache always misses; NewWithConnString installs it when no cache option
// is given. Builders with cache-results=false skip the cache entirely.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (NoopCache) Invalidate(ctx context.Context, keys ...string) error { return nil }

// LRUCache is the default process-wide query result cache: a fixed-size LRU
// of (cache key -> marshaled rows), per spec.md §4.1 ("process-wide LRU of
// fixed maximum size, 1000 entries default; thread-safe insertion and
// lookup"). golang-lru/v2's Cache already serializes access internally, so
// no extra locking is needed here.
type LRUCache struct {
	inner *lru.Cache[string, []byte]
}

// NewLRUCache builds an LRUCache with the given capacity (spec.md default 1000).
func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 1000
	}
	inner, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.inner.Get(key)
	return v, ok, nil
}

// Set ignores ttl: the in-process LRU evicts by size, not by age, matching
// the teacher's fixed-size-only cache.go.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.inner.Add(key, value)
	return nil
}

func (c *LRUCache) Invalidate(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		c.inner.Remove(k)
	}
	return nil
}

// Len reports the number of entries currently cached (test/diagnostic use).
func (c *LRUCache) Len() int { return c.inner.Len() }
