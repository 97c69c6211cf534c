package sqlfn

import (
	"context"
	"sync"
	"time"
)

// Cache stores cached function results keyed by (namespace, key), where
// namespace is a Function's cache name (§6.7's cache_as aliasing: two
// functions sharing a cache_as share a namespace) and key is produced by
// CacheKey. Implementations may be a single tier (an in-memory Cache, a
// store/redis.Cache) or composed via NewTieredCache.
type Cache interface {
	Get(ctx context.Context, namespace, key string) (value string, ok bool, err error)
	Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error
}

// memoryCache is a process-local, TTL-aware Cache. It is the L1 tier in
// front of an optional L2 (store/redis.Cache) and, used alone, is a
// complete Cache for single-process deployments.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemoryCache builds an in-memory Cache with no persistence across
// process restarts.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, namespace, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[namespace+"\x00"+key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(c.entries, namespace+"\x00"+key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *memoryCache) Set(_ context.Context, namespace, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.entries[namespace+"\x00"+key] = memoryEntry{value: value, expires: expires}
	return nil
}

// tieredCache checks L1 before L2 and backfills L1 on an L2 hit, giving
// callers in-process latency on warm keys while still sharing a cache
// across processes via L2 (§6.7's "two-tier (L1 in-memory + L2 external)").
type tieredCache struct {
	l1 Cache
	l2 Cache
}

// NewTieredCache composes l1 (checked first, always populated) in front of
// l2 (the shared, slower tier). l2 may be nil, in which case the result
// behaves exactly like l1 alone.
func NewTieredCache(l1, l2 Cache) Cache {
	if l2 == nil {
		return l1
	}
	return &tieredCache{l1: l1, l2: l2}
}

func (c *tieredCache) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if v, ok, err := c.l1.Get(ctx, namespace, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := c.l2.Get(ctx, namespace, key)
	if err != nil || !ok {
		return "", false, err
	}
	_ = c.l1.Set(ctx, namespace, key, v, 0)
	return v, true, nil
}

func (c *tieredCache) Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error {
	if err := c.l2.Set(ctx, namespace, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, namespace, key, value, ttl)
}
