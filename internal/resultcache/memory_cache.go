package resultcache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process fallback implementation: a plain
// key->CacheRecord map guarded by a single mutex, held only for the
// duration of each call. It is functionally identical to RedisCache
// from the caller's point of view, which is the degrade contract in
// spec.md §4.1.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]CacheRecord
	maxItems int // 0 means unbounded
	now      func() time.Time
}

// NewMemoryCache builds an in-process cache. maxItems <= 0 means the
// region has no capacity bound.
func NewMemoryCache(maxItems int) *MemoryCache {
	return &MemoryCache{
		entries:  make(map[string]CacheRecord),
		maxItems: maxItems,
		now:      time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok || !rec.Fresh(c.now()) {
		return nil, ErrMiss
	}
	out := make([]byte, len(rec.Payload))
	copy(out, rec.Payload)
	return out, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxItems > 0 && len(c.entries) >= c.maxItems {
		return ErrCapacityExceeded
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	c.entries[key] = CacheRecord{Payload: stored, InsertedAt: c.now(), TTL: ttl}
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheRecord)
	return nil
}
