package cache

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	payload []byte
	expires time.Time
}

// MemoryQueryCache is a process-local QueryCache.
type MemoryQueryCache struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
	now   func() time.Time
}

// NewMemoryQueryCache returns an empty in-memory cache.
func NewMemoryQueryCache() *MemoryQueryCache {
	return &MemoryQueryCache{
		items: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

// WithNowFunc allows tests to override the time source.
func (c *MemoryQueryCache) WithNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryQueryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok || !now.Before(entry.expires) {
		return nil, false, nil
	}
	return entry.payload, true, nil
}

func (c *MemoryQueryCache) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{
		payload: append([]byte(nil), payload...),
		expires: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryQueryCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}
