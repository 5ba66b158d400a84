package chart

import (
	"sync"
	"time"
)

type cached struct {
	data      []byte
	expiresAt time.Time
}

// Cache keeps rendered charts for a short period. Keys should include the
// result version so a new decimation never serves a stale image.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cached
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]cached), ttl: ttl, now: time.Now}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cached{data: data, expiresAt: now.Add(c.ttl)}
}
