package replay

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache. It is correct for a single instance;
// deployments with more than one replica should use RedisCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryCache) MarkUsed(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.entries[key]; ok && now.Before(exp) {
		return ErrReplayed
	}
	c.entries[key] = now.Add(ttl)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
