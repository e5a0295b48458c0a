package api

import (
	"sync"
	"time"

	"fx-backtest-lab/internal/domain"
)

// Cache defaults.
const (
	DefaultCacheEntries = 100
	DefaultCacheTTL     = time.Hour
)

type cacheEntry struct {
	result   *domain.RunResult
	storedAt time.Time
}

// RunCache holds completed run results keyed by run id, bounded by entry
// count and age. Results are immutable once stored.
type RunCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
}

// NewRunCache creates a bounded result cache. Non-positive bounds fall
// back to the defaults.
func NewRunCache(maxEntries int, ttl time.Duration) *RunCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RunCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Put stores a result. When the cache is full the oldest entry is evicted.
func (c *RunCache) Put(id string, res *domain.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[id]; !exists {
			c.evictOldestLocked()
		}
	}
	c.entries[id] = cacheEntry{result: res, storedAt: time.Now()}
}

// Get returns a stored result. Expired entries are removed on access.
func (c *RunCache) Get(id string) (*domain.RunResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return nil, false
	}
	return e.result, true
}

// Delete removes an entry, reporting whether it existed.
func (c *RunCache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	return ok
}

// Len returns the number of cached results.
func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *RunCache) evictOldestLocked() {
	var oldest string
	var oldestAt time.Time
	for id, e := range c.entries {
		if oldest == "" || e.storedAt.Before(oldestAt) {
			oldest = id
			oldestAt = e.storedAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}
