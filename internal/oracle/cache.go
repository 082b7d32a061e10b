package oracle

import (
	"sync"
	"time"
)

// seriesEntry holds one cached series download.
type seriesEntry struct {
	points    []Point
	expiresAt time.Time
}

func (e *seriesEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// seriesCache is a thread-safe TTL cache of series downloads keyed by the
// requested date range.
type seriesCache struct {
	mu      sync.RWMutex
	entries map[string]*seriesEntry
	ttl     time.Duration
	now     func() time.Time
}

func newSeriesCache(ttl time.Duration) *seriesCache {
	return &seriesCache{
		entries: make(map[string]*seriesEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *seriesCache) get(key string) ([]Point, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.points, true
}

func (c *seriesCache) set(key string, points []Point) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &seriesEntry{points: points, expiresAt: c.now().Add(c.ttl)}
}

// evict removes all expired entries and returns how many were dropped.
func (c *seriesCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *seriesCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
