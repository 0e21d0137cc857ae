package stats

import (
	"context"
	"sync"
	"time"

	"flight-fare-monitor/internal/domain"
)

// Cache stores route statistics snapshots with a TTL. Implementations are
// swappable between process-local and distributed backends.
type Cache interface {
	Get(ctx context.Context, route string) (domain.RouteStatistics, bool)
	Set(ctx context.Context, route string, snapshot domain.RouteStatistics, ttl time.Duration) error
	Invalidate(ctx context.Context, route string) error
}

type memoryEntry struct {
	snapshot  domain.RouteStatistics
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache constructs an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns a cached snapshot if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, route string) (domain.RouteStatistics, bool) {
	c.mu.RLock()
	entry, ok := c.entries[route]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return domain.RouteStatistics{}, false
	}
	return entry.snapshot, true
}

// Set stores a snapshot under the route key.
func (c *MemoryCache) Set(_ context.Context, route string, snapshot domain.RouteStatistics, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[route] = memoryEntry{snapshot: snapshot, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate removes the route's cached snapshot.
func (c *MemoryCache) Invalidate(_ context.Context, route string) error {
	c.mu.Lock()
	delete(c.entries, route)
	c.mu.Unlock()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
