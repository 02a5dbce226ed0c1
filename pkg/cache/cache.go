package cache

import (
	"context"
	"time"
)

// Cache is a keyed store with per-entry TTL.
// The filter engine keeps compiled where-clause programs in it.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores a value in cache with TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from cache.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Loader produces a value for a missing key
type Loader func() (any, error)

// Fetch returns the cached value for key, calling load and storing its
// result on a miss. Load errors are returned and nothing is cached.
func Fetch(ctx context.Context, c Cache, key string, ttl time.Duration, load Loader) (any, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

// Metrics holds cache performance statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
