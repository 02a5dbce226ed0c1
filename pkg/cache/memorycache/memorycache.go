package memorycache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/remotemodel/pkg/cache"
)

// SizeFunc estimates the memory cost of an entry in bytes
type SizeFunc func(key string, value any) int64

// DefaultSize charges a flat 100 bytes plus the key length per entry
func DefaultSize(key string, _ any) int64 {
	return int64(100 + len(key))
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	size      int64
}

// Cache is a size-bounded LRU cache with per-entry expiry.
type Cache struct {
	mu sync.Mutex

	items map[string]*list.Element
	lru   *list.List // front = most recently used

	maxSize     int64
	currentSize int64
	sizeOf      SizeFunc
	now         func() time.Time

	metricsOn   bool
	hits        atomic.Uint64
	misses      atomic.Uint64
	keysAdded   atomic.Uint64
	keysEvicted atomic.Uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes bounds the summed entry sizes; least recently used
	// entries are evicted past it. Zero means unbounded.
	MaxSizeBytes int64

	// SizeOf estimates entry sizes. Defaults to DefaultSize.
	SizeOf SizeFunc

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) *Cache {
	sizeOf := config.SizeOf
	if sizeOf == nil {
		sizeOf = DefaultSize
	}
	return &Cache{
		items:     make(map[string]*list.Element),
		lru:       list.New(),
		maxSize:   config.MaxSizeBytes,
		sizeOf:    sizeOf,
		now:       time.Now,
		metricsOn: config.EnableMetrics,
	}
}

// Get retrieves a value from cache. Expired entries are dropped on access.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.count(&c.misses)
		return nil, false
	}
	ent := elem.Value.(*entry)
	if !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.count(&c.misses)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.count(&c.hits)
	return ent.value, true
}

// Set stores a value. A ttl of zero keeps the entry until it is evicted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	size := c.sizeOf(key, value)

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = expiresAt
		ent.size = size
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(&entry{key: key, value: value, expiresAt: expiresAt, size: size})
		c.currentSize += size
		c.count(&c.keysAdded)
	}

	for c.maxSize > 0 && c.currentSize > c.maxSize && c.lru.Len() > 1 {
		c.removeElement(c.lru.Back())
		c.count(&c.keysEvicted)
	}
	return nil
}

// Delete removes a value from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries from cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.currentSize = 0
	return nil
}

// Close is a no-op for the memory cache.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	return &cache.Metrics{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		KeysAdded:   c.keysAdded.Load(),
		KeysEvicted: c.keysEvicted.Load(),
	}
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the current total size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *Cache) count(counter *atomic.Uint64) {
	if c.metricsOn {
		counter.Add(1)
	}
}

// removeElement must be called with c.mu held.
func (c *Cache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}
