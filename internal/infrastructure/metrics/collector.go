package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/asakaida/remotemodel/pkg/cache"
	"github.com/asakaida/remotemodel/pkg/cache/memorycache"
)

// Collector aggregates per-operation call metrics and exposes the filter
// program cache statistics.
// Operations are "Model.method" for ModelService invocations and the full
// gRPC method name otherwise.
type Collector struct {
	calls    sync.Map // map[string]*uint64 - operation -> count
	errors   sync.Map // map[string]*uint64 - operation -> error count
	duration sync.Map // map[string]*durationValue - operation -> total duration in seconds

	// Filter program cache (optional)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds filter program cache metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// CallMetrics holds per-operation call metrics.
type CallMetrics struct {
	CallCounts           map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// Operations returns the operation names seen so far, sorted
func (m *CallMetrics) Operations() []string {
	out := make([]string, 0, len(m.CallCounts))
	for op := range m.CallCounts {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the filter program cache to report on.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordCall records an invocation.
func (c *Collector) RecordCall(operation string) {
	atomic.AddUint64(c.counter(&c.calls, operation), 1)
}

// RecordError records a failed invocation.
func (c *Collector) RecordError(operation string) {
	atomic.AddUint64(c.counter(&c.errors, operation), 1)
}

// RecordDuration records the duration of an invocation in seconds.
func (c *Collector) RecordDuration(operation string, durationSeconds float64) {
	val, _ := c.duration.LoadOrStore(operation, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// GetCacheMetrics returns current filter program cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GetCallMetrics returns current per-operation metrics.
func (c *Collector) GetCallMetrics() *CallMetrics {
	result := &CallMetrics{
		CallCounts:           make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.calls.Range(func(key, value interface{}) bool {
		result.CallCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	c.errors.Range(func(key, value interface{}) bool {
		result.ErrorCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	c.duration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

func (c *Collector) counter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
