package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/kizuna/pkg/cache"
	"github.com/asakaida/kizuna/pkg/cache/memorycache"
)

// Fetch kinds reported by the store.
const (
	FetchRecord = "record"
	FetchMany   = "many"
	FetchLink   = "link"
)

// Collector aggregates request, fetch and link cache statistics in process.
type Collector struct {
	apiRequests sync.Map // method -> *uint64
	apiErrors   sync.Map // method -> *uint64
	apiDuration sync.Map // method -> *durationValue

	fetches     sync.Map // kind -> *uint64
	fetchErrors sync.Map // kind -> *uint64

	linkCacheHits   atomic.Uint64
	linkCacheMisses atomic.Uint64

	cache cache.Cache
}

type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds link cache metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// APIMetrics holds gRPC request metrics.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// FetchMetrics holds adapter call counts by fetch kind.
type FetchMetrics struct {
	Counts      map[string]uint64
	ErrorCounts map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache attaches the link cache so its size can be reported.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(method string) {
	atomic.AddUint64(counter(&c.apiRequests, method), 1)
}

// RecordError records an API error.
func (c *Collector) RecordError(method string) {
	atomic.AddUint64(counter(&c.apiErrors, method), 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(method string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(method, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordFetch records one adapter call of the given kind.
func (c *Collector) RecordFetch(kind string) {
	atomic.AddUint64(counter(&c.fetches, kind), 1)
}

// RecordFetchError records a failed adapter call of the given kind.
func (c *Collector) RecordFetchError(kind string) {
	atomic.AddUint64(counter(&c.fetchErrors, kind), 1)
}

// RecordLinkCacheHit records a link served from the cache.
func (c *Collector) RecordLinkCacheHit() {
	c.linkCacheHits.Add(1)
}

// RecordLinkCacheMiss records a link that had to be fetched.
func (c *Collector) RecordLinkCacheMiss() {
	c.linkCacheMisses.Add(1)
}

// GetCacheMetrics returns current link cache metrics.
// Hits and misses are counted by the caching adapter; size and evictions come from the cache itself.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	result := &CacheMetrics{
		Hits:   c.linkCacheHits.Load(),
		Misses: c.linkCacheMisses.Load(),
	}
	if total := result.Hits + result.Misses; total > 0 {
		result.HitRate = float64(result.Hits) / float64(total)
	}

	if c.cache == nil {
		return result
	}
	if m := c.cache.Metrics(); m != nil {
		result.Evictions = m.KeysEvicted
	}
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}
	return result
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        snapshot(&c.apiRequests),
		ErrorCounts:          snapshot(&c.apiErrors),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.apiDuration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// GetFetchMetrics returns adapter call counts.
func (c *Collector) GetFetchMetrics() *FetchMetrics {
	return &FetchMetrics{
		Counts:      snapshot(&c.fetches),
		ErrorCounts: snapshot(&c.fetchErrors),
	}
}

func counter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}

func snapshot(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}
