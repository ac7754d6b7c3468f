package memorycache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/asakaida/kizuna/pkg/cache"
)

const entryOverhead = 100

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
	size      int64
}

// Cache is an LRU cache with per-entry TTL, bounded by approximate size in bytes.
type Cache struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recently used

	maxSize     int64
	ttl         time.Duration
	currentSize int64
	now         func() time.Time

	metrics *cacheMetrics
}

type cacheMetrics struct {
	hits        uint64
	misses      uint64
	keysAdded   uint64
	keysEvicted uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes bounds the total approximate size; the least recently used entries are evicted past it.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called with a zero TTL.
	DefaultTTL time.Duration

	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) (*Cache, error) {
	c := &Cache{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		maxSize:   config.MaxSizeBytes,
		ttl:       config.DefaultTTL,
		now:       time.Now,
	}
	if config.EnableMetrics {
		c.metrics = &cacheMetrics{}
	}
	return c, nil
}

// Get retrieves a value and marks it most recently used.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.miss()
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.miss()
		return nil, false
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.hits++
	}
	return ent.value, true
}

// Set stores a value with the given TTL, or the default TTL when ttl is zero.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.ttl
	}
	size := sizeOf(key, value)
	expiresAt := c.now().Add(ttl)

	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry)
		c.currentSize += size - ent.size
		ent.value, ent.expiresAt, ent.size = value, expiresAt, size
		c.evictList.MoveToFront(elem)
	} else {
		elem := c.evictList.PushFront(&entry{key: key, value: value, expiresAt: expiresAt, size: size})
		c.items[key] = elem
		c.currentSize += size
		if c.metrics != nil {
			c.metrics.keysAdded++
		}
	}

	for c.currentSize > c.maxSize && c.evictList.Len() > 1 {
		c.removeElement(c.evictList.Back())
		if c.metrics != nil {
			c.metrics.keysEvicted++
		}
	}
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	return nil
}

// Close is a no-op for the memory cache.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &cache.Metrics{
		Hits:        c.metrics.hits,
		Misses:      c.metrics.misses,
		KeysAdded:   c.metrics.keysAdded,
		KeysEvicted: c.metrics.keysEvicted,
	}
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current total size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.misses++
	}
}

// removeElement must be called with the lock held.
func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func sizeOf(key string, value interface{}) int64 {
	size := int64(entryOverhead + len(key))
	switch v := value.(type) {
	case cache.Sizer:
		size += v.Size()
	case []byte:
		size += int64(len(v))
	case string:
		size += int64(len(v))
	}
	return size
}

var _ cache.Cache = (*Cache)(nil)
