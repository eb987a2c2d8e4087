package cache

import (
	"sort"
	"sync"
	"time"
)

// CacheTable keeps one value per table together with when it was last loaded.
type CacheTable[V any] struct {
	ttl time.Duration

	mu    sync.Mutex
	items map[string]*item[V]
}

type item[V any] struct {
	value      V
	timeUpdate time.Time
}

// NewCacheTable reports entries older than ttl as stale; ttl <= 0 never expires.
func NewCacheTable[V any](ttl time.Duration) *CacheTable[V] {
	return &CacheTable[V]{ttl: ttl, items: make(map[string]*item[V])}
}

// Get returns the cached value and whether it needs reloading.
func (c *CacheTable[V]) Get(tableID string) (value V, stale bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[tableID]
	if !ok {
		return value, false, false
	}
	return it.value, c.ttl > 0 && time.Since(it.timeUpdate) > c.ttl, true
}

// GetOrCreate returns the existing value or stores the one built by create.
func (c *CacheTable[V]) GetOrCreate(tableID string, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[tableID]; ok {
		return it.value
	}
	v := create()
	// zero time: a new entry is stale until its first load
	c.items[tableID] = &item[V]{value: v}
	return v
}

// Touch marks the entry as freshly loaded.
func (c *CacheTable[V]) Touch(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[tableID]; ok {
		it.timeUpdate = time.Now()
	}
}

// Keys returns the cached table ids in order.
func (c *CacheTable[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
