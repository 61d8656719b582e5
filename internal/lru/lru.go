// Package lru implements the fixed-capacity, amortized-O(1) node-embedding
// cache that fronts the persistent node store.
package lru

import (
	"sync"

	hashlru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTargetBytes is the default memory budget for a cache before its
// capacity (in entries) is known to depend on vector dimension.
const DefaultTargetBytes = 50 * 1024 * 1024

// Cache is a thread-safe, fixed-capacity LRU keyed by node key. Get marks an
// entry most-recently-used without mutating value; Contains does not touch
// recency at all.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	inner    *hashlru.Cache[string, V]
}

// New creates a cache able to hold at most capacity entries. A capacity
// below 1 is raised to 1.
func New[V any](capacity int) *Cache[V] {
	if capacity < 1 {
		capacity = 1
	}
	inner, _ := hashlru.New[string, V](capacity)
	return &Cache[V]{capacity: capacity, inner: inner}
}

// Get returns the value for key and promotes it to most-recently-used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Contains reports whether key is present, without affecting recency.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Contains(key)
}

// Put inserts or updates key, making it most-recently-used, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, value)
}

// Keys returns all cached keys, most-recently-used first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.inner.Keys()
	out := make([]string, len(keys))
	for i := range keys {
		out[len(keys)-1-i] = keys[i]
	}
	return out
}

// Clear empties the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Capacity returns the configured maximum entry count.
func (c *Cache[V]) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Resize recomputes capacity for a known vector dimension and reallocates
// the underlying cache, discarding all current entries. targetBytes is the
// total memory budget; each entry is costed at 8 bytes per dimension
// (float64 vector elements).
func (c *Cache[V]) Resize(targetBytes int64, dim int) {
	if dim <= 0 {
		return
	}
	capacity := int(targetBytes / int64(8*dim))
	if capacity < 1 {
		capacity = 1
	}
	inner, _ := hashlru.New[string, V](capacity)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	c.inner = inner
}
