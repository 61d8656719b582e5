package hnsw

import (
	"github.com/xDarkicex/vecengine/internal/distance"
	"github.com/xDarkicex/vecengine/internal/lru"
)

// distCache memoizes node-to-node distances under a symmetric (ka, kb) key
// with LRU eviction. It is a retained hook and stays disabled (nil on the
// Index) by default: vector updates make cached pairs stale, so enabling it
// requires the invalidation below and is treated as a future optimization.
// Query vectors have no stable key and structurally cannot be memoized.
type distCache struct {
	cache *lru.Cache[float64]
}

func newDistCache(capacity int) *distCache {
	return &distCache{cache: lru.New[float64](capacity)}
}

// pairKey orders the two node keys so (a, b) and (b, a) share one entry.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

func (c *distCache) Get(a, b string) (float64, bool) {
	return c.cache.Get(pairKey(a, b))
}

func (c *distCache) Put(a, b string, d float64) {
	c.cache.Put(pairKey(a, b), d)
}

func (c *distCache) Invalidate() {
	c.cache.Clear()
}

// enableDistanceCache arms the memoization hook. Not reachable through any
// configuration option: the hook exists so the call sites stay honest about
// which distances have stable keys, not as a supported tuning knob yet.
func (idx *Index) enableDistanceCache(capacity int) {
	idx.distCache = newDistCache(capacity)
}

// distanceBetweenKeys computes the rounded distance between two stored
// nodes, consulting the memoization hook when armed. Custom distance
// functions are opaque and always bypass the cache; so do query vectors,
// which go through distanceBetween directly since they have no key.
func (idx *Index) distanceBetweenKeys(aKey string, aVec []float64, bKey string, bVec []float64) float64 {
	if idx.distCache == nil || idx.cfg.DistanceKind == distance.Custom {
		return idx.distanceBetween(aVec, bVec)
	}
	if d, ok := idx.distCache.Get(aKey, bKey); ok {
		return d
	}
	d := idx.distanceBetween(aVec, bVec)
	idx.distCache.Put(aKey, bKey, d)
	return d
}

// invalidateDistanceCache drops every memoized pair. Called whenever a
// stored vector changes, since any pair involving it is now stale.
func (idx *Index) invalidateDistanceCache() {
	if idx.distCache != nil {
		idx.distCache.Invalidate()
	}
}
