// Package hnsw implements the layered Hierarchical Navigable Small World
// index: insert, update, soft-delete, query, compaction, and dirty-tracked
// persistence over a graph layer sequence (internal/graph) and a
// node-embedding store (internal/nodestore).
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/xDarkicex/vecengine/internal/distance"
	"github.com/xDarkicex/vecengine/internal/graph"
	"github.com/xDarkicex/vecengine/internal/kv"
	"github.com/xDarkicex/vecengine/internal/lru"
	"github.com/xDarkicex/vecengine/internal/nodestore"
)

// dirtyKey identifies a (node, layer) pair with unsaved mutations. Only the
// key an operation was addressed to is tracked; neighbors collaterally
// re-pruned along the way are persisted by the same metadata rewrite and
// are not tracked separately.
type dirtyKey struct {
	Key   string
	Layer int
}

// Index is the layered HNSW graph. All mutating and query methods block on
// ready() before touching state, so a caller never observes the index mid
// asynchronous load.
type Index struct {
	mu sync.Mutex

	cfg    *Config
	distFn distance.Func
	rng    *rand.Rand

	layers     *graph.Layers
	nodes      nodestore.Store
	persistent *nodestore.Persistent // non-nil iff cfg.UsePersistence

	entryPoint    string
	hasEntryPoint bool

	dim    int
	dimSet bool

	dirty map[dirtyKey]struct{}

	// distCache is the disabled-by-default node-pair distance memoization
	// hook; see distcache.go.
	distCache *distCache

	autosaveMu    sync.Mutex
	autosaveTimer *time.Timer

	readyCh   chan struct{}
	readyOnce sync.Once
}

// New constructs an Index. With UsePersistence and !ClearOnInit the
// constructor kicks off an asynchronous metadata load; Ready blocks until it
// (or the fallback to an empty state, on corrupt metadata) completes. With
// ClearOnInit the persisted store is truncated and Ready resolves
// immediately. Without persistence, Ready resolves immediately.
func New(opts ...Option) (*Index, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("hnsw: invalid option: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var distFn distance.Func
	if cfg.DistanceKind == distance.Custom {
		distFn = cfg.CustomDistance
	} else {
		fn, err := distance.For(cfg.DistanceKind)
		if err != nil {
			return nil, err
		}
		distFn = fn
	}

	idx := &Index{
		cfg:     cfg,
		distFn:  distFn,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		layers:  graph.New(),
		dirty:   make(map[dirtyKey]struct{}),
		readyCh: make(chan struct{}),
	}

	if !cfg.UsePersistence {
		idx.nodes = nodestore.NewInMemory()
		close(idx.readyCh)
		return idx, nil
	}

	cache := lru.New[*nodestore.Node](1)
	persistent := nodestore.NewPersistent(cfg.Store, cache)
	persistent.SetLayers(idx.layers)
	if cfg.PrefetchSizeOverride != nil {
		persistent.SetPrefetchOverride(*cfg.PrefetchSizeOverride)
	}
	idx.persistent = persistent
	idx.nodes = persistent

	if cfg.ClearOnInit {
		if err := clearPersistedState(cfg.Store); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
		close(idx.readyCh)
		return idx, nil
	}

	go idx.asyncLoad()
	return idx, nil
}

func clearPersistedState(store kv.Store) error {
	entries, err := store.List(nodestore.NodeKeyPrefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := store.Delete(e.Key); err != nil {
			return err
		}
	}
	return store.Delete(metadataKey)
}

// asyncLoad runs the persisted metadata load in the background and releases
// ready() once the persistent node store's layer reference has been rebound
// to the freshly loaded sequence, never before. CorruptMetadata is
// recovered silently, falling back to an empty initialized state.
func (idx *Index) asyncLoad() {
	if err := idx.load(); err != nil {
		idx.mu.Lock()
		idx.clear()
		idx.mu.Unlock()
	}
	close(idx.readyCh)
}

// Ready blocks until construction (including any async load) has completed.
func (idx *Index) Ready() {
	<-idx.readyCh
}

func (idx *Index) checkDimension(vector []float64) error {
	if !idx.dimSet {
		idx.dim = len(vector)
		idx.dimSet = true
		if idx.persistent != nil {
			idx.persistent.ResizeCache(idx.cfg.TargetCacheBytes, idx.dim)
		}
		return nil
	}
	if len(vector) != idx.dim {
		return dimensionMismatchError(idx.dim, len(vector))
	}
	return nil
}

func (idx *Index) distanceBetween(a, b []float64) float64 {
	return distance.Round(idx.distFn(a, b), idx.cfg.DistancePrecision)
}

func (idx *Index) vectorOf(key string, level int) ([]float64, bool, error) {
	n, err := idx.nodes.Get(key, level)
	if err != nil {
		return nil, false, err
	}
	return n.Vector, n.IsDeleted, nil
}

// sampleLevel draws level ~ floor(-ln(U) * ml), U uniform in (0,1].
func (idx *Index) sampleLevel() int {
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * idx.cfg.ML))
	if level < 0 {
		level = 0
	}
	return level
}

func (idx *Index) markDirty(key string, level int) {
	idx.dirty[dirtyKey{Key: key, Layer: level}] = struct{}{}
	idx.reportDirty()
}

// markDirtyAllLayers marks key dirty at every layer it currently occupies.
func (idx *Index) markDirtyAllLayers(key string) {
	for l := 0; l <= idx.layers.TopLevel(); l++ {
		if idx.layers.HasNode(l, key) {
			idx.markDirty(key, l)
		}
	}
}

// Size returns the total node count, live and soft-deleted.
func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.nodes.Size()
}

// Has reports whether key has a live (non-soft-deleted) node.
func (idx *Index) Has(key string) bool {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.nodes.Has(key) {
		return false
	}
	n, err := idx.nodes.Get(key, 0)
	if err != nil {
		return false
	}
	return !n.IsDeleted
}

// NeighborCounts returns, for every (layer, key) pair currently in the
// graph, the size of that key's neighbor set. Exposed so tests can assert
// the neighbor-count caps; not used by any production code path.
func (idx *Index) NeighborCounts() map[int]map[string]int {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make(map[int]map[string]int)
	for l := 0; l <= idx.layers.TopLevel(); l++ {
		layer := idx.layers.Layer(l)
		if layer == nil {
			continue
		}
		counts := make(map[string]int, len(layer))
		for key, neighbors := range layer {
			counts[key] = len(neighbors)
		}
		out[l] = counts
	}
	return out
}

// PopulationStats reports total, live, and soft-deleted node counts.
func (idx *Index) PopulationStats() (total, active, deleted int, err error) {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, key := range idx.nodes.Keys() {
		n, gerr := idx.nodes.Get(key, 0)
		if gerr != nil {
			return 0, 0, 0, gerr
		}
		total++
		if n.IsDeleted {
			deleted++
		} else {
			active++
		}
	}
	return total, active, deleted, nil
}

// reseatAsEntryPoint gives key a singleton graph presence at layers 0..level
// and makes it the entry point. Used for the first insert into an empty
// graph, and for a soft-deleted key coming back to life after entry-point
// migration had emptied the graph entirely.
func (idx *Index) reseatAsEntryPoint(key string, level int) {
	idx.layers.EnsureLevels(level + 1)
	for l := 0; l <= level; l++ {
		idx.layers.SetNeighbors(l, key, graph.Neighbors{})
		idx.markDirty(key, l)
	}
	idx.entryPoint = key
	idx.hasEntryPoint = true
}

// clear resets the index to an empty state (used by entry-point migration
// when no replacement exists anywhere, and as the CorruptMetadata fallback).
func (idx *Index) clear() {
	idx.layers = graph.New()
	if idx.persistent != nil {
		idx.persistent.SetLayers(idx.layers)
	}
	idx.entryPoint = ""
	idx.hasEntryPoint = false
}
