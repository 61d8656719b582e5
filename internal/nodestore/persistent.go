package nodestore

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/xDarkicex/vecengine/internal/graph"
	"github.com/xDarkicex/vecengine/internal/kv"
	"github.com/xDarkicex/vecengine/internal/lru"
)

// NodeKeyPrefix namespaces node records within the shared key-value store,
// so callers managing the same store's "metadata" table know which keys are
// off-limits.
const NodeKeyPrefix = "n:"

const nodeKeyPrefix = NodeKeyPrefix

// Persistent is the Store variant used when use_persistence=true: an LRU
// front-cache backed by an embedded key-value store, with a best-first
// prefetcher that warms the cache from graph adjacency before declaring a
// key genuinely missing.
//
// layers is rebindable via SetLayers so a Load never leaves this store
// holding a stale pointer to the graph's prior layer sequence -- every
// prefetch reads the field fresh under the mutex rather than closing over a
// value captured at construction time.
type Persistent struct {
	mu     sync.Mutex
	kv     kv.Store
	cache  *lru.Cache[*Node]
	layers *graph.Layers

	// prefetchOverride, when > 0, pins the pending-fetch set cap instead of
	// deriving it from the cache's current capacity.
	prefetchOverride int
}

// NewPersistent creates a Persistent store backed by store and fronted by
// cache. layers may be nil until SetLayers is called (e.g. while an async
// load is still in flight); prefetch is simply a no-op until then.
func NewPersistent(store kv.Store, cache *lru.Cache[*Node]) *Persistent {
	return &Persistent{kv: store, cache: cache}
}

// SetLayers rebinds the graph layer sequence used to drive prefetch. Callers
// must invoke this after every Load so prefetch never walks the graph that
// existed before the load completed.
func (s *Persistent) SetLayers(layers *graph.Layers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = layers
}

// SetPrefetchOverride pins the prefetch pending-set cap. Zero restores the
// default of tracking the cache's current capacity.
func (s *Persistent) SetPrefetchOverride(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefetchOverride = n
}

// ResizeCache recomputes the front cache's capacity for a known vector
// dimension, discarding all cached entries.
func (s *Persistent) ResizeCache(targetBytes int64, dim int) {
	s.cache.Resize(targetBytes, dim)
}

func (s *Persistent) Size() int {
	n, _ := s.kv.Count(nodeKeyPrefix)
	return n
}

func (s *Persistent) Has(key string) bool {
	if s.cache.Contains(key) {
		return true
	}
	_, err := s.kv.Get(nodeKey(key))
	return err == nil
}

// Get returns the node for key, warming the cache via prefetch on a miss
// before giving up. level is the graph layer the lookup originated from; it
// seeds the prefetch's cross-layer distance penalty. Prefetch does nothing
// when no layers are bound or level is out of range, and a key may also be
// evicted again by the rest of the prefetched batch, so a final direct read
// against the backing store settles whether the key is genuinely missing.
func (s *Persistent) Get(key string, level int) (*Node, error) {
	if n, ok := s.cache.Get(key); ok {
		return n, nil
	}
	s.prefetch(key, level)
	if n, ok := s.cache.Get(key); ok {
		return n, nil
	}
	data, err := s.kv.Get(nodeKey(key))
	if err != nil {
		return nil, &MissingError{Key: key}
	}
	node, err := decodeNode(data)
	if err != nil {
		return nil, fmt.Errorf("nodestore: get %q: %w", key, err)
	}
	s.cache.Put(key, node)
	return node, nil
}

func (s *Persistent) Set(key string, node *Node) error {
	data, err := encodeNode(node)
	if err != nil {
		return err
	}
	if err := s.kv.Set(nodeKey(key), data); err != nil {
		return fmt.Errorf("nodestore: set %q: %w", key, err)
	}
	s.cache.Put(key, node)
	return nil
}

func (s *Persistent) BulkSet(nodes map[string]*Node) error {
	entries := make([]kv.Entry, 0, len(nodes))
	for k, n := range nodes {
		data, err := encodeNode(n)
		if err != nil {
			return err
		}
		entries = append(entries, kv.Entry{Key: nodeKey(k), Value: data})
	}
	if err := s.kv.BatchSet(entries); err != nil {
		return fmt.Errorf("nodestore: bulk set: %w", err)
	}
	for k, n := range nodes {
		s.cache.Put(k, n)
	}
	return nil
}

func (s *Persistent) Keys() []string {
	entries, _ := s.kv.List(nodeKeyPrefix)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key[len(nodeKeyPrefix):])
	}
	return keys
}

func (s *Persistent) Clear() error {
	entries, err := s.kv.List(nodeKeyPrefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.kv.Delete(e.Key); err != nil {
			return err
		}
	}
	s.cache.Clear()
	return nil
}

func nodeKey(key string) string {
	return nodeKeyPrefix + key
}

func encodeNode(n *Node) ([]byte, error) {
	buf := make([]byte, 1+4+8*len(n.Vector))
	if n.IsDeleted {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(n.Vector)))
	off := 5
	for _, v := range n.Vector {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
		off += 8
	}
	return buf, nil
}

func decodeNode(data []byte) (*Node, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("nodestore: corrupt node record (%d bytes)", len(data))
	}
	deleted := data[0] != 0
	dim := binary.LittleEndian.Uint32(data[1:5])
	want := 5 + 8*int(dim)
	if len(data) != want {
		return nil, fmt.Errorf("nodestore: corrupt node record: want %d bytes, got %d", want, len(data))
	}
	vec := make([]float64, dim)
	off := 5
	for i := range vec {
		bits := binary.LittleEndian.Uint64(data[off : off+8])
		vec[i] = math.Float64frombits(bits)
		off += 8
	}
	return &Node{Vector: vec, IsDeleted: deleted}, nil
}

// prefetchItem is a candidate key queued for warming, ordered by cumulative
// edge distance from the lookup's origin key.
type prefetchItem struct {
	key  string
	dist float64
}

type prefetchHeap []prefetchItem

func (h prefetchHeap) Len() int            { return len(h) }
func (h prefetchHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h prefetchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *prefetchHeap) Push(x interface{}) { *h = append(*h, x.(prefetchItem)) }
func (h *prefetchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// crossLayerPenalty is added per layer of distance between the originating
// lookup level and a candidate discovered via a different layer's adjacency.
const crossLayerPenalty = 0.1

// prefetch runs a best-first walk over graph adjacency starting at key,
// accumulating a pending-fetch set capped at the cache's current capacity,
// then issues one batched read against the backing store and warms the
// cache with everything it found. Keys discovered through layers other than
// level are penalized by crossLayerPenalty per layer of difference, so
// nearby cross-layer structure is still preferred to distant same-layer
// structure.
func (s *Persistent) prefetch(key string, level int) {
	s.mu.Lock()
	layers := s.layers
	override := s.prefetchOverride
	s.mu.Unlock()
	if layers == nil || level < 0 || level >= layers.Len() {
		return
	}

	capacity := s.cache.Capacity()
	if override > 0 {
		capacity = override
	}
	pending := make(map[string]struct{})
	seen := map[string]struct{}{key: {}}

	h := &prefetchHeap{}
	heap.Init(h)
	heap.Push(h, prefetchItem{key: key, dist: 0})

	for h.Len() > 0 && len(pending) < capacity {
		item := heap.Pop(h).(prefetchItem)
		if !s.cache.Contains(item.key) {
			pending[item.key] = struct{}{}
		}

		for nk, d := range layers.Neighbors(level, item.key) {
			if _, ok := seen[nk]; ok {
				continue
			}
			seen[nk] = struct{}{}
			heap.Push(h, prefetchItem{key: nk, dist: item.dist + d})
		}

		for l := 0; l < layers.Len(); l++ {
			if l == level {
				continue
			}
			neighbors := layers.Neighbors(l, item.key)
			if neighbors == nil {
				continue
			}
			penalty := crossLayerPenalty * math.Abs(float64(l-level))
			for nk, d := range neighbors {
				if _, ok := seen[nk]; ok {
					continue
				}
				seen[nk] = struct{}{}
				if layers.HasNode(level, nk) {
					heap.Push(h, prefetchItem{key: nk, dist: item.dist + d + penalty})
				} else if !s.cache.Contains(nk) {
					pending[nk] = struct{}{}
				}
			}
		}
	}

	if len(pending) == 0 {
		return
	}
	keys := make([]string, 0, len(pending))
	kvKeys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
		kvKeys = append(kvKeys, nodeKey(k))
	}
	found, err := s.kv.BatchGet(kvKeys)
	if err != nil {
		return
	}
	for _, k := range keys {
		data, ok := found[nodeKey(k)]
		if !ok {
			continue
		}
		node, err := decodeNode(data)
		if err != nil {
			continue
		}
		s.cache.Put(k, node)
	}
}
