package hnsw

import (
	"fmt"
	"sort"

	"github.com/xDarkicex/vecengine/internal/graph"
)

// Compact rebuilds the index from its currently live nodes, discarding
// soft-deleted ones and any dead adjacency they were keeping reachable.
// Surviving keys and vectors are preserved exactly; only graph topology may
// change, since levels are re-sampled from the index's own RNG in a fixed
// key order.
func (idx *Index) Compact() error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	keys := idx.nodes.Keys()
	type survivor struct {
		key    string
		vector []float64
	}
	survivors := make([]survivor, 0, len(keys))
	for _, k := range keys {
		n, err := idx.nodes.Get(k, 0)
		if err != nil {
			return err
		}
		if !n.IsDeleted {
			survivors = append(survivors, survivor{key: k, vector: n.Vector})
		}
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].key < survivors[j].key })

	if err := idx.nodes.Clear(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	idx.layers = graph.New()
	if idx.persistent != nil {
		idx.persistent.SetLayers(idx.layers)
	}
	idx.entryPoint = ""
	idx.hasEntryPoint = false
	idx.dirty = make(map[dirtyKey]struct{})
	idx.invalidateDistanceCache()

	for _, s := range survivors {
		if err := idx.insertLocked(s.key, s.vector, nil); err != nil {
			return err
		}
	}
	idx.scheduleAutosave()
	if idx.cfg.Metrics != nil {
		idx.cfg.Metrics.Compactions.Inc()
	}
	return nil
}
