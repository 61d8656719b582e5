package hnsw

import (
	"fmt"

	"github.com/xDarkicex/vecengine/internal/graph"
	"github.com/xDarkicex/vecengine/internal/nodestore"
)

// Insert adds key with vector to the index. If level is nil a level is
// sampled; otherwise *level is used as the new node's top layer.
//
// Re-inserting a live key fails with ErrDuplicateKey. Re-inserting a
// soft-deleted key clears the flag, replaces its vector, and re-indexes it
// via Update, retaining its original level; level is ignored on this path.
// If entry-point migration had dropped the key from the graph entirely, it
// is placed afresh at a newly sampled level instead.
func (idx *Index) Insert(key string, vector []float64, level *int) error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.insertLocked(key, vector, level); err != nil {
		return err
	}
	if idx.cfg.Metrics != nil {
		idx.cfg.Metrics.Inserts.Inc()
	}
	return nil
}

// BulkInsert inserts many (key, vector) pairs in request order. It is not
// transactional: a failure partway through leaves prior insertions in
// place, mirroring the single-insert failure semantics applied one at a
// time. The first error encountered stops the batch and is returned.
func (idx *Index) BulkInsert(keys []string, vectors [][]float64) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("hnsw: bulk insert: %d keys but %d vectors", len(keys), len(vectors))
	}
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, key := range keys {
		if err := idx.insertLocked(key, vectors[i], nil); err != nil {
			return err
		}
		if idx.cfg.Metrics != nil {
			idx.cfg.Metrics.Inserts.Inc()
		}
	}
	return nil
}

func (idx *Index) insertLocked(key string, vector []float64, levelOverride *int) error {
	if idx.nodes.Has(key) {
		existing, err := idx.nodes.Get(key, 0)
		if err != nil {
			return err
		}
		if !existing.IsDeleted {
			return duplicateKeyError(key)
		}
		if err := idx.checkDimension(vector); err != nil {
			return err
		}
		existing.IsDeleted = false
		existing.Vector = vector
		if err := idx.nodes.Set(key, existing); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
		idx.invalidateDistanceCache()
		// A revived key normally still has its adjacency and only needs its
		// neighborhoods re-pruned; if entry-point migration had dropped it
		// from the graph entirely, it needs a full placement instead.
		if !idx.layers.HasNode(0, key) {
			if err := idx.placeInGraph(key, vector, idx.sampleLevel()); err != nil {
				return err
			}
		} else if err := idx.updateLocked(key, vector); err != nil {
			return err
		}
		idx.scheduleAutosave()
		return nil
	}

	if err := idx.checkDimension(vector); err != nil {
		return err
	}

	level := idx.sampleLevel()
	if levelOverride != nil {
		level = *levelOverride
	}

	node := &nodestore.Node{Vector: vector}
	if err := idx.nodes.Set(key, node); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if err := idx.placeInGraph(key, vector, level); err != nil {
		return err
	}
	idx.scheduleAutosave()
	return nil
}

// placeInGraph routes key into layers 0..level: greedy descent with ef=1
// from the top layer down to level+1, then beam search and heuristic
// neighbor selection at each layer from min(top, level) down to 0, adding
// the reverse edges and re-pruning each chosen neighbor. When level exceeds
// the current top, the new key becomes the entry point of the extended
// layers.
func (idx *Index) placeInGraph(key string, vector []float64, level int) error {
	if !idx.hasEntryPoint {
		idx.reseatAsEntryPoint(key, level)
		return nil
	}

	topLevel := idx.layers.TopLevel()
	entryVec, _, err := idx.vectorOf(idx.entryPoint, topLevel)
	if err != nil {
		return err
	}
	current := Candidate{Key: idx.entryPoint, Distance: idx.distanceBetween(vector, entryVec)}

	for l := topLevel; l > level; l-- {
		current, err = idx.searchLayerEf1(vector, current, l, false)
		if err != nil {
			return err
		}
	}

	startLevel := level
	if topLevel < startLevel {
		startLevel = topLevel
	}
	for l := startLevel; l >= 0; l-- {
		candidates, err := idx.searchLayerBeam(vector, []Candidate{current}, l, idx.cfg.EfConstruction, false)
		if err != nil {
			return err
		}
		if len(candidates) > 0 {
			best := candidates[0]
			for _, c := range candidates[1:] {
				if c.Distance < best.Distance {
					best = c
				}
			}
			current = best
		}

		maxSize := idx.cfg.M
		if l == 0 {
			maxSize = idx.cfg.MMax0
		}
		selected, err := idx.selectNeighbors(candidates, maxSize, l)
		if err != nil {
			return err
		}

		neighbors := make(graph.Neighbors, len(selected))
		for _, s := range selected {
			neighbors[s.Key] = s.Distance
		}
		idx.layers.SetNeighbors(l, key, neighbors)
		idx.markDirty(key, l)

		for _, s := range selected {
			idx.layers.AddEdge(l, s.Key, key, s.Distance)
			if err := idx.repruneNeighbor(s.Key, l); err != nil {
				return err
			}
		}
	}

	if level > topLevel {
		for l := topLevel + 1; l <= level; l++ {
			idx.layers.SetNeighbors(l, key, graph.Neighbors{})
			idx.markDirty(key, l)
		}
		idx.entryPoint = key
	}
	return nil
}

// repruneNeighbor reduces neighborKey's adjacency at level back down to the
// configured cap via the selection heuristic, after a new edge has already
// been added to its candidate set.
func (idx *Index) repruneNeighbor(neighborKey string, level int) error {
	maxSize := idx.cfg.M
	if level == 0 {
		maxSize = idx.cfg.MMax0
	}
	current := idx.layers.Neighbors(level, neighborKey)
	if len(current) <= maxSize {
		return nil
	}

	candidates := make([]Candidate, 0, len(current))
	for nk, d := range current {
		candidates = append(candidates, Candidate{Key: nk, Distance: d})
	}
	selected, err := idx.selectNeighbors(candidates, maxSize, level)
	if err != nil {
		return err
	}
	neighbors := make(graph.Neighbors, len(selected))
	for _, s := range selected {
		neighbors[s.Key] = s.Distance
	}
	idx.layers.SetNeighbors(level, neighborKey, neighbors)
	return nil
}
