package hnsw

import (
	"fmt"

	"github.com/xDarkicex/vecengine/internal/graph"
)

// Update replaces key's stored vector and re-prunes the neighborhoods it
// touches. Absent keys fail with ErrNodeNotFound.
func (idx *Index) Update(key string, newVector []float64) error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.nodes.Has(key) {
		return nodeNotFoundError(key)
	}
	if err := idx.checkDimension(newVector); err != nil {
		return err
	}
	n, err := idx.nodes.Get(key, 0)
	if err != nil {
		return err
	}
	n.Vector = newVector
	if err := idx.nodes.Set(key, n); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	idx.invalidateDistanceCache()
	if err := idx.updateLocked(key, newVector); err != nil {
		return err
	}
	idx.scheduleAutosave()
	return nil
}

// updateLocked re-prunes every layer-neighborhood key participates in and
// re-indexes its own outgoing edges. It is shared with Insert's
// soft-delete-revival path, which replays it after clearing the flag.
func (idx *Index) updateLocked(key string, vector []float64) error {
	if idx.nodes.Size() == 1 {
		return nil
	}

	topLevel := idx.layers.TopLevel()
	for l := 0; l <= topLevel; l++ {
		if !idx.layers.HasNode(l, key) {
			continue
		}
		if err := idx.rebuildSecondDegree(key, l); err != nil {
			return err
		}
		idx.markDirty(key, l)
	}
	return idx.reindexOutgoing(key, vector)
}

// rebuildSecondDegree recomputes level's adjacency for every first-degree
// neighbor of key, drawing candidates from the second-degree neighborhood
// (key itself, its first-degree neighbors, and their neighbors), deduped
// before heap admission.
func (idx *Index) rebuildSecondDegree(key string, level int) error {
	firstDegree := idx.layers.Neighbors(level, key)

	neighborhood := make(map[string]struct{}, len(firstDegree)*2+1)
	neighborhood[key] = struct{}{}
	for nk := range firstDegree {
		neighborhood[nk] = struct{}{}
	}
	for nk := range firstDegree {
		for nnk := range idx.layers.Neighbors(level, nk) {
			neighborhood[nnk] = struct{}{}
		}
	}

	maxSize := idx.cfg.M
	if level == 0 {
		maxSize = idx.cfg.MMax0
	}

	for n := range firstDegree {
		nVec, _, err := idx.vectorOf(n, level)
		if err != nil {
			return err
		}

		h := newMaxHeap()
		for member := range neighborhood {
			if member == n {
				continue
			}
			mVec, _, err := idx.vectorOf(member, level)
			if err != nil {
				return err
			}
			h.push(Candidate{Key: member, Distance: idx.distanceBetweenKeys(n, nVec, member, mVec)})
			if h.Len() > idx.cfg.EfConstruction {
				h.pop()
			}
		}

		selected, err := idx.selectNeighbors(h.snapshot(), maxSize, level)
		if err != nil {
			return err
		}
		neighbors := make(graph.Neighbors, len(selected))
		for _, s := range selected {
			neighbors[s.Key] = s.Distance
		}
		idx.layers.SetNeighbors(level, n, neighbors)
	}
	return nil
}

// reindexOutgoing replays the insert layer-descent for an already-placed
// node: ef=1 above its own top layer, ef=ef_construction+1 at and below,
// with the node itself excluded from its own candidate set.
func (idx *Index) reindexOutgoing(key string, vector []float64) error {
	topLevel := idx.layers.TopLevel()
	ownTop := -1
	for l := topLevel; l >= 0; l-- {
		if idx.layers.HasNode(l, key) {
			ownTop = l
			break
		}
	}
	if ownTop < 0 {
		return nil
	}

	entryVec, _, err := idx.vectorOf(idx.entryPoint, topLevel)
	if err != nil {
		return err
	}
	current := Candidate{Key: idx.entryPoint, Distance: idx.distanceBetween(vector, entryVec)}

	for l := topLevel; l > ownTop; l-- {
		current, err = idx.searchLayerEf1(vector, current, l, false)
		if err != nil {
			return err
		}
	}

	for l := ownTop; l >= 0; l-- {
		candidates, err := idx.searchLayerBeam(vector, []Candidate{current}, l, idx.cfg.EfConstruction+1, false)
		if err != nil {
			return err
		}
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.Key != key {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			best := filtered[0]
			for _, c := range filtered[1:] {
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
		selected, err := idx.selectNeighbors(filtered, maxSize, l)
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
	return nil
}
