package hnsw

import "fmt"

// MarkDeleted flips key's soft-delete flag. Its adjacency is kept intact so
// traversal through it continues to work; it simply stops being selectable
// as a query result or as a newly written neighbor. If key is the current
// entry point, a replacement is sought top-down through the layer sequence.
func (idx *Index) MarkDeleted(key string) error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.nodes.Has(key) {
		return nodeNotFoundError(key)
	}
	n, err := idx.nodes.Get(key, 0)
	if err != nil {
		return err
	}
	if n.IsDeleted {
		return nil
	}
	n.IsDeleted = true
	if err := idx.nodes.Set(key, n); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	if idx.hasEntryPoint && idx.entryPoint == key {
		if err := idx.migrateEntryPoint(); err != nil {
			return err
		}
	}
	idx.markDirtyAllLayers(key)
	idx.scheduleAutosave()
	return nil
}

// UnMarkDeleted clears key's soft-delete flag, making it visible to queries
// and eligible as a neighbor again.
func (idx *Index) UnMarkDeleted(key string) error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.nodes.Has(key) {
		return nodeNotFoundError(key)
	}
	n, err := idx.nodes.Get(key, 0)
	if err != nil {
		return err
	}
	if !n.IsDeleted {
		return nil
	}
	n.IsDeleted = false
	if err := idx.nodes.Set(key, n); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if !idx.layers.HasNode(0, key) {
		// Entry-point migration dropped this key from the graph entirely;
		// give it back a placement so it is reachable again.
		if err := idx.placeInGraph(key, n.Vector, idx.sampleLevel()); err != nil {
			return err
		}
	}
	idx.markDirtyAllLayers(key)
	idx.scheduleAutosave()
	return nil
}

// migrateEntryPoint is called with key already flagged deleted and
// idx.entryPoint == key. It walks layers top-down, picking the first
// non-deleted node found at a layer as the new entry point; a layer with no
// survivor is dropped and the search continues one layer down. If no
// surviving node exists anywhere, the index resets to empty.
func (idx *Index) migrateEntryPoint() error {
	for idx.layers.TopLevel() >= 0 {
		level := idx.layers.TopLevel()
		for candidate := range idx.layers.Layer(level) {
			n, err := idx.nodes.Get(candidate, level)
			if err != nil {
				return err
			}
			if !n.IsDeleted {
				idx.entryPoint = candidate
				return nil
			}
		}
		idx.layers.TruncateTop()
	}
	idx.clear()
	return nil
}
