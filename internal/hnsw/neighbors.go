package hnsw

// selectNeighbors implements the diversity-based neighbor heuristic: given
// at least maxSize candidates, drain them closest-first and accept a
// candidate only if it is no closer to every already-accepted neighbor than
// it is to the node being connected. This favors spread-out neighbors over
// a tight cluster, matching the selection strategy of widely deployed HNSW
// implementations.
func (idx *Index) selectNeighbors(candidates []Candidate, maxSize int, level int) ([]Candidate, error) {
	if len(candidates) < maxSize {
		out := make([]Candidate, len(candidates))
		copy(out, candidates)
		return out, nil
	}

	h := newMinHeap()
	for _, c := range candidates {
		h.push(c)
	}

	selected := make([]Candidate, 0, maxSize)
	selectedVecs := make([][]float64, 0, maxSize)

	for !h.empty() && len(selected) < maxSize {
		c := h.pop()
		cVec, _, err := idx.vectorOf(c.Key, level)
		if err != nil {
			return nil, err
		}

		accept := true
		for i, sv := range selectedVecs {
			if idx.distanceBetweenKeys(c.Key, cVec, selected[i].Key, sv) < c.Distance {
				accept = false
				break
			}
		}
		if accept {
			selected = append(selected, c)
			selectedVecs = append(selectedVecs, cVec)
		}
	}
	return selected, nil
}
