package hnsw

import (
	"sort"
	"time"
)

// searchLayerEf1 performs a single-candidate greedy descent within one
// layer: it maintains a running best, popping the closest unexplored
// candidate and stopping as soon as a pop cannot possibly improve on it.
// Deleted nodes are traversed (pushed for further expansion) but never
// become the returned best unless canReturnDeleted is set.
func (idx *Index) searchLayerEf1(query []float64, entry Candidate, level int, canReturnDeleted bool) (Candidate, error) {
	visited := map[string]struct{}{entry.Key: {}}
	h := newMinHeap()
	h.push(entry)

	best := entry
	if _, deleted, err := idx.vectorOf(entry.Key, level); err != nil {
		return Candidate{}, err
	} else if deleted && !canReturnDeleted {
		best = Candidate{Key: "", Distance: entry.Distance}
	}

	for !h.empty() {
		c := h.pop()
		if best.Key != "" && c.Distance > best.Distance {
			break
		}
		for nk := range idx.layers.Neighbors(level, c.Key) {
			if _, ok := visited[nk]; ok {
				continue
			}
			visited[nk] = struct{}{}
			nVec, deleted, err := idx.vectorOf(nk, level)
			if err != nil {
				return Candidate{}, err
			}
			d := idx.distanceBetween(query, nVec)
			if (best.Key == "" || d < best.Distance) && (!deleted || canReturnDeleted) {
				best = Candidate{Key: nk, Distance: d}
			}
			h.push(Candidate{Key: nk, Distance: d})
		}
	}
	if best.Key == "" {
		return entry, nil
	}
	return best, nil
}

// searchLayerBeam runs a bounded candidate-beam search within one layer,
// seeded from entryPoints, returning up to ef results as an unsorted slice.
func (idx *Index) searchLayerBeam(query []float64, entryPoints []Candidate, level int, ef int, canReturnDeleted bool) ([]Candidate, error) {
	visited := make(map[string]struct{}, len(entryPoints))
	candidates := newMinHeap()
	results := newMaxHeap()

	seedInto := func(c Candidate) error {
		_, deleted, err := idx.vectorOf(c.Key, level)
		if err != nil {
			return err
		}
		candidates.push(c)
		if !deleted || canReturnDeleted {
			results.push(c)
			if results.Len() > ef {
				results.pop()
			}
		}
		return nil
	}

	for _, ep := range entryPoints {
		if _, ok := visited[ep.Key]; ok {
			continue
		}
		visited[ep.Key] = struct{}{}
		if err := seedInto(ep); err != nil {
			return nil, err
		}
	}

	for !candidates.empty() {
		c := candidates.pop()
		if results.Len() >= ef && c.Distance > results.peek().Distance {
			break
		}
		for nk := range idx.layers.Neighbors(level, c.Key) {
			if _, ok := visited[nk]; ok {
				continue
			}
			visited[nk] = struct{}{}

			nVec, deleted, err := idx.vectorOf(nk, level)
			if err != nil {
				return nil, err
			}
			d := idx.distanceBetween(query, nVec)
			full := results.Len() >= ef
			shouldExpand := !full || d < results.peek().Distance

			if deleted {
				// Always kept reachable for traversal regardless of
				// whether it would improve the result set.
				candidates.push(Candidate{Key: nk, Distance: d})
				if canReturnDeleted && shouldExpand {
					results.push(Candidate{Key: nk, Distance: d})
					if results.Len() > ef {
						results.pop()
					}
				}
				continue
			}
			if shouldExpand {
				candidates.push(Candidate{Key: nk, Distance: d})
				results.push(Candidate{Key: nk, Distance: d})
				if results.Len() > ef {
					results.pop()
				}
			}
		}
	}
	return results.snapshot(), nil
}

// Query returns up to k nearest live keys to query, descending greedily
// from the top layer down to layer 1 (ef=1) and beam-searching layer 0 with
// ef = max(k, configured ef_search). Deleted nodes are never returned.
func (idx *Index) Query(query []float64, k int) (keys []string, distances []float64, err error) {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.cfg.Metrics != nil {
		start := time.Now()
		idx.cfg.Metrics.Queries.Inc()
		defer func() { idx.cfg.Metrics.QueryLatency.Observe(time.Since(start).Seconds()) }()
	}
	if !idx.hasEntryPoint {
		return nil, nil, ErrNotInitialized
	}
	if err := idx.checkDimension(query); err != nil {
		return nil, nil, err
	}

	entryVec, _, err := idx.vectorOf(idx.entryPoint, idx.layers.TopLevel())
	if err != nil {
		return nil, nil, err
	}
	current := Candidate{Key: idx.entryPoint, Distance: idx.distanceBetween(query, entryVec)}

	for level := idx.layers.TopLevel(); level >= 1; level-- {
		current, err = idx.searchLayerEf1(query, current, level, false)
		if err != nil {
			return nil, nil, err
		}
	}

	ef := k
	if idx.cfg.EfSearch > ef {
		ef = idx.cfg.EfSearch
	}
	results, err := idx.searchLayerBeam(query, []Candidate{current}, 0, ef, false)
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	keys = make([]string, len(results))
	distances = make([]float64, len(results))
	for i, r := range results {
		keys[i] = r.Key
		distances[i] = r.Distance
	}
	return keys, distances, nil
}
