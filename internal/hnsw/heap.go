package hnsw

import "container/heap"

// Candidate is a search candidate: a node key plus its distance to whatever
// query or node the surrounding search is centered on. seq breaks distance
// ties by insertion order, the stable tie-break the heap search loops rely
// on.
type Candidate struct {
	Key      string
	Distance float64
	seq      int
}

// minHeap orders candidates closest-first.
type minHeap struct {
	items []Candidate
	next  int
}

func newMinHeap() *minHeap { return &minHeap{} }

func (h *minHeap) Len() int { return len(h.items) }
func (h *minHeap) Less(i, j int) bool {
	if h.items[i].Distance != h.items[j].Distance {
		return h.items[i].Distance < h.items[j].Distance
	}
	return h.items[i].seq < h.items[j].seq
}
func (h *minHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *minHeap) Push(x interface{}) {
	c := x.(Candidate)
	c.seq = h.next
	h.next++
	h.items = append(h.items, c)
}
func (h *minHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *minHeap) push(c Candidate) { heap.Push(h, c) }
func (h *minHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *minHeap) peek() Candidate  { return h.items[0] }
func (h *minHeap) empty() bool      { return len(h.items) == 0 }

// maxHeap orders candidates farthest-first; used to keep a bounded
// "best ef seen so far" result set where the worst entry is evicted first.
type maxHeap struct {
	items []Candidate
	next  int
}

func newMaxHeap() *maxHeap { return &maxHeap{} }

func (h *maxHeap) Len() int { return len(h.items) }
func (h *maxHeap) Less(i, j int) bool {
	if h.items[i].Distance != h.items[j].Distance {
		return h.items[i].Distance > h.items[j].Distance
	}
	return h.items[i].seq > h.items[j].seq
}
func (h *maxHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *maxHeap) Push(x interface{}) {
	c := x.(Candidate)
	c.seq = h.next
	h.next++
	h.items = append(h.items, c)
}
func (h *maxHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *maxHeap) push(c Candidate) { heap.Push(h, c) }
func (h *maxHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *maxHeap) peek() Candidate  { return h.items[0] }
func (h *maxHeap) empty() bool      { return len(h.items) == 0 }

// snapshot returns a copy of the items without disturbing heap order.
func (h *maxHeap) snapshot() []Candidate {
	out := make([]Candidate, len(h.items))
	copy(out, h.items)
	return out
}
