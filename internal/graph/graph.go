// Package graph implements the serializable layered adjacency structure
// shared by the in-memory HNSW runtime and its persisted metadata record.
package graph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Neighbors maps a neighbor key to the rounded edge distance.
type Neighbors map[string]float64

// Layer maps a node key to its neighbor set at one level of the graph.
type Layer map[string]Neighbors

// Layers is the ordered sequence of graph layers, layer 0 first.
type Layers struct {
	layers []Layer
}

// New returns an empty layer sequence.
func New() *Layers {
	return &Layers{}
}

// Len returns the number of layers (the current top layer is Len()-1).
func (l *Layers) Len() int {
	return len(l.layers)
}

// EnsureLevels grows the layer sequence so it has at least n levels,
// appending empty layers as needed.
func (l *Layers) EnsureLevels(n int) {
	for len(l.layers) < n {
		l.layers = append(l.layers, make(Layer))
	}
}

// Layer returns the layer at the given level, or nil if level is out of
// range.
func (l *Layers) Layer(level int) Layer {
	if level < 0 || level >= len(l.layers) {
		return nil
	}
	return l.layers[level]
}

// Neighbors returns the neighbor set for key at level, or nil if absent.
func (l *Layers) Neighbors(level int, key string) Neighbors {
	layer := l.Layer(level)
	if layer == nil {
		return nil
	}
	return layer[key]
}

// SetNeighbors replaces key's neighbor set at level, growing the layer
// sequence if necessary.
func (l *Layers) SetNeighbors(level int, key string, neighbors Neighbors) {
	l.EnsureLevels(level + 1)
	l.layers[level][key] = neighbors
}

// AddEdge adds (or overwrites) a directed edge key->neighbor at level with
// the given rounded distance.
func (l *Layers) AddEdge(level int, key, neighbor string, dist float64) {
	l.EnsureLevels(level + 1)
	if l.layers[level][key] == nil {
		l.layers[level][key] = make(Neighbors)
	}
	l.layers[level][key][neighbor] = dist
}

// RemoveEdge removes the directed edge key->neighbor at level, if present.
func (l *Layers) RemoveEdge(level int, key, neighbor string) {
	layer := l.Layer(level)
	if layer == nil {
		return
	}
	if n, ok := layer[key]; ok {
		delete(n, neighbor)
	}
}

// RemoveNode deletes key's own adjacency entries at level (but does not
// touch other nodes' edges pointing at key -- callers must prune those
// explicitly, since edges are directed and not structurally enforced to be
// symmetric).
func (l *Layers) RemoveNode(level int, key string) {
	layer := l.Layer(level)
	if layer == nil {
		return
	}
	delete(layer, key)
}

// HasNode reports whether key exists as a node at level, regardless of
// whether it currently has any neighbors there.
func (l *Layers) HasNode(level int, key string) bool {
	layer := l.Layer(level)
	if layer == nil {
		return false
	}
	_, ok := layer[key]
	return ok
}

// TopLevel returns the index of the last layer (Len()-1), whether or not it
// holds any node, or -1 if the sequence is empty.
func (l *Layers) TopLevel() int {
	return len(l.layers) - 1
}

// TruncateTop drops the current top layer. Used when an entry point's
// layer becomes empty after a deletion/migration.
func (l *Layers) TruncateTop() {
	if len(l.layers) > 0 {
		l.layers = l.layers[:len(l.layers)-1]
	}
}

// Clear empties all layers.
func (l *Layers) Clear() {
	l.layers = nil
}

// Snapshot serializes the layer sequence to a stable byte form:
// layerCount, then per layer: nodeCount, then per node: key, neighborCount,
// then per neighbor: key, distance (float64 LE). Keys are length-prefixed
// UTF-8. Map iteration order is non-deterministic, so keys within a layer
// are written in sorted order for a byte-stable round trip.
func (l *Layers) Snapshot() []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(l.layers)))
	for _, layer := range l.layers {
		keys := sortedKeys(layer)
		writeU32(&buf, uint32(len(keys)))
		for _, k := range keys {
			writeString(&buf, k)
			neighbors := layer[k]
			nkeys := sortedNeighborKeys(neighbors)
			writeU32(&buf, uint32(len(nkeys)))
			for _, nk := range nkeys {
				writeString(&buf, nk)
				binary.Write(&buf, binary.LittleEndian, neighbors[nk])
			}
		}
	}
	return buf.Bytes()
}

// Load rehydrates a Layers sequence from bytes produced by Snapshot.
func Load(data []byte) (*Layers, error) {
	r := bytes.NewReader(data)
	layerCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("graph: read layer count: %w", err)
	}
	l := &Layers{layers: make([]Layer, 0, layerCount)}
	for i := uint32(0); i < layerCount; i++ {
		nodeCount, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("graph: read node count: %w", err)
		}
		layer := make(Layer, nodeCount)
		for j := uint32(0); j < nodeCount; j++ {
			key, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("graph: read key: %w", err)
			}
			neighborCount, err := readU32(r)
			if err != nil {
				return nil, fmt.Errorf("graph: read neighbor count: %w", err)
			}
			neighbors := make(Neighbors, neighborCount)
			for k := uint32(0); k < neighborCount; k++ {
				nk, err := readString(r)
				if err != nil {
					return nil, fmt.Errorf("graph: read neighbor key: %w", err)
				}
				var dist float64
				if err := binary.Read(r, binary.LittleEndian, &dist); err != nil {
					return nil, fmt.Errorf("graph: read distance: %w", err)
				}
				neighbors[nk] = dist
			}
			layer[key] = neighbors
		}
		l.layers = append(l.layers, layer)
	}
	return l, nil
}

func sortedKeys(layer Layer) []string {
	keys := make([]string, 0, len(layer))
	for k := range layer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNeighborKeys(n Neighbors) []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeU32(buf *bytes.Buffer, v uint32) {
	binary.Write(buf, binary.LittleEndian, v)
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
