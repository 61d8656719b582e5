package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/vecengine/internal/graph"
)

func TestAddEdgeAndNeighbors(t *testing.T) {
	l := graph.New()
	l.AddEdge(0, "a", "b", 0.5)
	l.AddEdge(0, "a", "c", 0.25)

	n := l.Neighbors(0, "a")
	require.Len(t, n, 2)
	assert.Equal(t, 0.5, n["b"])
	assert.Equal(t, 0.25, n["c"])
}

func TestRemoveEdge(t *testing.T) {
	l := graph.New()
	l.AddEdge(0, "a", "b", 0.5)
	l.RemoveEdge(0, "a", "b")
	assert.Empty(t, l.Neighbors(0, "a"))
}

// Edges are directed, not structurally symmetric.
func TestEdgesAreDirected(t *testing.T) {
	l := graph.New()
	l.AddEdge(0, "a", "b", 0.5)
	assert.Nil(t, l.Neighbors(0, "b"))
}

func TestRemoveNodeDropsOwnAdjacencyOnly(t *testing.T) {
	l := graph.New()
	l.AddEdge(0, "a", "b", 0.5)
	l.AddEdge(0, "b", "a", 0.5)
	l.RemoveNode(0, "a")

	assert.False(t, l.HasNode(0, "a"))
	assert.True(t, l.HasNode(0, "b"))
	assert.Contains(t, l.Neighbors(0, "b"), "a") // directed edge from b survives
}

func TestEnsureLevelsGrowsSequence(t *testing.T) {
	l := graph.New()
	assert.Equal(t, 0, l.Len())
	l.EnsureLevels(3)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 2, l.TopLevel())
}

func TestTruncateTop(t *testing.T) {
	l := graph.New()
	l.EnsureLevels(2)
	l.TruncateTop()
	assert.Equal(t, 1, l.Len())
}

func TestClear(t *testing.T) {
	l := graph.New()
	l.AddEdge(0, "a", "b", 0.5)
	l.Clear()
	assert.Equal(t, 0, l.Len())
}

// Snapshot/load round trip preserves structure exactly, including
// multi-layer topology and sorted-key determinism.
func TestSnapshotLoadRoundTrip(t *testing.T) {
	l := graph.New()
	l.AddEdge(0, "a", "b", 0.1)
	l.AddEdge(0, "a", "c", 0.2)
	l.AddEdge(0, "b", "a", 0.1)
	l.AddEdge(1, "a", "c", 0.3)
	l.EnsureLevels(3)

	data := l.Snapshot()
	loaded, err := graph.Load(data)
	require.NoError(t, err)

	assert.Equal(t, l.Len(), loaded.Len())
	assert.Equal(t, l.Neighbors(0, "a"), loaded.Neighbors(0, "a"))
	assert.Equal(t, l.Neighbors(0, "b"), loaded.Neighbors(0, "b"))
	assert.Equal(t, l.Neighbors(1, "a"), loaded.Neighbors(1, "a"))

	// byte-stable: snapshotting the reloaded sequence reproduces the same bytes.
	assert.Equal(t, data, loaded.Snapshot())
}

func TestSnapshotEmptySequence(t *testing.T) {
	l := graph.New()
	data := l.Snapshot()
	loaded, err := graph.Load(data)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadCorruptDataErrors(t *testing.T) {
	_, err := graph.Load([]byte{0x01, 0x02})
	require.Error(t, err)
}
