package hnsw_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/vecengine/internal/hnsw"
)

func newMemIndex(t *testing.T, opts ...hnsw.Option) *hnsw.Index {
	t.Helper()
	base := []hnsw.Option{hnsw.WithPersistence(nil, false, false)}
	idx, err := hnsw.New(append(base, opts...)...)
	require.NoError(t, err)
	idx.Ready()
	return idx
}

// A node's own vector is its nearest neighbor.
func TestQuerySelfIsNearest(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))

	keys, dists, err := idx.Query([]float64{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)
	assert.Less(t, dists[0], 1e-6)
}

// A soft-deleted node is never returned, but doesn't break traversal.
func TestQueryExcludesSoftDeleted(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	require.NoError(t, idx.Insert("c", []float64{0, 0, 1}, nil))
	require.NoError(t, idx.MarkDeleted("b"))

	keys, _, err := idx.Query([]float64{0, 1, 0}, 3)
	require.NoError(t, err)
	for _, k := range keys {
		assert.NotEqual(t, "b", k)
		assert.Contains(t, []string{"a", "c"}, k)
	}
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	err := idx.Insert("a", []float64{1, 0, 0}, nil)
	require.ErrorIs(t, err, hnsw.ErrDuplicateKey)
}

// Re-inserting a soft-deleted key succeeds.
func TestReinsertAfterSoftDeleteSucceeds(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	require.NoError(t, idx.MarkDeleted("a"))
	require.NoError(t, idx.Insert("a", []float64{0, 0, 1}, nil))

	keys, _, err := idx.Query([]float64{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

// Mark then unmark is a no-op observable via query.
func TestMarkUnmarkRoundTrip(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	require.NoError(t, idx.MarkDeleted("a"))
	require.NoError(t, idx.UnMarkDeleted("a"))

	keys, _, err := idx.Query([]float64{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

// Reviving the only node after its deletion emptied the graph makes it
// queryable again.
func TestReinsertLastDeletedNode(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.MarkDeleted("a"))
	require.NoError(t, idx.Insert("a", []float64{0, 1, 0}, nil))

	keys, _, err := idx.Query([]float64{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestUnmarkLastDeletedNodeRestoresQueryability(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.MarkDeleted("a"))
	require.NoError(t, idx.UnMarkDeleted("a"))

	keys, _, err := idx.Query([]float64{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

// Entry-point migration with >= 2 live nodes.
func TestEntryPointMigratesOnDelete(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	require.NoError(t, idx.MarkDeleted("a"))

	keys, _, err := idx.Query([]float64{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

// Exactly one live node: deleting it empties the index.
func TestEntryPointMigrationToEmpty(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.MarkDeleted("a"))

	_, _, err := idx.Query([]float64{1, 0, 0}, 1)
	require.ErrorIs(t, err, hnsw.ErrNotInitialized)
}

// Compact reclaims soft-deleted nodes, preserves survivors' vectors, and
// keeps every survivor findable.
func TestCompactPreservesSurvivors(t *testing.T) {
	idx := newMemIndex(t, hnsw.WithM(4), hnsw.WithMMax0(8))
	rng := rand.New(rand.NewSource(1))
	keys := make([]string, 10)
	vectors := make([][]float64, 10)
	for i := 0; i < 10; i++ {
		v := randomUnitVector(rng, 8)
		k := keyFor(i)
		keys[i] = k
		vectors[i] = v
		require.NoError(t, idx.Insert(k, v, nil))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.MarkDeleted(keys[i]))
	}

	total, active, deleted, err := idx.PopulationStats()
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, 5, active)
	assert.Equal(t, 5, deleted)

	require.NoError(t, idx.Compact())

	total, active, deleted, err = idx.PopulationStats()
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, active)
	assert.Equal(t, 0, deleted)

	for i := 5; i < 10; i++ {
		got, _, err := idx.Query(vectors[i], 1)
		require.NoError(t, err)
		require.Equal(t, []string{keys[i]}, got)
	}
}

// The neighbor cap is enforced at every layer.
func TestNeighborCapRespected(t *testing.T) {
	const m, mMax0 = 4, 8
	idx := newMemIndex(t, hnsw.WithM(m), hnsw.WithMMax0(mMax0))
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 60; i++ {
		v := randomUnitVector(rng, 6)
		require.NoError(t, idx.Insert(keyFor(i), v, nil))
	}

	counts := idx.NeighborCounts()
	for level, byKey := range counts {
		cap := m
		if level == 0 {
			cap = mMax0
		}
		for key, n := range byKey {
			assert.LessOrEqualf(t, n, cap, "key %q at layer %d has %d neighbors, cap %d", key, level, n, cap)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	err := idx.Insert("b", []float64{1, 0}, nil)
	require.ErrorIs(t, err, hnsw.ErrDimensionMismatch)
}

func TestNotFoundErrors(t *testing.T) {
	idx := newMemIndex(t)
	require.ErrorIs(t, idx.Update("missing", []float64{1, 0, 0}), hnsw.ErrNodeNotFound)
	require.ErrorIs(t, idx.MarkDeleted("missing"), hnsw.ErrNodeNotFound)
	require.ErrorIs(t, idx.UnMarkDeleted("missing"), hnsw.ErrNodeNotFound)
}

func TestQueryOnEmptyIndex(t *testing.T) {
	idx := newMemIndex(t)
	_, _, err := idx.Query([]float64{1, 0, 0}, 1)
	require.ErrorIs(t, err, hnsw.ErrNotInitialized)
}

func TestBulkInsert(t *testing.T) {
	idx := newMemIndex(t)
	keys := []string{"a", "b", "c"}
	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	require.NoError(t, idx.BulkInsert(keys, vectors))
	assert.Equal(t, 3, idx.Size())
}

// Dimension is constant across update too.
func TestUpdateDimensionMismatch(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	err := idx.Update("a", []float64{1, 0})
	require.ErrorIs(t, err, hnsw.ErrDimensionMismatch)
}

// After update, the node is still findable at its new location.
func TestUpdateRelocatesNode(t *testing.T) {
	idx := newMemIndex(t)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		require.NoError(t, idx.Insert(keyFor(i), randomUnitVector(rng, 5), nil))
	}
	newVec := randomUnitVector(rng, 5)
	require.NoError(t, idx.Update(keyFor(0), newVec))

	keys, _, err := idx.Query(newVec, 1)
	require.NoError(t, err)
	assert.Equal(t, keyFor(0), keys[0])
}

func randomUnitVector(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	var norm float64
	for i := range v {
		v[i] = rng.NormFloat64()
		norm += v[i] * v[i]
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func keyFor(i int) string {
	return string(rune('a'+i%26)) + string(rune('A'+i/26))
}
