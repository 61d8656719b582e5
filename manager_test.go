package vecengine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vecengine "github.com/xDarkicex/vecengine"
	"github.com/xDarkicex/vecengine/internal/hnsw"
)

// hashEmbedder is a deterministic stand-in embedder: it turns text into a
// fixed-dimension bag-of-characters vector over the lower-cased text, so
// identical text always embeds to the identical vector and the distinct
// texts used below embed to distinct vectors.
type hashEmbedder struct{ dim int }

func (h hashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, h.dim)
	for i, r := range strings.ToLower(text) {
		v[i%h.dim] += float64(r)
	}
	v[0] += 1 // keep the zero vector out of reach for empty text
	return v, nil
}

func newManager(t *testing.T) *vecengine.Manager {
	t.Helper()
	m, err := vecengine.New(
		vecengine.WithEmbedder(hashEmbedder{dim: 8}),
		vecengine.WithIndexOptions(hnsw.WithPersistence(nil, false, false)),
	)
	require.NoError(t, err)
	return m
}

func TestAddAndGet(t *testing.T) {
	m := newManager(t)
	id, err := m.Add(context.Background(), "hello world", "", map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, "hello world", rec.Text)
	assert.Equal(t, "v", rec.Metadata["k"])
}

func TestAddWithExplicitID(t *testing.T) {
	m := newManager(t)
	id, err := m.Add(context.Background(), "hello", "custom-id", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom-id", id)
}

// Adding the same text twice yields two distinct ids, both present and
// both returned by search.
func TestAddSameTextTwiceYieldsTwoDistinctIDs(t *testing.T) {
	m := newManager(t)
	id1, err := m.Add(context.Background(), "hello", "", nil)
	require.NoError(t, err)
	id2, err := m.Add(context.Background(), "hello", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	results, err := m.Search(context.Background(), "hello", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	keys := []string{results[0].Key, results[1].Key}
	assert.ElementsMatch(t, []string{id1, id2}, keys)
	for _, r := range results {
		assert.Equal(t, "hello", r.Text)
	}
}

func TestUpdatePreservesMetadata(t *testing.T) {
	m := newManager(t)
	id, err := m.Add(context.Background(), "hello", "", map[string]interface{}{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, m.Update(context.Background(), id, "goodbye"))

	rec, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, "goodbye", rec.Text)
	assert.Equal(t, "v", rec.Metadata["k"])
}

func TestUpdateMissingIDFails(t *testing.T) {
	m := newManager(t)
	err := m.Update(context.Background(), "missing", "text")
	require.ErrorIs(t, err, vecengine.ErrNotFound)
}

func TestDeleteRemovesContentAndIndexEntry(t *testing.T) {
	m := newManager(t)
	id, err := m.Add(context.Background(), "hello", "", nil)
	require.NoError(t, err)

	require.NoError(t, m.Delete(id))
	assert.False(t, m.Has(id))
	_, ok := m.Get(id)
	assert.False(t, ok)
}

func TestDeleteMissingIDFails(t *testing.T) {
	m := newManager(t)
	err := m.Delete("missing")
	require.ErrorIs(t, err, vecengine.ErrNotFound)
}

func TestHasReflectsBothStores(t *testing.T) {
	m := newManager(t)
	assert.False(t, m.Has("nope"))

	id, err := m.Add(context.Background(), "hello", "", nil)
	require.NoError(t, err)
	assert.True(t, m.Has(id))
}

func TestSearchOnEmptyManagerReturnsEmptySlice(t *testing.T) {
	m := newManager(t)
	results, err := m.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	m := newManager(t)
	_, err := m.Add(context.Background(), "apple", "", nil)
	require.NoError(t, err)
	_, err = m.Add(context.Background(), "banana", "", nil)
	require.NoError(t, err)

	results, err := m.Search(context.Background(), "apple", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "apple", results[0].Text)
}

func TestCompactAndStats(t *testing.T) {
	m := newManager(t)
	id1, err := m.Add(context.Background(), "apple", "", nil)
	require.NoError(t, err)
	_, err = m.Add(context.Background(), "banana", "", nil)
	require.NoError(t, err)
	require.NoError(t, m.Delete(id1))

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalNodes)
	assert.Equal(t, 1, stats.ActiveNodes)
	assert.Equal(t, 1, stats.DeletedNodes)

	require.NoError(t, m.Compact())

	stats, err = m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalNodes)
	assert.Equal(t, 0, stats.DeletedNodes)
}
