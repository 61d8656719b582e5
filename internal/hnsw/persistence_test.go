package hnsw_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/vecengine/internal/hnsw"
	"github.com/xDarkicex/vecengine/internal/kv"
)

// A save followed by a new instance over the same store must answer a
// query exactly like the instance that did the saving.
func TestSaveAndReloadPreservesQueryResults(t *testing.T) {
	store := kv.NewMemory()

	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	require.NoError(t, idx.Insert("c", []float64{0, 0, 1}, nil))
	require.NoError(t, idx.Save())

	before, distBefore, err := idx.Query([]float64{0, 1, 0}, 2)
	require.NoError(t, err)

	reloaded, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	reloaded.Ready()

	after, distAfter, err := reloaded.Query([]float64{0, 1, 0}, 2)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, distBefore, distAfter)
}

// After a successful IncrementalSave, DirtyStats().DirtyNodes is 0.
func TestIncrementalSaveClearsDirtySet(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()

	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	assert.Greater(t, idx.DirtyStats().DirtyNodes, 0)

	require.NoError(t, idx.IncrementalSave())
	assert.Equal(t, 0, idx.DirtyStats().DirtyNodes)
}

// IncrementalSave is a no-op (but not an error) when nothing is dirty.
func TestIncrementalSaveNoopWhenClean(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()
	require.NoError(t, idx.IncrementalSave())
	assert.Equal(t, 0, idx.DirtyStats().DirtyNodes)
}

// Save, reload, insert more into the reloaded instance: queries find both
// the original and the newly inserted nodes.
func TestReloadThenInsertMoreFindsBoth(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Save())

	reloaded, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	reloaded.Ready()
	require.NoError(t, reloaded.Insert("b", []float64{0, 1, 0}, nil))

	keysA, _, err := reloaded.Query([]float64{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keysA)

	keysB, _, err := reloaded.Query([]float64{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keysB)
}

// Dirty-stats lifecycle across insert, save, update, and incremental save.
func TestDirtyStatsLifecycle(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()

	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	assert.Greater(t, idx.DirtyStats().DirtyNodes, 0)

	require.NoError(t, idx.Save())
	assert.Equal(t, 0, idx.DirtyStats().DirtyNodes)

	require.NoError(t, idx.Update("a", []float64{1, 1, 0}))
	assert.Equal(t, 1, idx.DirtyStats().DirtyNodes)

	require.NoError(t, idx.IncrementalSave())
	assert.Equal(t, 0, idx.DirtyStats().DirtyNodes)
}

// Save -> load -> save again produces an identical metadata record (the
// graph snapshot bytes are stable).
func TestExportLoadExportIsStructurallyStable(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Insert("b", []float64{0, 1, 0}, nil))
	require.NoError(t, idx.Insert("c", []float64{0, 0, 1}, nil))
	require.NoError(t, idx.Save())

	firstExport, err := store.Get("m:graph")
	require.NoError(t, err)

	reloaded, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	reloaded.Ready()
	require.NoError(t, reloaded.Save())

	secondExport, err := store.Get("m:graph")
	require.NoError(t, err)

	assert.Equal(t, firstExport, secondExport)
}

// A reloaded index re-learns the stored dimension: a wrong-length vector
// fails instead of being accepted as a fresh first-set-wins dimension.
func TestReloadRestoresDimension(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Save())

	reloaded, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	reloaded.Ready()

	err = reloaded.Insert("b", []float64{1, 0}, nil)
	require.ErrorIs(t, err, hnsw.ErrDimensionMismatch)
}

func TestClearOnInitTruncatesPriorState(t *testing.T) {
	store := kv.NewMemory()
	idx, err := hnsw.New(hnsw.WithPersistence(store, true, false))
	require.NoError(t, err)
	idx.Ready()
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))
	require.NoError(t, idx.Save())

	cleared, err := hnsw.New(hnsw.WithPersistence(store, true, true))
	require.NoError(t, err)
	cleared.Ready()
	assert.Equal(t, 0, cleared.Size())
}

// autosave failure is logged and the timer is kept armed for retry; a
// subsequent successful save still clears the dirty set.
func TestAutosaveRetriesAfterLoggedFailure(t *testing.T) {
	store := &failOnceStore{Store: kv.NewMemory()}
	logger := &recordingLogger{}
	idx, err := hnsw.New(
		hnsw.WithPersistence(store, true, false),
		hnsw.WithAutosave(true, 10*time.Millisecond),
		hnsw.WithLogger(logger),
	)
	require.NoError(t, err)
	idx.Ready()

	store.failNext = true
	require.NoError(t, idx.Insert("a", []float64{1, 0, 0}, nil))

	require.Eventually(t, func() bool {
		return idx.DirtyStats().DirtyNodes == 0
	}, time.Second, 5*time.Millisecond)

	assert.NotEmpty(t, logger.messages)
}

type failOnceStore struct {
	kv.Store
	failNext bool
}

func (s *failOnceStore) Set(key string, value []byte) error {
	if s.failNext && key == "m:graph" {
		s.failNext = false
		return assert.AnError
	}
	return s.Store.Set(key, value)
}

type recordingLogger struct {
	messages []string
}

func (l *recordingLogger) Printf(format string, args ...interface{}) {
	l.messages = append(l.messages, format)
}
