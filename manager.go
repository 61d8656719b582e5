// Package vecengine is the public facade: a Manager glues an external
// Embedder, the persisted content table (internal/contentstore), and the
// HNSW vector index (internal/hnsw) into document-level add/update/delete/
// get/search/compact/stats operations.
package vecengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xDarkicex/vecengine/internal/contentstore"
	"github.com/xDarkicex/vecengine/internal/hnsw"
	"github.com/xDarkicex/vecengine/internal/kv"
	"github.com/xDarkicex/vecengine/internal/obs"
)

// Metrics is the manager-level metrics type (re-exported from internal/obs
// so callers don't need to import it directly to wire vecengine.WithMetrics).
type Metrics = obs.Metrics

// NewMetrics registers a fresh set of manager metrics. See obs.NewMetrics.
func NewMetrics() *Metrics { return obs.NewMetrics() }

// Result is one joined hit from Search: the index's key/distance paired
// with the content store's text and metadata.
type Result struct {
	Key        string
	Text       string
	Distance   float64
	Similarity float64
	Metadata   map[string]interface{}
}

// Stats summarizes the index's node population.
type Stats struct {
	TotalNodes   int
	ActiveNodes  int
	DeletedNodes int
}

// Manager is the search manager: embed, store text, index the vector, and
// join the two back together on search.
type Manager struct {
	embedder Embedder
	content  *contentstore.Store
	index    *hnsw.Index
	metrics  *Metrics
}

// New constructs a Manager. The underlying hnsw.Index is constructed here
// too (via opts.IndexOptions), so its own asynchronous load (if
// persistence is enabled) is already in flight by the time New returns;
// callers don't need to await readiness themselves — every index query or
// mutation a Manager method makes blocks on the index's own Ready() gate.
// Get reads only the content store and does not wait.
func New(opts ...Option) (*Manager, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("vecengine: invalid option: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	indexOpts := cfg.IndexOptions
	if cfg.Store != nil {
		// Hand the shared store to the index unless its own options set one.
		indexOpts = append(append([]hnsw.Option(nil), indexOpts...), func(c *hnsw.Config) error {
			if c.Store == nil {
				c.Store = cfg.Store
			}
			return nil
		})
	}
	idx, err := hnsw.New(indexOpts...)
	if err != nil {
		return nil, fmt.Errorf("vecengine: build index: %w", err)
	}

	store := cfg.Store
	if store == nil {
		store = kv.NewMemory()
	}
	content := contentstore.NewNamed(store, cfg.ContentStoreName)

	return &Manager{
		embedder: cfg.Embedder,
		content:  content,
		index:    idx,
		metrics:  cfg.Metrics,
	}, nil
}

// Add embeds text, stores it alongside id (caller-supplied or freshly
// generated), and inserts its vector into the index. It returns the id used.
func (m *Manager) Add(ctx context.Context, text string, id string, metadata map[string]interface{}) (string, error) {
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return "", embedFailedError(err)
	}
	if id == "" {
		id = uuid.New().String()
	}
	if err := m.content.Put(id, text, metadata); err != nil {
		return "", err
	}
	if err := m.index.Insert(id, vector, nil); err != nil {
		return "", err
	}
	if m.metrics != nil {
		m.metrics.DocumentAdds.Inc()
	}
	return id, nil
}

// Update replaces id's text (and therefore its vector). NotFound if id has
// no content record.
func (m *Manager) Update(ctx context.Context, id, newText string) error {
	existing, ok := m.content.Get(id)
	if !ok {
		return notFoundError(id)
	}
	vector, err := m.embedder.Embed(ctx, newText)
	if err != nil {
		return embedFailedError(err)
	}
	if err := m.content.Put(id, newText, existing.Metadata); err != nil {
		return err
	}
	if err := m.index.Update(id, vector); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.DocumentUpdates.Inc()
	}
	return nil
}

// Delete soft-deletes id's vector and removes its content record.
// NotFound if id has no content record.
func (m *Manager) Delete(id string) error {
	if _, ok := m.content.Get(id); !ok {
		return notFoundError(id)
	}
	if err := m.index.MarkDeleted(id); err != nil {
		return err
	}
	if err := m.content.Delete(id); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.DocumentDeletes.Inc()
	}
	return nil
}

// Get returns id's content record, if present.
func (m *Manager) Get(id string) (*contentstore.Record, bool) {
	return m.content.Get(id)
}

// Has reports whether id has both a content record and a live index entry.
func (m *Manager) Has(id string) bool {
	if _, ok := m.content.Get(id); !ok {
		return false
	}
	return m.index.Has(id)
}

// Search embeds queryText, queries the index for the k nearest live
// vectors, and joins the result with the content store. Ids present in the
// index but missing from the content store (a partial-failure artifact
// tolerated per I7) are silently dropped rather than surfaced as an error.
func (m *Manager) Search(ctx context.Context, queryText string, k int) ([]Result, error) {
	if k <= 0 {
		k = 3
	}
	start := time.Now()
	if m.metrics != nil {
		m.metrics.SearchQueries.Inc()
		defer func() { m.metrics.SearchLatency.Observe(time.Since(start).Seconds()) }()
	}

	vector, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		if m.metrics != nil {
			m.metrics.SearchErrors.Inc()
		}
		return nil, embedFailedError(err)
	}

	if m.index.Size() == 0 {
		return []Result{}, nil
	}

	keys, distances, err := m.index.Query(vector, k)
	if err != nil {
		if errors.Is(err, hnsw.ErrNotInitialized) {
			return []Result{}, nil
		}
		if m.metrics != nil {
			m.metrics.SearchErrors.Inc()
		}
		return nil, err
	}

	records := m.content.BulkGet(keys)
	results := make([]Result, 0, len(keys))
	for i, key := range keys {
		rec := records[i]
		if rec == nil {
			continue
		}
		d := distances[i]
		results = append(results, Result{
			Key:        key,
			Text:       rec.Text,
			Distance:   d,
			Similarity: 1 - d,
			Metadata:   rec.Metadata,
		})
	}
	return results, nil
}

// Compact rebuilds the index from currently live nodes, discarding
// soft-deleted ones. The content store is unaffected.
func (m *Manager) Compact() error {
	if err := m.index.Compact(); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.Compactions.Inc()
	}
	return nil
}

// GetStats reports total/active/deleted node counts.
func (m *Manager) GetStats() (Stats, error) {
	total, active, deleted, err := m.index.PopulationStats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalNodes: total, ActiveNodes: active, DeletedNodes: deleted}, nil
}
