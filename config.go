package vecengine

import (
	"fmt"

	"github.com/xDarkicex/vecengine/internal/hnsw"
	"github.com/xDarkicex/vecengine/internal/kv"
	"github.com/xDarkicex/vecengine/internal/obs"
)

// Config holds the search manager's own configuration: the embedder, the
// index options it forwards to internal/hnsw, and the content table's
// identity within the shared key-value store.
type Config struct {
	Embedder Embedder

	// IndexOptions is forwarded verbatim to hnsw.New.
	IndexOptions []hnsw.Option

	// Store backs both the content table and (when UsePersistence is set
	// among IndexOptions) the index's node/metadata tables, unless
	// IndexOptions name a store of their own. When nil, the content table
	// uses a fresh kv.Memory.
	Store kv.Store

	// ContentStoreName namespaces this manager's content records within
	// Store, so multiple managers may share one underlying key-value engine.
	ContentStoreName string

	// Metrics is optional; when set, Add/Update/Delete/Search/Compact
	// report through it.
	Metrics *obs.Metrics
}

// Option configures a Manager at construction.
type Option func(*Config) error

// DefaultConfig returns a Config with no embedder and the content store
// name "default"; WithEmbedder is mandatory.
func DefaultConfig() *Config {
	return &Config{ContentStoreName: "default"}
}

func (c *Config) validate() error {
	if c.Embedder == nil {
		return fmt.Errorf("vecengine: embedder is required")
	}
	return nil
}

// WithEmbedder sets the required embedding collaborator.
func WithEmbedder(e Embedder) Option {
	return func(c *Config) error {
		if e == nil {
			return fmt.Errorf("vecengine: embedder must not be nil")
		}
		c.Embedder = e
		return nil
	}
}

// WithIndexOptions forwards options to the underlying hnsw.Index.
func WithIndexOptions(opts ...hnsw.Option) Option {
	return func(c *Config) error {
		c.IndexOptions = append(c.IndexOptions, opts...)
		return nil
	}
}

// WithStore sets the embedded key-value engine backing the content table
// (and, if persistence is enabled via WithIndexOptions, the index).
func WithStore(store kv.Store) Option {
	return func(c *Config) error {
		c.Store = store
		return nil
	}
}

// WithContentStoreName namespaces this manager's content records.
func WithContentStoreName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("vecengine: content_store_name must not be empty")
		}
		c.ContentStoreName = name
		return nil
	}
}

// WithMetrics attaches a Metrics instance the manager reports through.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Config) error {
		c.Metrics = m
		return nil
	}
}
