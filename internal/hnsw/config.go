package hnsw

import (
	"fmt"
	"math"
	"time"

	"github.com/xDarkicex/vecengine/internal/distance"
	"github.com/xDarkicex/vecengine/internal/kv"
)

// Config holds HNSW index configuration parameters. Dimension is not
// configured directly: it is learned from the first node ever written and
// enforced thereafter (first-set-wins).
type Config struct {
	M                    int
	MMax0                int
	EfConstruction       int
	EfSearch             int
	ML                   float64
	DistanceKind         distance.Kind
	CustomDistance       distance.Func
	DistancePrecision    int
	Seed                 int64
	UsePersistence       bool
	ClearOnInit          bool
	PrefetchSizeOverride *int
	TargetCacheBytes     int64
	AutosaveEnabled      bool
	AutosaveDelay        time.Duration

	// Store is the embedded key-value engine backing persistence. Required
	// when UsePersistence is true; ignored otherwise.
	Store kv.Store

	// Metrics is optional; when set, Insert/Query/Compact report through it.
	Metrics *Metrics

	// Logger receives autosave failures, the one condition that is
	// logged-and-swallowed rather than surfaced to a caller. Defaults to a
	// no-op.
	Logger Logger
}

// Logger is the minimal injectable sink for conditions that are logged
// rather than propagated (autosave failures). Satisfied trivially by the
// standard library's *log.Logger via its Printf method.
type Logger interface {
	Printf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...interface{}) {}

// Option configures an Index at construction.
type Option func(*Config) error

// DefaultConfig returns the configuration used when no options are
// supplied.
func DefaultConfig() *Config {
	m := 16
	return &Config{
		M:                 m,
		MMax0:             2 * m,
		EfConstruction:    100,
		EfSearch:          50,
		ML:                1 / math.Log(float64(m)),
		DistanceKind:      distance.CosinePrenormalized,
		DistancePrecision: 6,
		Seed:              time.Now().UnixNano(),
		UsePersistence:    true,
		ClearOnInit:       false,
		TargetCacheBytes:  50 * 1024 * 1024,
		AutosaveEnabled:   false,
		AutosaveDelay:     5 * time.Second,
		Logger:            noopLogger{},
	}
}

func (c *Config) validate() error {
	if c.M <= 1 {
		return fmt.Errorf("hnsw: m must be >= 2")
	}
	if c.MMax0 <= 0 {
		return fmt.Errorf("hnsw: m_max_0 must be positive")
	}
	if c.EfConstruction <= 0 {
		return fmt.Errorf("hnsw: ef_construction must be positive")
	}
	if c.EfSearch <= 0 {
		return fmt.Errorf("hnsw: ef_search must be positive")
	}
	if c.ML <= 0 {
		return fmt.Errorf("hnsw: ml must be positive")
	}
	if c.DistancePrecision < 0 {
		return fmt.Errorf("hnsw: distance_precision must be >= 0")
	}
	if c.DistanceKind == distance.Custom && c.CustomDistance == nil {
		return fmt.Errorf("hnsw: custom distance kind requires a distance function")
	}
	if c.UsePersistence && c.Store == nil {
		return fmt.Errorf("hnsw: use_persistence requires a store")
	}
	return nil
}

// WithM sets the target neighbor count per layer above layer 0.
func WithM(m int) Option {
	return func(c *Config) error {
		if m <= 1 {
			return fmt.Errorf("hnsw: m must be >= 2")
		}
		// m_max_0 keeps tracking 2*m unless it was set to another value.
		if c.MMax0 == 0 || c.MMax0 == 2*c.M {
			c.MMax0 = 2 * m
		}
		c.M = m
		return nil
	}
}

// WithMMax0 overrides the layer-0 neighbor cap (defaults to 2*m).
func WithMMax0(mMax0 int) Option {
	return func(c *Config) error {
		if mMax0 <= 0 {
			return fmt.Errorf("hnsw: m_max_0 must be positive")
		}
		c.MMax0 = mMax0
		return nil
	}
}

// WithEfConstruction sets the candidate beam width used during insert and
// update.
func WithEfConstruction(ef int) Option {
	return func(c *Config) error {
		if ef <= 0 {
			return fmt.Errorf("hnsw: ef_construction must be positive")
		}
		c.EfConstruction = ef
		return nil
	}
}

// WithEfSearch sets the default candidate beam width used during query.
func WithEfSearch(ef int) Option {
	return func(c *Config) error {
		if ef <= 0 {
			return fmt.Errorf("hnsw: ef_search must be positive")
		}
		c.EfSearch = ef
		return nil
	}
}

// WithML overrides the level-decay normalizer (defaults to 1/ln(m)).
func WithML(ml float64) Option {
	return func(c *Config) error {
		if ml <= 0 {
			return fmt.Errorf("hnsw: ml must be positive")
		}
		c.ML = ml
		return nil
	}
}

// WithDistanceKind selects cosine, cosine-prenormalized, or custom scoring.
func WithDistanceKind(kind distance.Kind) Option {
	return func(c *Config) error {
		c.DistanceKind = kind
		return nil
	}
}

// WithCustomDistance installs an opaque distance function. It is used only
// when DistanceKind is distance.Custom, and bypasses any distance cache.
func WithCustomDistance(fn distance.Func) Option {
	return func(c *Config) error {
		c.CustomDistance = fn
		return nil
	}
}

// WithDistancePrecision sets the number of decimals edge distances are
// rounded to before being stored or compared.
func WithDistancePrecision(precision int) Option {
	return func(c *Config) error {
		if precision < 0 {
			return fmt.Errorf("hnsw: distance_precision must be >= 0")
		}
		c.DistancePrecision = precision
		return nil
	}
}

// WithSeed fixes the level-sampling RNG for deterministic topologies.
func WithSeed(seed int64) Option {
	return func(c *Config) error {
		c.Seed = seed
		return nil
	}
}

// WithPersistence configures the durable store. Passing use=false disables
// persistence entirely (store may be nil).
func WithPersistence(store kv.Store, use bool, clearOnInit bool) Option {
	return func(c *Config) error {
		c.Store = store
		c.UsePersistence = use
		c.ClearOnInit = clearOnInit
		return nil
	}
}

// WithTargetCacheBytes sets the node-embedding cache's memory budget, used
// to derive its entry capacity once the vector dimension is known.
func WithTargetCacheBytes(bytes int64) Option {
	return func(c *Config) error {
		if bytes <= 0 {
			return fmt.Errorf("hnsw: target_cache_bytes must be positive")
		}
		c.TargetCacheBytes = bytes
		return nil
	}
}

// WithPrefetchSizeOverride pins the prefetch pending-set cap instead of
// deriving it from the current cache capacity.
func WithPrefetchSizeOverride(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("hnsw: prefetch_size_override must be positive")
		}
		c.PrefetchSizeOverride = &n
		return nil
	}
}

// WithMetrics attaches a Metrics instance the index reports through.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) error {
		c.Metrics = m
		return nil
	}
}

// WithAutosave enables debounced incremental saves: any mutation
// (re)schedules a one-shot timer delay in the future.
func WithAutosave(enabled bool, delay time.Duration) Option {
	return func(c *Config) error {
		c.AutosaveEnabled = enabled
		if delay > 0 {
			c.AutosaveDelay = delay
		}
		return nil
	}
}

// WithLogger installs the sink for logged-and-swallowed autosave failures.
func WithLogger(l Logger) Option {
	return func(c *Config) error {
		if l != nil {
			c.Logger = l
		}
		return nil
	}
}
