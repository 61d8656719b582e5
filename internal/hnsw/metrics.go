package hnsw

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms an Index reports. Nil is a
// valid Config.Metrics value; every call site guards against it so metrics
// stay entirely optional.
type Metrics struct {
	Inserts      prometheus.Counter
	Queries      prometheus.Counter
	Compactions  prometheus.Counter
	QueryLatency prometheus.Histogram
	DirtyNodes   prometheus.Gauge
}

// NewMetrics registers a fresh set of vecengine metrics against the default
// prometheus registry. Call it once per process; constructing more than one
// Index that share a process should share a single Metrics value.
func NewMetrics() *Metrics {
	return &Metrics{
		Inserts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_inserts_total",
			Help: "Total node insertions across all layers.",
		}),
		Queries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_queries_total",
			Help: "Total index queries.",
		}),
		Compactions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_compactions_total",
			Help: "Total compact() runs.",
		}),
		QueryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "vecengine_query_latency_seconds",
			Help: "Query latency in seconds.",
		}),
		DirtyNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vecengine_dirty_nodes",
			Help: "Current size of the (key, layer) dirty set.",
		}),
	}
}

func (idx *Index) reportDirty() {
	if idx.cfg.Metrics == nil {
		return
	}
	idx.cfg.Metrics.DirtyNodes.Set(float64(len(idx.dirty)))
}
