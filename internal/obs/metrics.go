// Package obs holds the manager-level prometheus metrics for the search
// manager. The index itself reports through its own hnsw.Metrics; this
// package covers the document-level operations layered on top:
// add/update/delete/search/compact.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and histograms a Manager reports. Nil is a
// valid value everywhere it's threaded through; callers guard against it so
// metrics stay entirely optional.
type Metrics struct {
	DocumentAdds    prometheus.Counter
	DocumentUpdates prometheus.Counter
	DocumentDeletes prometheus.Counter
	SearchQueries   prometheus.Counter
	SearchErrors    prometheus.Counter
	SearchLatency   prometheus.Histogram
	Compactions     prometheus.Counter
}

// NewMetrics registers a fresh set of manager metrics against the default
// prometheus registry. The metric names are fixed, so construct at most one
// per process and share it across Managers.
func NewMetrics() *Metrics {
	return &Metrics{
		DocumentAdds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_manager_document_adds_total",
			Help: "Total documents added through the search manager.",
		}),
		DocumentUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_manager_document_updates_total",
			Help: "Total documents updated through the search manager.",
		}),
		DocumentDeletes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_manager_document_deletes_total",
			Help: "Total documents deleted through the search manager.",
		}),
		SearchQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_manager_search_queries_total",
			Help: "Total search() calls.",
		}),
		SearchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_manager_search_errors_total",
			Help: "Total search() calls that returned an error.",
		}),
		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "vecengine_manager_search_latency_seconds",
			Help: "search() latency in seconds, embed through join.",
		}),
		Compactions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vecengine_manager_compactions_total",
			Help: "Total compact() runs issued through the search manager.",
		}),
	}
}
