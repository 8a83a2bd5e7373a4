package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are additive telemetry alongside the mandated per-response
// timing_blob (SPEC_FULL.md §2): cache effectiveness, per-verb query
// volume, and forward counts. PhaseSeconds is registered and exported
// but no code path records observations into it, so it stays empty.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	QueriesTotal   *prometheus.CounterVec
	ForwardedTotal prometheus.Counter
	PhaseSeconds   *prometheus.HistogramVec
}

// NewMetrics registers a fresh metric set against reg. Each node
// process should register exactly once.
func NewMetrics(reg prometheus.Registerer, nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crashmesh_cache_hits_total",
			Help:        "Result cache hits observed at this node.",
			ConstLabels: labels,
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crashmesh_cache_misses_total",
			Help:        "Result cache misses observed at this node.",
			ConstLabels: labels,
		}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crashmesh_queries_total",
			Help:        "Queries handled at this node, by verb.",
			ConstLabels: labels,
		}, []string{"verb"}),
		ForwardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crashmesh_forwarded_total",
			Help:        "Queries whose verb is forwarded, counted whether or not any peer is connected.",
			ConstLabels: labels,
		}),
		PhaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "crashmesh_phase_seconds",
			Help:        "Elapsed-since-query-began seconds recorded per phase.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"phase"}),
	}

	reg.MustRegister(m.CacheHits, m.CacheMisses, m.QueriesTotal, m.ForwardedTotal, m.PhaseSeconds)
	return m
}
