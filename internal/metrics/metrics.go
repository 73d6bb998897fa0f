package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invocations counts finished pipeline runs by route and outcome
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topwr_rag_invocations_total",
			Help: "Total number of pipeline invocations",
		},
		[]string{"route", "outcome"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topwr_rag_invocation_duration_seconds",
			Help:    "Pipeline invocation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topwr_rag_node_duration_seconds",
			Help:    "Duration of a single pipeline node in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	// CorrectionAttempts observes how many corrections a retrieval run needed
	CorrectionAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topwr_rag_correction_attempts",
			Help:    "Query correction attempts per retrieval invocation",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	NodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topwr_rag_node_failures_total",
			Help: "Fatal node failures by node and error kind",
		},
		[]string{"node", "kind"},
	)

	SchemaRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topwr_rag_schema_refreshes_total",
			Help: "Graph schema introspections by status",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topwr_rag_memory_sessions",
			Help: "Number of sessions held by the in-memory session store",
		},
	)
)
