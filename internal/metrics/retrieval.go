package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "queries_total",
			Help:      "Total number of search queries",
		},
		[]string{"class", "outcome"}, // outcome: ok / degraded / invalid / unauthorized / timeout / unavailable
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "knolens",
			Name:      "query_duration_seconds",
			Help:      "End-to-end search query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"class"},
	)

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "knolens",
			Name:      "upstream_duration_seconds",
			Help:      "Retrieval upstream call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"upstream"}, // lexical / semantic
	)

	UpstreamFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "upstream_failures_total",
			Help:      "Total retrieval upstream failures",
		},
		[]string{"upstream"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "result_cache_total",
			Help:      "Result cache hits and misses by tier",
		},
		[]string{"tier", "result"}, // tier: l1 / l2; result: hit / miss
	)

	CacheInvalidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "cache_invalidations_total",
			Help:      "Total content-driven cache invalidations",
		},
	)

	DroppedCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "dropped_candidates_total",
			Help:      "Candidates dropped from results",
		},
		[]string{"reason"}, // access_denied / no_valid_version
	)
)

// Embedding provider metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "knolens",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knolens",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// RegisterRetrievalMetrics registers pipeline and embedding metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryDuration,
		UpstreamDuration,
		UpstreamFailuresTotal,
		ResultCacheTotal,
		CacheInvalidationsTotal,
		DroppedCandidatesTotal,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingCacheTotal,
	)
}
