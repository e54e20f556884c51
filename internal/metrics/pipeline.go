package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval and reranking pipeline metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstream",
			Name:      "search_requests_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"mode", "status"}, // mode: "dense" / "hybrid"
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragstream",
			Name:      "search_request_duration_seconds",
			Help:      "Retrieval request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	RerankRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstream",
			Name:      "rerank_requests_total",
			Help:      "Total number of rerank requests",
		},
		[]string{"provider", "model", "status"}, // status: "success" / "degraded"
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstream",
			Name:      "generation_tokens_total",
			Help:      "Total answer tokens streamed by the generator",
		},
		[]string{"provider", "model"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers retrieval and rerank metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	prometheus.MustRegister(RerankRequestsTotal)
	prometheus.MustRegister(GenerationTokensTotal)
	pipelineMetricsRegistered = true
}
