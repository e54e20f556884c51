package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocket transport metrics.
var (
	WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragstream",
			Name:      "ws_connections_active",
			Help:      "Currently open WebSocket connections",
		},
	)

	WSTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstream",
			Name:      "ws_turns_total",
			Help:      "Total chat turns processed",
		},
		[]string{"status"}, // "success" / "error"
	)

	WSTokensStreamedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragstream",
			Name:      "ws_tokens_streamed_total",
			Help:      "Total tokens streamed to clients",
		},
	)
)

var wsMetricsRegistered bool

// RegisterWSMetrics registers WebSocket metrics. Must be called once from main.
func RegisterWSMetrics() {
	if wsMetricsRegistered {
		return
	}
	prometheus.MustRegister(WSConnectionsActive)
	prometheus.MustRegister(WSTurnsTotal)
	prometheus.MustRegister(WSTokensStreamedTotal)
	wsMetricsRegistered = true
}
