// Package chi wires the HTTP surface: the WebSocket chat endpoint,
// health reporting and Prometheus metrics.
package chi

import (
	"encoding/json"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstream/internal/usecase/health"
)

// errorResponse is the JSON body for non-2xx answers.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RouterConfig carries the dependencies of the HTTP router.
type RouterConfig struct {
	ChatHandler http.Handler
	Health      *health.Service
	APIKeys     []string
	Middlewares []func(http.Handler) http.Handler
	Logger      *zap.Logger
}

// NewRouter assembles the chi router with the shared middleware stack.
func NewRouter(cfg RouterConfig) gochi.Router {
	r := gochi.NewRouter()

	for _, mw := range cfg.Middlewares {
		r.Use(mw)
	}
	r.Use(BearerAuthMiddleware(cfg.APIKeys))

	r.Get("/healthz", healthHandler(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())

	if cfg.ChatHandler != nil {
		r.Handle("/chat-ws", cfg.ChatHandler)
	}

	return r
}

// healthHandler reports component health. Degraded and unhealthy states
// answer 503 so load balancers pull the instance out of rotation.
func healthHandler(svc *health.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeJSON(w, http.StatusOK, health.Report{Status: health.Healthy})
			return
		}

		report := svc.Check(r.Context())

		status := http.StatusOK
		if report.Status != health.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
