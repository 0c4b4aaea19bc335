package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/halfpace/pkg/metrics"
)

// Readiness reports whether the estimator can serve predictions.
type Readiness interface {
	Ready() error
}

type healthResponse struct {
	Status    string `json:"status"`
	Estimator string `json:"estimator"`
	Error     string `json:"error,omitempty"`
}

// HealthHandler handles health check and metrics requests.
type HealthHandler struct {
	readiness Readiness
	metrics   http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(readiness Readiness) *HealthHandler {
	return &HealthHandler{
		readiness: readiness,
		metrics:   promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz requests. The process is live whenever it
// answers; a failing estimator turns the status into "degraded" with 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	if h.readiness == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Estimator: "unknown"})
		return
	}
	if err := h.readiness.Ready(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "degraded",
			Estimator: "unavailable",
			Error:     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Estimator: "ready"})
}

// HandleMetrics handles GET /metrics requests from our custom registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
