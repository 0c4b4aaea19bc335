// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/pkg/logger"
)

const defaultMaxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	// Predict runs the whole pipeline for one description.
	Predict(ctx context.Context, req service.Request) (service.Prediction, error)

	// Ready reports whether the estimator can serve predictions.
	Ready() error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	predictHandler *PredictHandler

	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithRequestTimeout bounds each prediction request. Zero disables the deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		predictHandler: NewPredictHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(
		TimeoutMiddleware(s.predictHandler.HandlePredict, s.requestTimeout), "predict"))

	logger.Get().Debug(ctx, "api routes registered",
		logger.Any("routes", []string{"/healthz", "/metrics", "/stats", "/predict"}),
		logger.Int("requestTimeoutMs", int(s.requestTimeout.Milliseconds())),
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
