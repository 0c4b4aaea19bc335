// Package service provides the prediction pipeline that the HTTP API, the
// form page and the CLI share.
package service

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/session"
	"github.com/okian/halfpace/pkg/logger"
	"github.com/okian/halfpace/pkg/metrics"
	"github.com/okian/halfpace/pkg/tracing"
)

const (
	defaultProvider        = "custom"
	defaultSessionMaxSize  = 10_000
	maxCachedExtractorKeys = 256
)

// ExtractorFactory builds an extractor authenticated with apiKey.
type ExtractorFactory func(ctx context.Context, apiKey string) (extraction.Extractor, error)

// Service runs the prediction pipeline.
type Service struct {
	mu sync.RWMutex

	// Pipeline components
	estimator  estimator.Estimator
	factory    ExtractorFactory
	provider   string
	model      string
	extractors map[string]extraction.Extractor
	sessions   session.Store

	// Configuration
	defaultAPIKey    string
	rejectUnknownSex bool
	sessionMaxSize   int

	// State
	started bool
	stats   counters

	tracer trace.Tracer
	logger logger.Logger
}

type counters struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEstimator sets the regression model used for predictions.
func WithEstimator(est estimator.Estimator) Option {
	return func(s *Service) {
		s.estimator = est
	}
}

// WithExtractorFactory sets how extractors are built per API key. provider
// and model only label logs, spans and metrics.
func WithExtractorFactory(provider, model string, f ExtractorFactory) Option {
	return func(s *Service) {
		if provider != "" {
			s.provider = provider
		}
		s.model = model
		s.factory = f
	}
}

// WithExtractor uses ex for every request regardless of the API key.
func WithExtractor(provider string, ex extraction.Extractor) Option {
	return WithExtractorFactory(provider, "", func(context.Context, string) (extraction.Extractor, error) {
		return ex, nil
	})
}

// WithDefaultAPIKey sets the key used when a request carries none.
func WithDefaultAPIKey(key string) Option {
	return func(s *Service) {
		s.defaultAPIKey = key
	}
}

// WithRejectUnknownSex makes sex values other than M and K fail the prediction.
func WithRejectUnknownSex(reject bool) Option {
	return func(s *Service) {
		s.rejectUnknownSex = reject
	}
}

// WithSessionStore sets where form sessions keep their API key.
func WithSessionStore(store session.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.sessions = store
		}
	}
}

// WithSessionMaxSize bounds the default session store.
func WithSessionMaxSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.sessionMaxSize = size
		}
	}
}

// WithTracer sets the tracer used for pipeline spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		provider:       defaultProvider,
		extractors:     make(map[string]extraction.Extractor),
		sessionMaxSize: defaultSessionMaxSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.sessions == nil {
		s.sessions = session.NewInMemoryStore(session.WithMaxSize(s.sessionMaxSize))
	}
	if s.tracer == nil {
		s.tracer = tracing.Tracer()
	}
	return s
}

// Start marks the service ready and reports the estimator state.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting prediction service...")

	s.started = true
	s.logger.Info(ctx, "prediction service started",
		logger.String("provider", s.provider),
		logger.String("model", s.model),
		logger.Bool("defaultKey", s.defaultAPIKey != ""),
		logger.Bool("rejectUnknownSex", s.rejectUnknownSex),
	)
	return nil
}

// Stop drops cached extractor clients.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.log().Info(context.Background(), "stopping prediction service...")
	s.extractors = make(map[string]extraction.Extractor)
	metrics.UpdateExtractorCacheSize(0)
	s.started = false
	s.log().Info(context.Background(), "prediction service stopped")
}

// log returns the configured logger, falling back to the global one.
func (s *Service) log() logger.Logger {
	if s.logger == nil {
		return logger.Get()
	}
	return s.logger
}

// HasDefaultAPIKey reports whether requests may omit the API key.
func (s *Service) HasDefaultAPIKey() bool {
	return s.defaultAPIKey != ""
}

// Provider returns the configured extractor provider name.
func (s *Service) Provider() string {
	return s.provider
}

// Ready reports whether the estimator can serve predictions.
func (s *Service) Ready() error {
	err := estimator.Ready(s.estimator)
	metrics.UpdateModelLoaded(err == nil)
	return err
}

// SaveSessionKey stores the API key typed into the form for sessionID.
func (s *Service) SaveSessionKey(ctx context.Context, sessionID, apiKey string) {
	s.sessions.Put(ctx, sessionID, apiKey)
	metrics.UpdateSessions(s.sessions.Size())
}

// SessionKey returns the API key stored for sessionID.
func (s *Service) SessionKey(ctx context.Context, sessionID string) (string, bool) {
	return s.sessions.Get(ctx, sessionID)
}

// ForgetSession removes the API key stored for sessionID.
func (s *Service) ForgetSession(ctx context.Context, sessionID string) {
	s.sessions.Delete(ctx, sessionID)
	metrics.UpdateSessions(s.sessions.Size())
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":            s.started,
		"provider":           s.provider,
		"predictionsTotal":   s.stats.total.Load(),
		"predictionsOK":      s.stats.succeeded.Load(),
		"predictionsFailed":  s.stats.failed.Load(),
		"cachedExtractors":   len(s.extractors),
		"sessions":           s.sessions.Size(),
		"defaultKeyPresent":  s.defaultAPIKey != "",
		"rejectUnknownSex":   s.rejectUnknownSex,
		"estimatorAvailable": s.estimator != nil,
	}

	metrics.UpdateExtractorCacheSize(len(s.extractors))
	metrics.UpdateSessions(s.sessions.Size())

	return stats
}
