// Package metrics provides Prometheus metrics for the halfpace prediction service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Prediction outcomes used as the "outcome" label.
const (
	OutcomeSuccess           = "success"
	OutcomeEmptyDescription  = "empty_description"
	OutcomeMissingAPIKey     = "missing_api_key"
	OutcomeMissingFields     = "missing_fields"
	OutcomeExtractionFailed  = "extraction_failed"
	OutcomeUnrecognizedSex   = "unrecognized_sex"
	OutcomeEstimationFailed  = "estimation_failed"
	OutcomeInvalidPrediction = "invalid_prediction"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace         string
	subsystem         string
	latencyBuckets    []float64
	predictionBuckets []float64
	enabled           bool
	refreshInterval   time.Duration
	constLabels       map[string]string
	registry          prometheus.Registerer

	// Pipeline metrics
	predictions         *prometheus.CounterVec
	predictionLatency   prometheus.Histogram
	extractionLatency   *prometheus.HistogramVec
	estimationLatency   prometheus.Histogram
	predictedSeconds    prometheus.Histogram
	missingFields       *prometheus.CounterVec
	unrecognizedSex     prometheus.Counter
	extractorCacheSize  prometheus.Gauge
	activeSessions      prometheus.Gauge
	modelLoaded         prometheus.Gauge
	modelLoadDurationMs prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "halfpace",
		subsystem:         "predictor",
		latencyBuckets:    []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		predictionBuckets: prometheus.LinearBuckets(3600, 900, 12),
		enabled:           true,
		refreshInterval:   defaultRefreshInterval,
		constLabels:       make(map[string]string),
		registry:          prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	// Disabled managers still hold live collectors, registered nowhere visible.
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval returns how often gauge metrics should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.predictions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "predictions_total",
			Help:        "Total number of prediction requests by outcome",
			ConstLabels: labels,
		},
		[]string{"outcome"},
	)

	m.predictionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "prediction_latency_milliseconds",
		Help:        "End-to-end prediction pipeline latency in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.extractionLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "extraction_latency_milliseconds",
			Help:        "Language model feature extraction latency in milliseconds",
			Buckets:     m.latencyBuckets,
			ConstLabels: labels,
		},
		[]string{"provider"},
	)

	m.estimationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "estimation_latency_milliseconds",
		Help:        "Regression model inference latency in milliseconds",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100},
		ConstLabels: labels,
	})

	m.predictedSeconds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "predicted_duration_seconds",
		Help:        "Distribution of predicted half-marathon times in seconds",
		Buckets:     m.predictionBuckets,
		ConstLabels: labels,
	})

	m.missingFields = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "missing_fields_total",
			Help:        "Total number of submissions missing a required field, by field",
			ConstLabels: labels,
		},
		[]string{"field"},
	)

	m.unrecognizedSex = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "unrecognized_sex_total",
		Help:        "Total number of extracted sex values outside the known synonyms",
		ConstLabels: labels,
	})

	m.extractorCacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "extractor_cache_size",
		Help:        "Number of cached per-key extractor clients",
		ConstLabels: labels,
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sessions",
		Help:        "Number of browser sessions holding an API key",
		ConstLabels: labels,
	})

	m.modelLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "model_loaded",
		Help:        "1 when the regression model is loaded and ready",
		ConstLabels: labels,
	})

	m.modelLoadDurationMs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "model_load_duration_milliseconds",
		Help:        "Time taken to load the regression model in milliseconds",
		ConstLabels: labels,
	})

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds (user experience)",
			Buckets:     m.latencyBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})
}

// RecordPrediction counts one prediction request with its outcome.
func RecordPrediction(outcome string) {
	globalManager.predictions.WithLabelValues(outcome).Inc()
}

// RecordPredictionLatency records the whole pipeline latency.
func RecordPredictionLatency(latencyMs float64) {
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordExtractionLatency records language model latency for provider.
func RecordExtractionLatency(provider string, latencyMs float64) {
	globalManager.extractionLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordEstimationLatency records regression model latency.
func RecordEstimationLatency(latencyMs float64) {
	globalManager.estimationLatency.Observe(latencyMs)
}

// RecordPredictedSeconds observes a successful prediction value.
func RecordPredictedSeconds(seconds float64) {
	globalManager.predictedSeconds.Observe(seconds)
}

// RecordMissingField counts a submission missing field.
func RecordMissingField(field string) {
	globalManager.missingFields.WithLabelValues(field).Inc()
}

// RecordUnrecognizedSex counts a sex value outside the synonym table.
func RecordUnrecognizedSex() {
	globalManager.unrecognizedSex.Inc()
}

// UpdateExtractorCacheSize sets the number of cached extractor clients.
func UpdateExtractorCacheSize(size int) {
	globalManager.extractorCacheSize.Set(float64(size))
}

// UpdateSessions sets the number of sessions holding an API key.
func UpdateSessions(count int64) {
	globalManager.activeSessions.Set(float64(count))
}

// UpdateModelLoaded flags whether the regression model is ready.
func UpdateModelLoaded(loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	globalManager.modelLoaded.Set(v)
}

// RecordModelLoadDuration records how long loading the model took.
func RecordModelLoadDuration(latencyMs float64) {
	globalManager.modelLoadDurationMs.Set(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// DefaultRefreshInterval returns the refresh interval of the global manager.
func DefaultRefreshInterval() time.Duration {
	return globalManager.RefreshInterval()
}
