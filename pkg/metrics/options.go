package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the "halfpace" namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem overrides the "predictor" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets shared by the HTTP,
// pipeline and extraction latency histograms.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.latencyBuckets = buckets
		}
	}
}

// WithPredictionBuckets sets the buckets, in seconds, of the predicted
// finish time histogram.
func WithPredictionBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.predictionBuckets = buckets
		}
	}
}

// WithMetricsEnabled turns collection off when false. A disabled manager
// records into a private registry that is never exposed.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// WithRefreshInterval sets how often the system gauges are sampled.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.refreshInterval = interval
		}
	}
}

// WithConstLabels attaches constant labels, such as a deployment name, to
// every collector.
func WithConstLabels(labels map[string]string) Option {
	return func(m *Manager) {
		if labels != nil {
			m.constLabels = labels
		}
	}
}

// WithPrometheusRegistry registers collectors on registry instead of the
// default registerer.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
