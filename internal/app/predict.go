package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/okian/halfpace/internal/domain/duration"
	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/features"
	"github.com/okian/halfpace/internal/domain/record"
	"github.com/okian/halfpace/pkg/logger"
	"github.com/okian/halfpace/pkg/metrics"
)

// Request is one free-text submission.
type Request struct {
	Text string
	// APIKey overrides the configured default key.
	APIKey string
}

// Prediction is everything one submission produced. On failure the stages
// that completed are still filled in for the diagnostic panels.
type Prediction struct {
	Features       features.Extracted `json:"features"`
	Record         *record.Input      `json:"record,omitempty"`
	Seconds        float64            `json:"seconds"`
	Formatted      string             `json:"formatted"`
	Time5kmMinutes int                `json:"time_5km_minutes"`
}

// Predict turns a self-description into a predicted half-marathon time.
func (s *Service) Predict(ctx context.Context, req Request) (Prediction, error) {
	start := time.Now()
	s.stats.total.Add(1)

	ctx, span := s.tracer.Start(ctx, "service.predict")
	defer span.End()

	p, outcome, err := s.predict(ctx, req)

	metrics.RecordPrediction(outcome)
	metrics.RecordPredictionLatency(float64(time.Since(start).Microseconds()) / 1000)
	span.SetAttributes(attribute.String("prediction.outcome", outcome))

	if err != nil {
		s.stats.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.log().Warn(ctx, "prediction failed",
			logger.String("outcome", outcome),
			logger.Error(err),
		)
		return p, err
	}

	s.stats.succeeded.Add(1)
	metrics.RecordPredictedSeconds(p.Seconds)
	s.log().Info(ctx, "prediction completed",
		logger.String("formatted", p.Formatted),
		logger.Float64("seconds", p.Seconds),
		logger.Int("latencyMs", int(time.Since(start).Milliseconds())),
	)
	return p, nil
}

func (s *Service) predict(ctx context.Context, req Request) (Prediction, string, error) {
	var p Prediction

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return p, metrics.OutcomeEmptyDescription, ErrEmptyDescription
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = s.defaultAPIKey
	}
	if apiKey == "" {
		return p, metrics.OutcomeMissingAPIKey, ErrMissingAPIKey
	}

	ex, err := s.extractorFor(ctx, apiKey)
	if err != nil {
		metrics.RecordErrorByComponent("extraction", "client")
		return p, metrics.OutcomeExtractionFailed, err
	}

	extractStart := time.Now()
	f, err := ex.Extract(ctx, text)
	metrics.RecordExtractionLatency(s.provider, float64(time.Since(extractStart).Microseconds())/1000)
	if err != nil {
		metrics.RecordErrorByComponent("extraction", errorType(ctx, err))
		return p, metrics.OutcomeExtractionFailed, extraction.Wrap("service.extract", err)
	}
	p.Features = f
	if f.Time5kmSeconds != nil {
		p.Time5kmMinutes = duration.Minutes(*f.Time5kmSeconds)
	}
	s.log().Debug(ctx, "features extracted",
		logger.Any("features", f),
		logger.String("provider", s.provider),
	)

	if missing := features.Missing(f); len(missing) > 0 {
		for _, field := range missing {
			metrics.RecordMissingField(field)
		}
		return p, metrics.OutcomeMissingFields, &MissingFieldsError{Fields: missing}
	}

	in, err := record.FromFeatures(f)
	if err != nil {
		return p, metrics.OutcomeMissingFields, &MissingFieldsError{Fields: features.Missing(f)}
	}
	p.Record = &in

	if !record.IsKnownSexCode(in.Sex) {
		metrics.RecordUnrecognizedSex()
		s.log().Warn(ctx, "unrecognized sex value passed to estimator",
			logger.String("sex", in.Sex),
			logger.Bool("rejected", s.rejectUnknownSex),
		)
		if s.rejectUnknownSex {
			return p, metrics.OutcomeUnrecognizedSex, fmt.Errorf("%w: %q", ErrUnrecognizedSex, in.Sex)
		}
	}

	if s.estimator == nil {
		return p, metrics.OutcomeEstimationFailed, fmt.Errorf("%w: %w", estimator.ErrEstimation, estimator.ErrNotLoaded)
	}
	estimateStart := time.Now()
	seconds, err := s.estimator.Predict(ctx, in)
	metrics.RecordEstimationLatency(float64(time.Since(estimateStart).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordErrorByComponent("estimation", errorType(ctx, err))
		if !errors.Is(err, estimator.ErrEstimation) {
			err = fmt.Errorf("%w: %w", estimator.ErrEstimation, err)
		}
		return p, metrics.OutcomeEstimationFailed, err
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		p.Seconds = seconds
		return p, metrics.OutcomeInvalidPrediction, fmt.Errorf("%w: %v", ErrInvalidPrediction, seconds)
	}

	p.Seconds = seconds
	p.Formatted = duration.Format(seconds)
	return p, metrics.OutcomeSuccess, nil
}

// extractorFor returns the cached extractor for apiKey, building it on first use.
func (s *Service) extractorFor(ctx context.Context, apiKey string) (extraction.Extractor, error) {
	s.mu.RLock()
	ex, ok := s.extractors[apiKey]
	factory := s.factory
	s.mu.RUnlock()
	if ok {
		return ex, nil
	}
	if factory == nil {
		return nil, extraction.Wrap("service.extractor", ErrNoExtractor)
	}

	built, err := factory(ctx, apiKey)
	if err != nil {
		return nil, extraction.Wrap("service.extractor", err)
	}
	traced := extraction.WithTracing(built, s.tracer,
		attribute.String("llm.provider", s.provider),
		attribute.String("llm.model", s.model),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.extractors[apiKey]; ok {
		return existing, nil
	}
	if len(s.extractors) >= maxCachedExtractorKeys {
		s.extractors = make(map[string]extraction.Extractor)
	}
	s.extractors[apiKey] = traced
	metrics.UpdateExtractorCacheSize(len(s.extractors))
	return traced, nil
}

func errorType(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, estimator.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, estimator.ErrNotLoaded):
		return "not_loaded"
	default:
		return "failed"
	}
}
