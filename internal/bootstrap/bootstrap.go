// Package bootstrap assembles the prediction service from configuration. The
// HTTP server and the CLI share it so both run the same pipeline.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/halfpace/internal/adapters/llm/gemini"
	"github.com/okian/halfpace/internal/adapters/llm/openai"
	"github.com/okian/halfpace/internal/adapters/model/lgbm"
	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/internal/config"
	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/pkg/logger"
	"github.com/okian/halfpace/pkg/metrics"
)

// ModelLoader reads an estimator from a model file.
type ModelLoader func(path string) (estimator.Estimator, error)

// LoadLGBM is the default ModelLoader.
func LoadLGBM(path string) (estimator.Estimator, error) {
	return lgbm.Load(path)
}

// Estimator returns the configured estimator. An eager load fails here; a lazy
// one fails on the first prediction and keeps failing.
func Estimator(ctx context.Context, cfg *config.Config, load ModelLoader) (estimator.Estimator, error) {
	if load == nil {
		load = LoadLGBM
	}
	timed := func() (estimator.Estimator, error) {
		start := time.Now()
		est, err := load(cfg.ModelPath)
		metrics.RecordModelLoadDuration(float64(time.Since(start).Microseconds()) / 1000)
		metrics.UpdateModelLoaded(err == nil)
		if err != nil {
			logger.Get().Error(ctx, "model load failed", logger.String("path", cfg.ModelPath), logger.Error(err))
			return nil, err
		}
		fields := []logger.Field{
			logger.String("path", cfg.ModelPath),
			logger.Int("loadMs", int(time.Since(start).Milliseconds())),
		}
		if m, ok := est.(*lgbm.Model); ok {
			fields = append(fields, logger.Any("features", m.Schema().FeatureNames))
		}
		logger.Get().Info(ctx, "model loaded", fields...)
		return est, nil
	}

	if cfg.ModelLazyLoad {
		logger.Get().Info(ctx, "model will load on first prediction", logger.String("path", cfg.ModelPath))
		return estimator.Lazy(timed), nil
	}
	est, err := timed()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", estimator.ErrNotLoaded, err)
	}
	return est, nil
}

// ExtractorFactory builds extractors for the configured provider.
func ExtractorFactory(cfg *config.Config) (service.ExtractorFactory, error) {
	switch cfg.ExtractorProvider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.OpenAIModel)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return func(_ context.Context, apiKey string) (extraction.Extractor, error) {
			return openai.New(apiKey, opts...), nil
		}, nil
	case config.ProviderGemini:
		return func(ctx context.Context, apiKey string) (extraction.Extractor, error) {
			return gemini.New(ctx, apiKey, gemini.WithModel(cfg.GeminiModel))
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown extractor provider %q", config.ErrInvalidConfig, cfg.ExtractorProvider)
	}
}

// NewService wires the estimator and extractor factory into a Service. Extra
// options are applied last and may override the defaults.
func NewService(ctx context.Context, cfg *config.Config, load ModelLoader, opts ...service.Option) (*service.Service, error) {
	est, err := Estimator(ctx, cfg, load)
	if err != nil {
		return nil, err
	}
	factory, err := ExtractorFactory(cfg)
	if err != nil {
		return nil, err
	}

	base := []service.Option{
		service.WithLogger(logger.Get()),
		service.WithEstimator(est),
		service.WithExtractorFactory(cfg.ExtractorProvider, cfg.Model(), factory),
		service.WithDefaultAPIKey(cfg.APIKey()),
		service.WithRejectUnknownSex(cfg.RejectUnknownSex),
		service.WithSessionMaxSize(cfg.SessionMaxSize),
	}
	return service.New(append(base, opts...)...), nil
}
