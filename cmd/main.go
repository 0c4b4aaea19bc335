package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/halfpace/internal/adapters/http/api"
	"github.com/okian/halfpace/internal/adapters/http/site"
	"github.com/okian/halfpace/internal/adapters/http/swagger"
	"github.com/okian/halfpace/internal/bootstrap"
	"github.com/okian/halfpace/internal/config"
	"github.com/okian/halfpace/pkg/logger"
	"github.com/okian/halfpace/pkg/metrics"
	"github.com/okian/halfpace/pkg/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	writeTimeoutSlack         = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "halfpace failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	applyLogging(ctx, cfg)
	log := logger.Get()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn(ctx, "tracing shutdown failed", logger.Error(err))
		}
	}()

	svc, err := bootstrap.NewService(ctx, cfg, bootstrap.LoadLGBM)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx, metrics.DefaultRefreshInterval())

	handler, err := newHandler(ctx, cfg, svc)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("provider", cfg.ExtractorProvider),
			logger.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// applyLogging sets the configured log level and format, falling back to
// info and text on invalid input.
func applyLogging(ctx context.Context, cfg *config.Config) {
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		logger.Get().Warn(ctx, "invalid log_format; falling back to text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
		_ = logger.SetFormat("text")
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
}

// Routes is the service surface newHandler exposes.
type Routes interface {
	api.Dependencies
	site.Dependencies
}

// newHandler registers every route and wraps the mux with request IDs and tracing.
func newHandler(ctx context.Context, cfg *config.Config, svc Routes) (http.Handler, error) {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithRequestTimeout(cfg.RequestTimeout())).Register(ctx, mux)
	if err := site.Register(ctx, mux, svc, site.WithRequestTimeout(cfg.RequestTimeout())); err != nil {
		return nil, err
	}

	return otelhttp.NewHandler(api.RequestIDMiddleware(mux), "halfpace.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	), nil
}

// writeTimeout leaves room for the slowest prediction to finish writing.
func writeTimeout(cfg *config.Config) time.Duration {
	if cfg.RequestTimeout() == 0 {
		return 0
	}
	return cfg.RequestTimeout() + writeTimeoutSlack
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
