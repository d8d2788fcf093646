package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	grpcAdapter "ratelimitfilter/internal/adapter/grpc"
	httpAdapter "ratelimitfilter/internal/adapter/http"
	"ratelimitfilter/internal/app/factory"
	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/health"
	internalmetrics "ratelimitfilter/internal/metrics"
	"ratelimitfilter/internal/middleware"
	"ratelimitfilter/internal/middleware/metrics"
	"ratelimitfilter/internal/middleware/ratelimit"
	"ratelimitfilter/internal/middleware/recovery"
	"ratelimitfilter/internal/pipeline"
	pkgfactory "ratelimitfilter/pkg/factory"
	pkgmetrics "ratelimitfilter/pkg/metrics"
)

// Version is reported by the health endpoint and the telemetry resource
var Version = "dev"

// Builder builds the filter application
type Builder struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
}

// NewBuilder creates a new application builder. configPath may be empty,
// in which case configuration reloads are disabled.
func NewBuilder(cfg *config.Config, configPath string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		config:     cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Build constructs the server. Resources created before a failing step are
// released before the error is returned.
func (b *Builder) Build(ctx context.Context) (_ *Server, err error) {
	cfg := b.config

	// One registry serves both the Prometheus collectors and the
	// OpenTelemetry exporter.
	var (
		m          *pkgmetrics.Metrics
		registerer prometheus.Registerer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = pkgmetrics.NewWithRegistry(reg, reg)
		registerer = reg
	}

	tel, err := factory.CreateTelemetry(&cfg.Telemetry, Version, registerer, b.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tel.Shutdown(context.Background())
		}
	}()

	store, err := factory.CreateStore(ctx, &cfg.Storage, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()

	limitLoader, err := factory.CreateLimitLoader(cfg, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating limit loader: %w", err)
	}
	registry, err := factory.CreateRegistry(ctx, cfg, limitLoader)
	if err != nil {
		if m != nil {
			m.ObserveReload(cfg.Limits.Source, 0, err)
		}
		return nil, fmt.Errorf("loading limits: %w", err)
	}
	if m != nil {
		m.ObserveReload(cfg.Limits.Source, registry.Len(), nil)
	}

	recorders := pipeline.Recorders{}
	if m != nil {
		recorders = append(recorders, internalmetrics.NewRecorder(m))
	}
	otelRecorder, err := tel.NewRecorder()
	if err != nil {
		return nil, fmt.Errorf("creating telemetry recorder: %w", err)
	}
	recorders = append(recorders, otelRecorder)

	p, err := factory.CreatePipeline(&cfg.Filter, cfg.Namespace(), store, registry, recorders, tel.Tracer(), b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	backend, err := factory.CreateBackendHandler(&cfg.Upstream, m, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	mwRegistry := middleware.NewRegistry(b.logger)
	if err := mwRegistry.RegisterAll(middleware.Dependencies{Decider: p, Metrics: m}); err != nil {
		return nil, fmt.Errorf("registering middleware: %w", err)
	}
	chain, err := mwRegistry.BuildChain(
		middleware.Step{Name: recovery.ComponentName},
		middleware.Step{Name: metrics.ComponentName},
		middleware.Step{Name: ratelimit.ComponentName, Config: map[string]any{"failureMode": cfg.Filter.FailureMode}},
	)
	if err != nil {
		return nil, fmt.Errorf("building middleware: %w", err)
	}
	handler := middleware.Chain(tel.Middleware(), middleware.Logging(b.logger), chain)(backend)

	httpComp, err := pkgfactory.BuildWithLogger(httpAdapter.NewComponent(handler, b.logger), cfg.Frontend.HTTP, b.logger)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP adapter: %w", err)
	}
	httpServer := httpComp.Build()

	if cfg.Health.Enabled {
		checker := factory.CreateHealthChecker(cfg, store, p.Registry)
		httpServer.WithHealthHandler(health.NewHandler(checker, Version, serviceID()), httpAdapter.HealthConfig{
			Enabled:    true,
			HealthPath: cfg.Health.HealthPath,
			ReadyPath:  cfg.Health.ReadyPath,
			LivePath:   cfg.Health.LivePath,
		})
		b.logger.Info("Health checks enabled",
			"health", cfg.Health.HealthPath,
			"ready", cfg.Health.ReadyPath,
			"live", cfg.Health.LivePath,
		)
	}
	if m != nil {
		httpServer.WithMetricsHandler(m.Handler()).WithMetricsPath(cfg.Metrics.Path)
		b.logger.Info("Metrics enabled", "path", cfg.Metrics.Path)
	}

	var grpcServer *grpcAdapter.Adapter
	if cfg.Frontend.GRPC.Enabled {
		grpcServer = grpcAdapter.New(grpcAdapter.Config{
			Host: cfg.Frontend.GRPC.Host,
			Port: cfg.Frontend.GRPC.Port,
		}, p, b.logger)
	}

	return &Server{
		config:      cfg,
		configPath:  b.configPath,
		store:       store,
		pipeline:    p,
		limitLoader: limitLoader,
		metrics:     m,
		telemetry:   tel,
		httpAdapter: httpServer,
		grpcAdapter: grpcServer,
		logger:      b.logger,
	}, nil
}

func serviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ratelimitfilter"
	}
	return "ratelimitfilter-" + host
}
