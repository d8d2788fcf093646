package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	grpcAdapter "ratelimitfilter/internal/adapter/grpc"
	httpAdapter "ratelimitfilter/internal/adapter/http"
	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/loader"
	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/internal/storage"
	"ratelimitfilter/internal/telemetry"
	pkgmetrics "ratelimitfilter/pkg/metrics"
)

// Server runs the filter's frontends and keeps its limits current
type Server struct {
	config      *config.Config
	configPath  string
	store       storage.SharedStore
	pipeline    *pipeline.Pipeline
	limitLoader *loader.LimitLoader
	metrics     *pkgmetrics.Metrics
	telemetry   *telemetry.Telemetry
	httpAdapter *httpAdapter.Adapter
	grpcAdapter *grpcAdapter.Adapter
	watcher     *config.Watcher
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewServer builds a server from cfg
func NewServer(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, configPath, logger).Build(ctx)
}

// Start binds the frontends and starts limit reloading. It returns once
// every listener is bound; serving continues in the background until Stop
// is called or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("Starting HTTP server",
		"host", s.config.Frontend.HTTP.Host,
		"port", s.config.Frontend.HTTP.Port,
	)
	if err := s.httpAdapter.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("HTTP server: %w", err)
	}

	if s.grpcAdapter != nil {
		s.logger.Info("Starting gRPC server",
			"host", s.config.Frontend.GRPC.Host,
			"port", s.config.Frontend.GRPC.Port,
		)
		if err := s.grpcAdapter.Start(runCtx); err != nil {
			cancel()
			_ = s.httpAdapter.Stop(context.Background())
			return fmt.Errorf("gRPC server: %w", err)
		}
	}

	if err := s.startReloads(runCtx); err != nil {
		s.logger.Warn("Limit reloading disabled", "error", err)
	}

	s.logger.Info("Rate limit filter started",
		"namespace", s.pipeline.Namespace(),
		"limits", s.pipeline.Registry().Len(),
		"storage", s.config.Storage.Type,
	)
	return nil
}

// startReloads watches the limit source when it can report changes and the
// configuration file otherwise.
func (s *Server) startReloads(ctx context.Context) error {
	source := s.config.Limits.Source

	if s.limitLoader != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := s.limitLoader.Watch(ctx, func(reg *limit.Registry, err error) {
				if err := s.applyLimits(source, reg, err); err != nil {
					s.logger.Error("Keeping previous limits", "source", source, "error", err)
				}
			})
			if err != nil && ctx.Err() == nil {
				s.logger.Error("Limit watch stopped", "source", source, "error", err)
			}
		}()
	}

	if s.configPath == "" {
		return nil
	}

	wcfg := config.DefaultWatcherConfig()
	if source == config.LimitSourceFile {
		wcfg.ExtraFiles = []string{s.config.Limits.Path}
	}
	wcfg.OnChange = func(newCfg *config.Config) error {
		return s.reloadLimits(ctx, newCfg)
	}

	w, err := config.NewWatcher(s.configPath, wcfg, s.logger)
	if err != nil {
		return err
	}
	s.watcher = w
	w.Start()
	return nil
}

// reloadLimits applies limits after a configuration change. The limit
// source itself is fixed for the server's lifetime.
func (s *Server) reloadLimits(ctx context.Context, newCfg *config.Config) error {
	source := s.config.Limits.Source
	if newCfg.Limits.Source != source {
		s.logger.Warn("Changing the limit source requires a restart",
			"current", source,
			"configured", newCfg.Limits.Source,
		)
	}

	var (
		reg *limit.Registry
		err error
	)
	switch source {
	case config.LimitSourceInline:
		reg, err = limit.BuildRegistry(newCfg.Limits.Definitions, s.config.Namespace())
	case config.LimitSourceConfigMap:
		// kept current by the ConfigMap watch
		return nil
	default:
		reg, err = s.limitLoader.Load(ctx)
	}
	return s.applyLimits(source, reg, err)
}

func (s *Server) applyLimits(source string, reg *limit.Registry, err error) error {
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveReload(source, 0, err)
		}
		return fmt.Errorf("reloading limits: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveReload(source, reg.Len(), nil)
	}
	s.pipeline.SetRegistry(reg)
	return nil
}

// Stop shuts the frontends down, then the watchers, telemetry and store
func (s *Server) Stop(ctx context.Context) error {
	var (
		wg    sync.WaitGroup
		errs  []error
		errMu sync.Mutex
	)
	collect := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.httpAdapter.Stop(ctx); err != nil {
			collect(fmt.Errorf("stopping HTTP server: %w", err))
		}
	}()

	if s.grpcAdapter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.grpcAdapter.Stop(ctx); err != nil {
				collect(fmt.Errorf("stopping gRPC server: %w", err))
			}
		}()
	}
	wg.Wait()

	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			collect(fmt.Errorf("stopping config watcher: %w", err))
		}
	}
	s.wg.Wait()

	if err := s.telemetry.Shutdown(ctx); err != nil {
		collect(fmt.Errorf("shutting down telemetry: %w", err))
	}
	if err := s.store.Close(); err != nil {
		collect(fmt.Errorf("closing store: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("Rate limit filter stopped")
	return nil
}

// Pipeline returns the decision pipeline
func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// HTTPAddr returns the bound HTTP address once started
func (s *Server) HTTPAddr() string {
	return s.httpAdapter.Addr()
}

// GRPCAddr returns the bound gRPC address, empty when gRPC is disabled
func (s *Server) GRPCAddr() string {
	if s.grpcAdapter == nil {
		return ""
	}
	return s.grpcAdapter.Addr()
}
