package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"ratelimitfilter/internal/middleware/ratelimit"
)

// Config holds gRPC adapter configuration
type Config struct {
	Host string
	Port int
}

// Adapter serves the Decider and the standard health service
type Adapter struct {
	config   Config
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *slog.Logger
}

// New creates the adapter and registers its services
func New(cfg Config, decider ratelimit.Decider, logger *slog.Logger) *Adapter {
	logger = logger.With("component", "grpc")
	a := &Adapter{
		config: cfg,
		health: health.NewServer(),
		logger: logger,
	}
	a.server = grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	RegisterDeciderServer(a.server, NewService(decider))
	healthpb.RegisterHealthServer(a.server, a.health)
	a.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return a
}

// Start binds the listener and serves in the background
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	return a.Serve(listener)
}

// Serve serves on an existing listener in the background
func (a *Adapter) Serve(listener net.Listener) error {
	a.listener = listener
	a.logger.Info("starting server", "addr", listener.Addr().String())
	go func() {
		if err := a.server.Serve(listener); err != nil {
			a.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (a *Adapter) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// SetServing flips the health status reported for the Decider
func (a *Adapter) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus(ServiceName, st)
}

// Stop drains in-flight calls, forcing the stop when ctx expires
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping server")
	a.health.Shutdown()

	done := make(chan struct{})
	go func() {
		a.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.server.Stop()
		return ctx.Err()
	}
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("call failed",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"duration", time.Since(start),
				"error", err,
			)
		} else {
			logger.Debug("call", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}
