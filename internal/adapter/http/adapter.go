// Package http serves the rate-limited data plane over HTTP.
package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
	"ratelimitfilter/pkg/requestid"
)

// Adapter handles HTTP requests
type Adapter struct {
	config         Config
	health         HealthConfig
	server         *http.Server
	listener       net.Listener
	handler        core.Handler
	healthHandler  HealthHandler
	metricsHandler http.Handler
	reqNum         atomic.Uint64
	logger         *slog.Logger
}

// New creates a new HTTP adapter
func New(cfg Config, handler core.Handler) *Adapter {
	return &Adapter{
		config:  cfg,
		health:  DefaultHealthConfig(),
		handler: handler,
		logger:  slog.Default().With("component", "http"),
	}
}

// WithLogger sets the logger
func (a *Adapter) WithLogger(logger *slog.Logger) *Adapter {
	a.logger = logger.With("component", "http")
	return a
}

// WithHealthHandler sets the health handler and its paths
func (a *Adapter) WithHealthHandler(handler HealthHandler, cfg HealthConfig) *Adapter {
	a.healthHandler = handler
	a.health = cfg
	return a
}

// WithMetricsHandler sets the metrics handler
func (a *Adapter) WithMetricsHandler(handler http.Handler) *Adapter {
	a.metricsHandler = handler
	return a
}

// WithMetricsPath serves the metrics handler on path instead of /metrics
func (a *Adapter) WithMetricsPath(path string) *Adapter {
	a.config.MetricsPath = path
	return a
}

// Start binds the listener and serves in the background
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	a.server = &http.Server{
		Handler:      a,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Create listener to detect bind errors early
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	a.listener = listener
	a.logger.Info("starting server", "addr", listener.Addr().String())

	go func() {
		err := a.server.Serve(listener)
		if !stderrors.Is(err, http.ErrServerClosed) {
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

// Stop gracefully stops the server
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}

	a.logger.Info("stopping server", "requests", a.reqNum.Load())
	return a.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.reqNum.Add(1)

	// Health and metrics paths bypass the filter
	if a.serveHealth(w, r) {
		return
	}
	metricsPath := a.config.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if a.metricsHandler != nil && r.URL.Path == metricsPath {
		a.metricsHandler.ServeHTTP(w, r)
		return
	}

	reqID := requestid.FromHeader(r.Header)
	r.Header.Set(requestid.Header, reqID)

	if a.config.MaxRequestSize > 0 && r.ContentLength > a.config.MaxRequestSize {
		a.logger.Warn("request body too large",
			"request_id", reqID,
			"content_length", r.ContentLength,
			"max_size", a.config.MaxRequestSize,
		)
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if a.config.MaxRequestSize > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxRequestSize)
	}

	req := newRequest(reqID, r)

	resp, err := a.handler(r.Context(), req)
	if err != nil {
		a.handleError(w, reqID, err)
		return
	}

	for k, values := range resp.Headers() {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(requestid.Header, reqID)
	w.WriteHeader(resp.StatusCode())

	if body := resp.Body(); body != nil {
		defer body.Close()
		if _, err := io.Copy(w, body); err != nil {
			// headers are already sent
			a.logger.Error("failed to copy response body",
				"error", err,
				"request_id", reqID,
				"path", req.Path())
		}
	}
}

// handleError maps an error to a status. Internal details stay in the log.
func (a *Adapter) handleError(w http.ResponseWriter, reqID string, err error) {
	status := errors.StatusCode(err)
	message := http.StatusText(status)

	var e *errors.Error
	if stderrors.As(err, &e) {
		a.logger.Error("request failed",
			"id", reqID,
			"type", e.Type,
			"error", e.Error(),
			"details", e.Details)
		if status < http.StatusInternalServerError {
			message = e.Message
		}
	} else {
		a.logger.Error("request failed", "id", reqID, "error", err)
	}

	w.Header().Set(requestid.Header, reqID)
	http.Error(w, message, status)
}
