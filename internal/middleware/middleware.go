package middleware

import (
	"context"
	"log/slog"
	"time"

	"ratelimitfilter/internal/core"
)

// Chain combines multiple middleware; the first one is outermost
func Chain(middlewares ...core.Middleware) core.Middleware {
	return func(next core.Handler) core.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] != nil {
				next = middlewares[i](next)
			}
		}
		return next
	}
}

// Logging logs one line per request once it completes
func Logging(logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"id", req.ID(),
				"method", req.Method(),
				"path", req.Path(),
				"duration", time.Since(start),
			}
			if resp != nil {
				attrs = append(attrs, "status", resp.StatusCode())
			}
			if err != nil {
				logger.Warn("request failed", append(attrs, "error", err)...)
			} else {
				logger.Info("request", attrs...)
			}
			return resp, err
		}
	}
}
