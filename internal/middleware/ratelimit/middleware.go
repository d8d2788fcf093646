package ratelimit

import (
	"context"
	"log/slog"
	"net/http"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/core"
	"ratelimitfilter/internal/pipeline"
)

// DeniedBody is the response body sent with a 429
const DeniedBody = "Too many requests.\n"

// DeniedResponse is the local reply to a rate-limited request
func DeniedResponse() core.Response {
	return core.NewTextResponse(http.StatusTooManyRequests, DeniedBody)
}

// Attributes converts a request into the pairs limits are evaluated on
func Attributes(req core.Request) []attributes.Pair {
	return attributes.FromRequest(req.Method(), req.Path(), req.Authority(), req.Scheme(), req.Headers())
}

// Middleware runs every request through the decider. Denied requests are
// answered locally with a 429 and never reach next.
func Middleware(cfg *Config) core.Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.FailureMode
	if mode == "" {
		mode = FailClosed
	}

	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			d, err := cfg.Decider.Decide(ctx, Attributes(req))
			if err != nil {
				if mode == FailOpen {
					logger.Warn("rate limit decision failed, admitting request",
						"id", req.ID(),
						"path", req.Path(),
						"method", req.Method(),
						"error", err,
					)
					return next(ctx, req)
				}
				return nil, err
			}

			if d.Outcome == pipeline.Denied {
				logger.Debug("request rate limited",
					"id", req.ID(),
					"limit", d.Limit,
					"namespace", d.Namespace,
				)
				return DeniedResponse(), nil
			}

			return next(ctx, req)
		}
	}
}
