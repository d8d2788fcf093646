package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
)

// Config holds recovery middleware configuration
type Config struct {
	// StackTrace enables stack trace logging
	StackTrace bool `json:"stackTrace"`
	// PanicHandler is called when a panic occurs (optional)
	PanicHandler func(ctx context.Context, recovered interface{}, stack []byte) `json:"-"`
}

// Middleware turns a panic anywhere below it into an internal error
func Middleware(config Config, logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (resp core.Response, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := debug.Stack()

				attrs := []any{
					"panic", r,
					"id", req.ID(),
					"path", req.Path(),
					"method", req.Method(),
				}
				if config.StackTrace {
					attrs = append(attrs, "stack", string(stack))
				}
				logger.Error("panic recovered", attrs...)

				if config.PanicHandler != nil {
					config.PanicHandler(ctx, r, stack)
				}

				resp = nil
				err = errors.NewError(errors.ErrorTypeInternal, "internal server error").
					WithDetail("panic", fmt.Sprintf("%v", r))
			}()

			return next(ctx, req)
		}
	}
}

// Default creates recovery middleware with default configuration
func Default(logger *slog.Logger) core.Middleware {
	return Middleware(Config{StackTrace: true}, logger)
}
