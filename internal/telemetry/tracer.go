package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
)

// Middleware starts a server span per request, continuing any trace the
// caller propagated in the request headers
func (t *Telemetry) Middleware() core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			ctx = t.propagator.Extract(ctx, HeaderCarrier(req.Headers()))
			ctx, span := t.tracer.Start(ctx,
				fmt.Sprintf("%s %s", req.Method(), req.Path()),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(req.Method()),
					semconv.URLPath(req.Path()),
					semconv.ServerAddress(req.Authority()),
					attribute.String("request.id", req.ID()),
				),
			)
			defer span.End()

			resp, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				EndServerSpan(span, errors.StatusCode(err))
				return resp, err
			}
			if resp != nil {
				EndServerSpan(span, resp.StatusCode())
			}
			return resp, nil
		}
	}
}

// EndServerSpan sets the status attributes for a finished request. A 429
// is an expected outcome and leaves the span unset.
func EndServerSpan(span trace.Span, statusCode int) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(statusCode))
	if statusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
	}
}

// AddEvent adds an event to the current span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// ExtractTraceID extracts trace ID from context
func ExtractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
