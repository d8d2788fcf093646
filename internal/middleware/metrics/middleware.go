package metrics

import (
	"context"
	"strconv"
	"time"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
	"ratelimitfilter/pkg/metrics"
)

// Middleware records request count, latency and in-flight requests
func Middleware(m *metrics.Metrics) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			method := req.Method()
			path := metrics.NormalizePath(req.Path())

			active := m.ActiveRequests.WithLabelValues(method)
			active.Inc()
			defer active.Dec()

			start := time.Now()
			resp, err := next(ctx, req)

			status := statusOf(resp, err)
			m.RequestsTotal.WithLabelValues(method, path, status).Inc()
			m.RequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())

			return resp, err
		}
	}
}

// statusOf is the status the HTTP adapter will send for this result
func statusOf(resp core.Response, err error) string {
	if err != nil {
		return strconv.Itoa(errors.StatusCode(err))
	}
	if resp == nil {
		return "200"
	}
	return strconv.Itoa(resp.StatusCode())
}
