// Package backend serves requests the rate limiter admitted.
package backend

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
	"ratelimitfilter/pkg/metrics"
)

// Upstream forwards admitted requests to a single HTTP upstream
type Upstream struct {
	client  *http.Client
	target  *url.URL
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewUpstream creates an upstream forwarder. metrics may be nil.
func NewUpstream(rawURL string, client *http.Client, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) (*Upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid upstream url").
			WithDetail("url", rawURL)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Upstream{
		client:  client,
		target:  target,
		timeout: timeout,
		metrics: m,
		logger:  logger.With("component", "upstream"),
	}, nil
}

// Handler returns the upstream as the terminal handler of the chain
func (u *Upstream) Handler() core.Handler {
	return u.Forward
}

// Forward sends req to the upstream and streams its response back. The
// timeout covers the whole exchange including reading the body.
func (u *Upstream) Forward(ctx context.Context, req core.Request) (core.Response, error) {
	cancel := context.CancelFunc(func() {})
	if u.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
	}
	resp, err := u.forward(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.body = &cancelOnClose{ReadCloser: resp.body, cancel: cancel}
	return resp, nil
}

func (u *Upstream) forward(ctx context.Context, req core.Request) (*upstreamResponse, error) {
	method := req.Method()
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, method, u.urlFor(req), req.Body())
	if err != nil {
		u.recordError("request")
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "failed to build upstream request").WithCause(err)
	}

	for key, values := range req.Headers() {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if req.RemoteAddr() != "" {
		httpReq.Header.Set("X-Forwarded-For", req.RemoteAddr())
	}
	if req.Scheme() != "" {
		httpReq.Header.Set("X-Forwarded-Proto", req.Scheme())
	}
	if req.Authority() != "" {
		httpReq.Header.Set("X-Forwarded-Host", req.Authority())
	}

	resp, err := u.client.Do(httpReq)
	if u.metrics != nil {
		u.metrics.UpstreamRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, u.mapError(err)
	}
	if u.metrics != nil {
		u.metrics.UpstreamRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	headers := make(map[string][]string, len(resp.Header))
	for key, values := range resp.Header {
		if isHopByHopHeader(key) {
			continue
		}
		headers[key] = values
	}
	return &upstreamResponse{
		statusCode: resp.StatusCode,
		headers:    headers,
		body:       resp.Body,
	}, nil
}

func (u *Upstream) urlFor(req core.Request) string {
	target := *u.target
	path, query, _ := strings.Cut(req.URL(), "?")
	target.Path = strings.TrimSuffix(u.target.Path, "/") + path
	target.RawQuery = query
	return target.String()
}

func (u *Upstream) mapError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		u.recordError("timeout")
		return errors.NewError(errors.ErrorTypeTimeout, "upstream timed out").WithCause(err)
	}
	u.recordError("connection")
	u.logger.Warn("upstream request failed", "error", err)
	return errors.NewError(errors.ErrorTypeInternal, "upstream unavailable").WithCause(err)
}

func (u *Upstream) recordError(kind string) {
	if u.metrics != nil {
		u.metrics.UpstreamErrors.WithLabelValues(kind).Inc()
	}
}

// Local answers every admitted request itself with 200 OK
func Local() core.Handler {
	return func(ctx context.Context, req core.Request) (core.Response, error) {
		return core.NewTextResponse(http.StatusOK, "OK\n"), nil
	}
}

var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func isHopByHopHeader(header string) bool {
	_, ok := hopByHopHeaders[strings.ToLower(header)]
	return ok
}
