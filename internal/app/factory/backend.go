package factory

import (
	"log/slog"
	"net/http"
	"time"

	"ratelimitfilter/internal/backend"
	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/metrics"
)

// CreateBackendHandler returns the handler admitted requests end up in
func CreateBackendHandler(cfg *config.Upstream, m *metrics.Metrics, logger *slog.Logger) (core.Handler, error) {
	if cfg.URL == "" {
		logger.Info("No upstream configured, admitted requests are answered locally")
		return backend.Local(), nil
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
		// no redirects; the upstream's answer goes back as is
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	u, err := backend.NewUpstream(cfg.URL, client, timeout, m, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Forwarding admitted requests", "upstream", cfg.URL, "timeout", timeout)
	return u.Handler(), nil
}
