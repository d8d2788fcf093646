package factory

import (
	"net/url"
	"time"

	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/health"
	"ratelimitfilter/internal/limit"
)

// CreateHealthChecker registers the filter's checks. The store is critical;
// missing limits and an unreachable upstream only degrade.
func CreateHealthChecker(cfg *config.Config, store health.Pinger, limits func() *limit.Registry) *health.Checker {
	checker := health.NewChecker()

	checker.RegisterCheck("storage", health.StorageCheck(store))
	checker.RegisterOptionalCheck("limits", health.LimitsCheck(limits))

	if cfg.Upstream.URL != "" {
		timeout := time.Duration(cfg.Upstream.Timeout) * time.Second
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		checker.RegisterOptionalCheck("upstream", health.HTTPCheck(upstreamRoot(cfg.Upstream.URL), timeout))
	}
	return checker
}

func upstreamRoot(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Path = "/"
	u.RawQuery = ""
	return u.String()
}
