package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ratelimitfilter/internal/limit"
)

// Pinger is anything that can verify its backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageCheck verifies the shared counter store answers
func StorageCheck(p Pinger) Check {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("storage ping failed: %w", err)
		}
		return nil
	}
}

// LimitsCheck fails when no limits are in force
func LimitsCheck(current func() *limit.Registry) Check {
	return func(ctx context.Context) error {
		reg := current()
		if reg == nil || reg.Len() == 0 {
			return fmt.Errorf("no limits loaded")
		}
		return nil
	}
}

// HTTPCheck creates a health check for an HTTP endpoint
func HTTPCheck(url string, timeout time.Duration) Check {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
		}
		return nil
	}
}
