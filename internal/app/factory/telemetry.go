package factory

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/telemetry"
)

// CreateTelemetry creates tracing and OpenTelemetry metrics. Disabled
// telemetry still returns a usable no-op instance.
func CreateTelemetry(cfg *config.Telemetry, version string, registerer prometheus.Registerer, logger *slog.Logger) (*telemetry.Telemetry, error) {
	tcfg := telemetry.Config{
		Enabled: cfg.Enabled,
		Service: cfg.ServiceName,
		Version: version,
		Tracing: telemetry.TracingConfig{
			Enabled:    cfg.Tracing.Enabled,
			Endpoint:   cfg.Tracing.Endpoint,
			Insecure:   cfg.Tracing.Insecure,
			SampleRate: cfg.Tracing.SampleRate,
		},
		Metrics: registerer != nil,
	}

	var opts []telemetry.Option
	if registerer != nil {
		opts = append(opts, telemetry.WithRegisterer(registerer))
	}

	tel, err := telemetry.New(tcfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}
	if cfg.Enabled {
		logger.Info("Telemetry enabled",
			"service", cfg.ServiceName,
			"tracing", cfg.Tracing.Enabled,
			"endpoint", cfg.Tracing.Endpoint,
		)
	}
	return tel, nil
}
