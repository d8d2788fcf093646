package config

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"ratelimitfilter/pkg/errors"
)

//go:embed default.yaml
var defaultConfigYAML string

// LoadDefault loads the default embedded configuration
func LoadDefault() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse default config").WithCause(err)
	}
	return &cfg, nil
}

// applyDefaults fills fields that an overlay left empty.
func applyDefaults(cfg *Config) {
	if cfg.Limits.Source == "" {
		cfg.Limits.Source = LimitSourceInline
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Type == "redis" {
		if cfg.Storage.Redis == nil {
			cfg.Storage.Redis = &Redis{}
		}
		r := cfg.Storage.Redis
		if r.Host == "" {
			r.Host = "localhost"
		}
		if r.Port == 0 {
			r.Port = 6379
		}
		if r.PoolSize == 0 {
			r.PoolSize = 10
		}
		if r.DialTimeout == 0 {
			r.DialTimeout = 5
		}
		if r.ReadTimeout == 0 {
			r.ReadTimeout = 3
		}
		if r.WriteTimeout == 0 {
			r.WriteTimeout = 3
		}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health.HealthPath == "" {
		cfg.Health.HealthPath = "/health"
	}
	if cfg.Health.ReadyPath == "" {
		cfg.Health.ReadyPath = "/ready"
	}
	if cfg.Health.LivePath == "" {
		cfg.Health.LivePath = "/live"
	}
}
