package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"ratelimitfilter/internal/limit"
	"ratelimitfilter/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader. An empty path loads the embedded
// defaults only.
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true,
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load reads the file over the embedded defaults, applies environment
// overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	var data []byte
	if l.path != "" {
		var err error
		data, err = os.ReadFile(l.path)
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").
				WithCause(err).
				WithDetail("path", l.path)
		}
	}
	return l.parse(data)
}

// Parse loads configuration from YAML bytes over the embedded defaults
func Parse(data []byte) (*Config, error) {
	return NewLoader("").parse(data)
}

func (l *Loader) parse(data []byte) (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
		}
	}

	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}
	return cfg, nil
}

// Load is a shortcut for NewLoader(path).Load()
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks the configuration for values the filter cannot run with
func (c *Config) Validate() error {
	switch c.Filter.Consistency {
	case "", "cas", "best_effort":
	default:
		return fmt.Errorf("unknown consistency mode: %s", c.Filter.Consistency)
	}
	switch c.Filter.FailureMode {
	case "", "closed", "open":
	default:
		return fmt.Errorf("unknown failure mode: %s", c.Filter.FailureMode)
	}
	if c.Filter.MaxConflictRetries < 0 {
		return fmt.Errorf("maxConflictRetries must not be negative")
	}
	if c.Filter.ConflictBackoff < 0 {
		return fmt.Errorf("conflictBackoff must not be negative")
	}

	switch c.Limits.Source {
	case LimitSourceInline:
		if _, err := limit.BuildRegistry(c.Limits.Definitions, c.Namespace()); err != nil {
			return fmt.Errorf("inline limits: %w", err)
		}
	case LimitSourceFile:
		if c.Limits.Path == "" {
			return fmt.Errorf("limits path is required for file source")
		}
	case LimitSourceHTTP:
		u, err := url.Parse(c.Limits.Path)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("limits path must be an http(s) URL for http source")
		}
	case LimitSourceConfigMap:
		if c.Limits.ConfigMap == nil || c.Limits.ConfigMap.Name == "" || c.Limits.ConfigMap.Key == "" {
			return fmt.Errorf("configMap name and key are required for configmap source")
		}
	default:
		return fmt.Errorf("unknown limits source: %s", c.Limits.Source)
	}

	switch c.Storage.Type {
	case "memory":
	case "redis":
		r := c.Storage.Redis
		if r.Cluster && len(r.ClusterNodes) == 0 {
			return fmt.Errorf("redis cluster requires clusterNodes")
		}
		if r.Sentinel && (len(r.SentinelNodes) == 0 || r.MasterName == "") {
			return fmt.Errorf("redis sentinel requires sentinelNodes and masterName")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Frontend.HTTP.Port <= 0 || c.Frontend.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Frontend.HTTP.Port)
	}
	if c.Frontend.GRPC.Enabled && (c.Frontend.GRPC.Port <= 0 || c.Frontend.GRPC.Port > 65535) {
		return fmt.Errorf("invalid gRPC port: %d", c.Frontend.GRPC.Port)
	}
	if c.Upstream.URL != "" {
		if _, err := url.ParseRequestURI(c.Upstream.URL); err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}
	}
	return nil
}

// Namespace returns the namespace requests are evaluated in
func (c *Config) Namespace() string {
	if c.Filter.Namespace == "" {
		return limit.DefaultNamespace
	}
	return c.Filter.Namespace
}
