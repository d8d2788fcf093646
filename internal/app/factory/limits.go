package factory

import (
	"context"
	"log/slog"
	"time"

	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/loader"
)

// CreateLimitLoader creates the loader for external limit sources. Inline
// limits need no loader and yield nil.
func CreateLimitLoader(cfg *config.Config, logger *slog.Logger) (*loader.LimitLoader, error) {
	namespace := cfg.Namespace()
	switch cfg.Limits.Source {
	case config.LimitSourceFile:
		return loader.NewLimitLoader(loader.NewFileSource(), cfg.Limits.Path, namespace, logger), nil

	case config.LimitSourceHTTP:
		src := loader.NewHTTPSource(&loader.HTTPSourceConfig{
			Timeout: time.Duration(cfg.Limits.Timeout) * time.Second,
		})
		return loader.NewLimitLoader(src, cfg.Limits.Path, namespace, logger), nil

	case config.LimitSourceConfigMap:
		cm := cfg.Limits.ConfigMap
		src, err := loader.NewConfigMapSource(&loader.ConfigMapSourceConfig{
			Namespace:  cm.Namespace,
			Kubeconfig: cm.Kubeconfig,
		})
		if err != nil {
			return nil, err
		}
		return loader.NewLimitLoader(src, cm.Name+"/"+cm.Key, namespace, logger), nil

	default:
		return nil, nil
	}
}

// CreateRegistry builds the limits in force at startup, from the inline
// definitions or through ll
func CreateRegistry(ctx context.Context, cfg *config.Config, ll *loader.LimitLoader) (*limit.Registry, error) {
	if ll == nil {
		return limit.BuildRegistry(cfg.Limits.Definitions, cfg.Namespace())
	}
	return ll.Load(ctx)
}
