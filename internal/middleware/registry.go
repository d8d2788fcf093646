package middleware

import (
	"fmt"
	"log/slog"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/internal/middleware/metrics"
	"ratelimitfilter/internal/middleware/ratelimit"
	"ratelimitfilter/internal/middleware/recovery"
	"ratelimitfilter/pkg/factory"
	pkgmetrics "ratelimitfilter/pkg/metrics"
)

// Builder is a component that produces middleware
type Builder interface {
	factory.Component
	Build() core.Middleware
}

// Dependencies are the shared objects middleware components are built with
type Dependencies struct {
	Decider ratelimit.Decider
	// Metrics is optional; without it the metrics component is not registered
	Metrics *pkgmetrics.Metrics
}

// Registry manages middleware component registration
type Registry struct {
	registry *factory.Registry
	logger   *slog.Logger
}

// NewRegistry creates a new middleware registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		registry: factory.NewRegistry(),
		logger:   logger,
	}
}

// RegisterAll registers all built-in middleware components
func (r *Registry) RegisterAll(deps Dependencies) error {
	if err := r.registry.Register(recovery.ComponentName, func() factory.Component {
		return recovery.NewComponent(r.logger)
	}); err != nil {
		return fmt.Errorf("register recovery: %w", err)
	}

	if deps.Metrics != nil {
		if err := r.registry.Register(metrics.ComponentName, func() factory.Component {
			return metrics.NewComponent(deps.Metrics)
		}); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	if err := r.registry.Register(ratelimit.ComponentName, func() factory.Component {
		return ratelimit.NewComponent(deps.Decider, r.logger)
	}); err != nil {
		return fmt.Errorf("register ratelimit: %w", err)
	}

	r.logger.Debug("Registered middleware components", "components", r.registry.List())
	return nil
}

// Step names a registered component and the configuration to build it with
type Step struct {
	Name   string
	Config any
}

// BuildChain builds each step in order and chains the results. Steps naming
// components that were not registered are skipped.
func (r *Registry) BuildChain(steps ...Step) (core.Middleware, error) {
	var chain []core.Middleware
	for _, step := range steps {
		if !r.registry.Has(step.Name) {
			r.logger.Debug("Skipping unregistered middleware", "name", step.Name)
			continue
		}
		comp, err := r.registry.Create(step.Name, step.Config)
		if err != nil {
			return nil, err
		}
		b, ok := comp.(Builder)
		if !ok {
			return nil, fmt.Errorf("component %s does not build middleware", step.Name)
		}
		chain = append(chain, b.Build())
	}
	return Chain(chain...), nil
}

// List returns all registered middleware names
func (r *Registry) List() []string {
	return r.registry.List()
}
