package ratelimit

import (
	"fmt"
	"log/slog"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/factory"
)

// ComponentName is the name used to register this component
const ComponentName = "ratelimit"

// componentConfig is the part of the filter configuration this component reads
type componentConfig struct {
	FailureMode string `json:"failureMode"`
}

// Component implements factory.Component for rate limit middleware
type Component struct {
	decider Decider
	logger  *slog.Logger
	mode    FailureMode
}

// NewComponent creates a new rate limit component
func NewComponent(decider Decider, logger *slog.Logger) *Component {
	return &Component{
		decider: decider,
		logger:  logger,
	}
}

// Name returns the component name
func (c *Component) Name() string {
	return ComponentName
}

// Init reads the failure mode, defaulting to closed
func (c *Component) Init(parser factory.ConfigParser) error {
	var cfg componentConfig
	if err := parser(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	c.mode = FailureMode(cfg.FailureMode)
	if c.mode == "" {
		c.mode = FailClosed
	}
	return nil
}

// Validate validates the component state
func (c *Component) Validate() error {
	if c.decider == nil {
		return fmt.Errorf("no decider configured")
	}
	switch c.mode {
	case FailClosed, FailOpen:
		return nil
	default:
		return fmt.Errorf("unknown failure mode: %s", c.mode)
	}
}

// Build returns the middleware handler
func (c *Component) Build() core.Middleware {
	return Middleware(&Config{
		Decider:     c.decider,
		FailureMode: c.mode,
		Logger:      c.logger,
	})
}

var _ factory.Component = (*Component)(nil)
