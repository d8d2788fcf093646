package metrics

import (
	"fmt"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/factory"
	"ratelimitfilter/pkg/metrics"
)

// ComponentName is the name used to register this component
const ComponentName = "metrics"

// Component implements factory.Component for metrics middleware
type Component struct {
	metrics *metrics.Metrics
}

// NewComponent creates a new metrics middleware component
func NewComponent(m *metrics.Metrics) *Component {
	return &Component{metrics: m}
}

// Name returns the component name
func (c *Component) Name() string {
	return ComponentName
}

// Init needs no configuration; the metrics instance comes from the constructor
func (c *Component) Init(parser factory.ConfigParser) error {
	return nil
}

// Validate validates the component state
func (c *Component) Validate() error {
	if c.metrics == nil {
		return fmt.Errorf("metrics instance not provided")
	}
	return nil
}

// Build returns the middleware
func (c *Component) Build() core.Middleware {
	return Middleware(c.metrics)
}

var _ factory.Component = (*Component)(nil)
