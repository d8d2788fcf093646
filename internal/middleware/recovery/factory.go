package recovery

import (
	"log/slog"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/factory"
)

// ComponentName is the name used to register this component
const ComponentName = "recovery"

// Component implements factory.Component for recovery middleware
type Component struct {
	config Config
	logger *slog.Logger
}

// NewComponent creates a new recovery component
func NewComponent(logger *slog.Logger) *Component {
	return &Component{logger: logger}
}

// Name returns the component name
func (c *Component) Name() string {
	return ComponentName
}

// Init initializes the component with configuration
func (c *Component) Init(parser factory.ConfigParser) error {
	c.config = Config{StackTrace: true}
	return parser(&c.config)
}

// Validate validates the component state
func (c *Component) Validate() error {
	return nil
}

// Build returns the middleware handler
func (c *Component) Build() core.Middleware {
	return Middleware(c.config, c.logger)
}

var _ factory.Component = (*Component)(nil)
