package http

import (
	"fmt"
	"log/slog"
	"time"

	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/factory"
)

// ComponentName is the name used to register this component
const ComponentName = "http-adapter"

// Component implements factory.Component for HTTP adapter
type Component struct {
	config  Config
	adapter *Adapter
	handler core.Handler
	logger  *slog.Logger
}

// NewComponent creates a new HTTP adapter component
func NewComponent(handler core.Handler, logger *slog.Logger) *Component {
	return &Component{
		handler: handler,
		logger:  logger,
	}
}

// Name returns the component name
func (c *Component) Name() string {
	return ComponentName
}

// Init converts the frontend section into adapter configuration
func (c *Component) Init(parser factory.ConfigParser) error {
	var httpConfig config.HTTP
	if err := parser(&httpConfig); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	c.config = Config{
		Host:           httpConfig.Host,
		Port:           httpConfig.Port,
		ReadTimeout:    time.Duration(httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(httpConfig.WriteTimeout) * time.Second,
		MaxRequestSize: httpConfig.MaxRequestSize,
	}

	if c.config.Host == "" {
		c.config.Host = "0.0.0.0"
	}
	if c.config.ReadTimeout == 0 {
		c.config.ReadTimeout = 30 * time.Second
	}
	if c.config.WriteTimeout == 0 {
		c.config.WriteTimeout = 30 * time.Second
	}
	if c.config.MaxRequestSize == 0 {
		c.config.MaxRequestSize = 10 * 1024 * 1024 // 10MB
	}

	c.adapter = New(c.config, c.handler)
	if c.logger != nil {
		c.adapter.WithLogger(c.logger)
	}
	return nil
}

// Validate validates the component state
func (c *Component) Validate() error {
	if c.handler == nil {
		return fmt.Errorf("no request handler")
	}
	// port 0 picks a free port
	if c.config.Port < 0 || c.config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.config.Port)
	}
	return nil
}

// Build returns the adapter
func (c *Component) Build() *Adapter {
	if c.adapter == nil {
		panic("Component not initialized")
	}
	return c.adapter
}

var _ factory.Component = (*Component)(nil)
