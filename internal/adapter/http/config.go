package http

import "time"

// Config holds HTTP adapter configuration
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64 // Maximum request body size in bytes (0 = no limit)
	MetricsPath    string
}

// HealthConfig maps paths to the health handler's checks
type HealthConfig struct {
	Enabled    bool
	HealthPath string
	ReadyPath  string
	LivePath   string
}

// DefaultHealthConfig returns default health configuration
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Enabled:    true,
		HealthPath: "/health",
		ReadyPath:  "/ready",
		LivePath:   "/live",
	}
}
