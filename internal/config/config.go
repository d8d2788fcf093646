package config

import (
	"ratelimitfilter/internal/limit"
)

// Config holds filter configuration
type Config struct {
	Filter    Filter    `yaml:"filter"`
	Limits    Limits    `yaml:"limits"`
	Storage   Storage   `yaml:"storage"`
	Frontend  Frontend  `yaml:"frontend"`
	Upstream  Upstream  `yaml:"upstream"`
	Metrics   Metrics   `yaml:"metrics"`
	Telemetry Telemetry `yaml:"telemetry"`
	Health    Health    `yaml:"health"`
}

// Filter configures the admission decision
type Filter struct {
	Namespace          string `yaml:"namespace"`
	SnapshotKey        string `yaml:"snapshotKey"`
	Consistency        string `yaml:"consistency"`
	MaxConflictRetries int    `yaml:"maxConflictRetries"`
	// ConflictBackoff is the first delay in milliseconds before retrying a
	// lost compare-and-set (0 = retry immediately)
	ConflictBackoff int `yaml:"conflictBackoff"`
	// FailureMode is "closed" (reject on error) or "open" (admit on error)
	FailureMode string `yaml:"failureMode"`
}

// Limit sources
const (
	LimitSourceInline    = "inline"
	LimitSourceFile      = "file"
	LimitSourceHTTP      = "http"
	LimitSourceConfigMap = "configmap"
)

// Limits selects where limit definitions come from
type Limits struct {
	Source string `yaml:"source"`
	// Path is a file path or URL, depending on Source
	Path string `yaml:"path"`
	// Timeout in seconds for remote sources
	Timeout     int                `yaml:"timeout"`
	ConfigMap   *ConfigMap         `yaml:"configMap,omitempty"`
	Definitions []limit.Definition `yaml:"definitions"`
}

// ConfigMap locates a limit document stored in a Kubernetes ConfigMap
type ConfigMap struct {
	Namespace  string `yaml:"namespace"`
	Name       string `yaml:"name"`
	Key        string `yaml:"key"`
	Kubeconfig string `yaml:"kubeconfig"`
}

// Storage configures the shared counter store
type Storage struct {
	Type string `yaml:"type"`
	// OperationTimeout in milliseconds
	OperationTimeout int     `yaml:"operationTimeout"`
	KeyPrefix        string  `yaml:"keyPrefix"`
	Redis            *Redis  `yaml:"redis,omitempty"`
	Breaker          Breaker `yaml:"breaker"`
}

// Breaker stops calling a failing store for OpenTimeout seconds after
// MaxFailures consecutive failures
type Breaker struct {
	Enabled     bool `yaml:"enabled"`
	MaxFailures int  `yaml:"maxFailures"`
	OpenTimeout int  `yaml:"openTimeout"`
}

// Redis configuration
type Redis struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	// Timeouts in seconds
	DialTimeout  int `yaml:"dialTimeout"`
	ReadTimeout  int `yaml:"readTimeout"`
	WriteTimeout int `yaml:"writeTimeout"`

	Cluster       bool     `yaml:"cluster"`
	ClusterNodes  []string `yaml:"clusterNodes"`
	Sentinel      bool     `yaml:"sentinel"`
	SentinelNodes []string `yaml:"sentinelNodes"`
	MasterName    string   `yaml:"masterName"`
}

// Frontend configuration
type Frontend struct {
	HTTP HTTP `yaml:"http"`
	GRPC GRPC `yaml:"grpc"`
}

// HTTP configuration
type HTTP struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Timeouts in seconds
	ReadTimeout    int   `yaml:"readTimeout"`
	WriteTimeout   int   `yaml:"writeTimeout"`
	MaxRequestSize int64 `yaml:"maxRequestSize"`
}

// GRPC configuration for the decision service
type GRPC struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Upstream receives admitted requests. An empty URL answers them locally.
type Upstream struct {
	URL string `yaml:"url"`
	// Timeout in seconds
	Timeout int `yaml:"timeout"`
}

// Metrics configuration
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Telemetry configuration
type Telemetry struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName"`
	Tracing     Tracing `yaml:"tracing"`
}

// Tracing configuration
type Tracing struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
	Insecure   bool    `yaml:"insecure"`
}

// Health configuration
type Health struct {
	Enabled    bool   `yaml:"enabled"`
	HealthPath string `yaml:"healthPath"`
	ReadyPath  string `yaml:"readyPath"`
	LivePath   string `yaml:"livePath"`
}
