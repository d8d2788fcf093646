package config

import (
	"strings"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("RLF_FILTER_NAMESPACE", "edge")
	t.Setenv("RLF_FILTER_MAXCONFLICTRETRIES", "7")
	t.Setenv("RLF_STORAGE_TYPE", "redis")
	t.Setenv("RLF_STORAGE_REDIS_HOST", "cache")
	t.Setenv("RLF_STORAGE_REDIS_SENTINELNODES", "a:26379, b:26379")
	t.Setenv("RLF_TELEMETRY_TRACING_SAMPLERATE", "0.25")
	t.Setenv("RLF_METRICS_ENABLED", "false")

	cfg := &Config{}
	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if cfg.Filter.Namespace != "edge" || cfg.Filter.MaxConflictRetries != 7 {
		t.Errorf("filter = %+v", cfg.Filter)
	}
	if cfg.Storage.Type != "redis" {
		t.Errorf("storage type = %q", cfg.Storage.Type)
	}
	if cfg.Storage.Redis == nil || cfg.Storage.Redis.Host != "cache" {
		t.Fatalf("redis = %+v", cfg.Storage.Redis)
	}
	nodes := cfg.Storage.Redis.SentinelNodes
	if len(nodes) != 2 || nodes[1] != "b:26379" {
		t.Errorf("sentinel nodes = %v", nodes)
	}
	if cfg.Telemetry.Tracing.SampleRate != 0.25 {
		t.Errorf("sample rate = %v", cfg.Telemetry.Tracing.SampleRate)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled")
	}
}

func TestLoadEnvInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RLF_FRONTEND_HTTP_PORT", "eighty"},
		{"RLF_METRICS_ENABLED", "sometimes"},
		{"RLF_TELEMETRY_TRACING_SAMPLERATE", "half"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if err := LoadEnv(&Config{}); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadEnvLeavesPointerNil(t *testing.T) {
	cfg := &Config{}
	if err := LoadEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Redis != nil || cfg.Limits.ConfigMap != nil {
		t.Error("pointer sections should stay nil without matching variables")
	}
}

func TestEnvExample(t *testing.T) {
	examples := EnvExample(&Config{})
	joined := strings.Join(examples, "\n")
	for _, want := range []string{
		"RLF_FILTER_NAMESPACE=value",
		"RLF_FILTER_MAXCONFLICTRETRIES=123",
		"RLF_STORAGE_REDIS_CLUSTERNODES=value1,value2,value3",
		"RLF_LIMITS_CONFIGMAP_NAME=value",
		"RLF_TELEMETRY_TRACING_SAMPLERATE=1.5",
		"RLF_FRONTEND_GRPC_ENABLED=true",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("EnvExample() missing %s", want)
		}
	}
	if strings.Contains(joined, "DEFINITIONS") {
		t.Error("limit definitions cannot be set from the environment")
	}
}
