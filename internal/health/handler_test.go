package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ratelimitfilter/internal/limit"
)

func TestChecker_RegisterAndCheck(t *testing.T) {
	checker := NewChecker()
	checker.RegisterCheck("success", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("failure", func(ctx context.Context) error { return errors.New("check failed") })
	checker.RegisterOptionalCheck("optional", func(ctx context.Context) error { return errors.New("meh") })

	results := checker.CheckHealth(context.Background())
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	tests := []struct {
		name     string
		status   Status
		critical bool
		hasError bool
	}{
		{"success", StatusHealthy, true, false},
		{"failure", StatusUnhealthy, true, true},
		{"optional", StatusDegraded, false, true},
	}
	for _, tt := range tests {
		r := results[tt.name]
		if r.Status != tt.status {
			t.Errorf("%s: status = %s, want %s", tt.name, r.Status, tt.status)
		}
		if r.Critical != tt.critical {
			t.Errorf("%s: critical = %v", tt.name, r.Critical)
		}
		if (r.Error != "") != tt.hasError {
			t.Errorf("%s: error = %q", tt.name, r.Error)
		}
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]CheckResult
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", map[string]CheckResult{"a": {Status: StatusHealthy}}, StatusHealthy},
		{"degraded", map[string]CheckResult{"a": {Status: StatusHealthy}, "b": {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", map[string]CheckResult{"a": {Status: StatusDegraded}, "b": {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.results); got != tt.want {
				t.Errorf("Overall() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHandler_Endpoints(t *testing.T) {
	tests := []struct {
		name       string
		critical   error
		optional   error
		wantHealth int
		wantReady  int
		wantStatus Status
	}{
		{"healthy", nil, nil, http.StatusOK, http.StatusOK, StatusHealthy},
		{"degraded", nil, errors.New("no limits"), http.StatusOK, http.StatusOK, StatusDegraded},
		{"unhealthy", errors.New("redis down"), nil, http.StatusServiceUnavailable, http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker()
			checker.RegisterCheck("storage", func(ctx context.Context) error { return tt.critical })
			checker.RegisterOptionalCheck("limits", func(ctx context.Context) error { return tt.optional })
			h := NewHandler(checker, "1.0.0", "rlf-1")

			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.wantHealth {
				t.Errorf("Health code = %d, want %d", rec.Code, tt.wantHealth)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus || resp.Version != "1.0.0" || resp.ServiceID != "rlf-1" {
				t.Errorf("response = %+v", resp)
			}

			rec = httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.wantReady {
				t.Errorf("Ready code = %d, want %d", rec.Code, tt.wantReady)
			}

			rec = httptest.NewRecorder()
			h.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("Live code = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s", ct)
			}
		})
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestChecks(t *testing.T) {
	ctx := context.Background()

	if err := StorageCheck(pingerFunc(func(context.Context) error { return nil }))(ctx); err != nil {
		t.Errorf("StorageCheck() = %v", err)
	}
	if err := StorageCheck(pingerFunc(func(context.Context) error { return errors.New("down") }))(ctx); err == nil {
		t.Error("StorageCheck() should fail")
	}

	if err := LimitsCheck(limit.DefaultRegistry)(ctx); err != nil {
		t.Errorf("LimitsCheck() = %v", err)
	}
	empty, _ := limit.NewRegistry()
	if err := LimitsCheck(func() *limit.Registry { return empty })(ctx); err == nil {
		t.Error("LimitsCheck() should fail for an empty registry")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if err := HTTPCheck(server.URL+"/", time.Second)(ctx); err != nil {
		t.Errorf("HTTPCheck() = %v, a 404 still means the upstream answers", err)
	}
	if err := HTTPCheck(server.URL+"/broken", time.Second)(ctx); err == nil {
		t.Error("HTTPCheck() should fail on 5xx")
	}
}
