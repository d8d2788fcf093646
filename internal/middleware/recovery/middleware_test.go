package recovery

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
	"ratelimitfilter/pkg/factory"
)

func panicking(ctx context.Context, req core.Request) (core.Response, error) {
	panic("counter map corrupted")
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantStack bool
	}{
		{name: "with stack trace", config: Config{StackTrace: true}, wantStack: true},
		{name: "without stack trace", config: Config{}, wantStack: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			var handled interface{}
			tt.config.PanicHandler = func(ctx context.Context, recovered interface{}, stack []byte) {
				handled = recovered
			}

			req := core.NewRequest(context.Background(), core.RequestInfo{ID: "r1", Method: "GET", Path: "/"})
			resp, err := Middleware(tt.config, logger)(panicking)(context.Background(), req)

			if resp != nil {
				t.Errorf("resp = %v, want nil", resp)
			}
			if !errors.IsType(err, errors.ErrorTypeInternal) {
				t.Fatalf("err = %v, want internal error", err)
			}
			if handled != "counter map corrupted" {
				t.Errorf("PanicHandler got %v", handled)
			}
			out := buf.String()
			if !strings.Contains(out, "panic recovered") {
				t.Errorf("log = %q", out)
			}
			if got := strings.Contains(out, "stack="); got != tt.wantStack {
				t.Errorf("stack logged = %v, want %v", got, tt.wantStack)
			}
		})
	}
}

func TestMiddlewarePassThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ok := func(ctx context.Context, req core.Request) (core.Response, error) {
		return core.NewResponse(204, nil), nil
	}
	resp, err := Default(logger)(ok)(context.Background(), core.NewRequest(context.Background(), core.RequestInfo{}))
	if err != nil || resp.StatusCode() != 204 {
		t.Errorf("got %v, %v", resp, err)
	}
}

func TestComponent(t *testing.T) {
	comp, err := factory.Build(NewComponent(slog.Default()), map[string]bool{"stackTrace": false})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if comp.config.StackTrace {
		t.Error("stackTrace should be disabled by config")
	}
	if comp.Build() == nil {
		t.Error("Build() returned nil middleware")
	}
}
