package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
)

func testRequest() core.Request {
	return core.NewRequest(context.Background(), core.RequestInfo{
		ID:     "req-1",
		Method: "GET",
		Path:   "/items",
	})
}

func okHandler(ctx context.Context, req core.Request) (core.Response, error) {
	return core.NewResponse(http.StatusOK, []byte("ok")), nil
}

func TestChain(t *testing.T) {
	var order []string
	record := func(name string) core.Middleware {
		return func(next core.Handler) core.Handler {
			return func(ctx context.Context, req core.Request) (core.Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := Chain(record("first"), nil, record("second"), record("third"))(okHandler)
	if _, err := handler(context.Background(), testRequest()); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got := strings.Join(order, ","); got != "first,second,third" {
		t.Errorf("order = %s", got)
	}
}

func TestChainEmpty(t *testing.T) {
	resp, err := Chain()(okHandler)(context.Background(), testRequest())
	if err != nil || resp.StatusCode() != http.StatusOK {
		t.Errorf("empty chain = %v, %v", resp, err)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if _, err := Logging(logger)(okHandler)(context.Background(), testRequest()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"level=INFO", "id=req-1", "path=/items", "status=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}

	buf.Reset()
	failing := func(ctx context.Context, req core.Request) (core.Response, error) {
		return nil, errors.NewError(errors.ErrorTypeStorage, "down")
	}
	if _, err := Logging(logger)(failing)(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error")
	}
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "storage: down") {
		t.Errorf("failure log = %q", out)
	}
}
