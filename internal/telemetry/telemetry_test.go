package telemetry

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"ratelimitfilter/internal/core"
	"ratelimitfilter/pkg/errors"
)

func newRecordingTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tel, err := New(Config{
		Enabled: true,
		Service: "ratelimitfilter-test",
		Tracing: TracingConfig{Enabled: true},
	}, WithTracerProvider(tp))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tel, sr
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New failed for disabled telemetry: %v", err)
	}

	_, span := tel.StartSpan(context.Background(), "noop")
	if span.IsRecording() {
		t.Error("disabled telemetry should not record spans")
	}
	span.End()

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_OTLPExporter(t *testing.T) {
	tel, err := New(Config{
		Enabled: true,
		Service: "ratelimitfilter-test",
		Tracing: TracingConfig{
			Enabled:      true,
			Endpoint:     "127.0.0.1:4318",
			Insecure:     true,
			SampleRate:   0.5,
			MaxBatchSize: 10,
			BatchTimeout: 100 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Nothing was exported, so shutdown has nothing to flush
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestSampler(t *testing.T) {
	for rate, want := range map[float64]string{
		0:   "AlwaysOnSampler",
		1:   "AlwaysOnSampler",
		0.3: "TraceIDRatioBased{0.3}",
	} {
		if got := Sampler(rate).Description(); !strings.Contains(got, want) {
			t.Errorf("Sampler(%v) = %s, want it to contain %s", rate, got, want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	tel, sr := newRecordingTelemetry(t)

	tests := []struct {
		name      string
		next      core.Handler
		status    int
		wantError bool
	}{
		{
			name: "allowed",
			next: func(ctx context.Context, req core.Request) (core.Response, error) {
				if !trace.SpanFromContext(ctx).IsRecording() {
					t.Error("handler context has no span")
				}
				return core.NewResponse(http.StatusOK, nil), nil
			},
			status: http.StatusOK,
		},
		{
			name: "denied",
			next: func(ctx context.Context, req core.Request) (core.Response, error) {
				return core.NewResponse(http.StatusTooManyRequests, nil), nil
			},
			status: http.StatusTooManyRequests,
		},
		{
			name: "storage failure",
			next: func(ctx context.Context, req core.Request) (core.Response, error) {
				return nil, errors.NewError(errors.ErrorTypeStorage, "down")
			},
			status:    http.StatusServiceUnavailable,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := core.NewRequest(context.Background(), core.RequestInfo{ID: "r1", Method: "GET", Path: "/items"})
			_, _ = tel.Middleware()(tt.next)(context.Background(), req)

			spans := sr.Ended()
			span := spans[len(spans)-1]
			if span.Name() != "GET /items" {
				t.Errorf("span name = %q", span.Name())
			}
			if span.SpanKind() != trace.SpanKindServer {
				t.Errorf("span kind = %v", span.SpanKind())
			}
			var status int64
			for _, kv := range span.Attributes() {
				if kv.Key == "http.response.status_code" {
					status = kv.Value.AsInt64()
				}
			}
			if status != int64(tt.status) {
				t.Errorf("http.response.status_code = %d, want %d", status, tt.status)
			}
			if got := span.Status().Code == codes.Error; got != tt.wantError {
				t.Errorf("error status = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestMiddlewareContinuesTrace(t *testing.T) {
	tel, sr := newRecordingTelemetry(t)

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req := core.NewRequest(context.Background(), core.RequestInfo{
		Method:  "GET",
		Path:    "/",
		Headers: map[string][]string{"Traceparent": {traceparent}},
	})

	var traceID string
	_, _ = tel.Middleware()(func(ctx context.Context, req core.Request) (core.Response, error) {
		traceID = ExtractTraceID(ctx)
		return core.NewResponse(http.StatusOK, nil), nil
	})(context.Background(), req)

	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %q", traceID)
	}
	if got := sr.Ended()[0].Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s", got)
	}
}

func TestHeaderCarrier(t *testing.T) {
	hc := HeaderCarrier{"traceparent": {"lower"}}
	if got := hc.Get("Traceparent"); got != "lower" {
		t.Errorf("Get() = %q", got)
	}

	out := HeaderCarrier{}
	propagation.TraceContext{}.Inject(trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{1},
			SpanID:     trace.SpanID{2},
			TraceFlags: trace.FlagsSampled,
		})), out)
	if out.Get("traceparent") == "" || len(out.Keys()) != 1 {
		t.Errorf("injected carrier = %v", out)
	}
}

func TestRecordError(t *testing.T) {
	tel, sr := newRecordingTelemetry(t)
	ctx, span := tel.StartSpan(context.Background(), "op")
	RecordError(ctx, stderrors.New("boom"))
	AddEvent(ctx, "retry")
	if attrs := LogAttrs(ctx); len(attrs) != 2 {
		t.Errorf("LogAttrs() = %v", attrs)
	}
	span.End()

	got := sr.Ended()[0]
	if got.Status().Code != codes.Error || len(got.Events()) != 2 {
		t.Errorf("status = %v, events = %d", got.Status(), len(got.Events()))
	}
	if LogAttrs(context.Background()) != nil {
		t.Error("LogAttrs() without a span should be nil")
	}
}

func TestPrometheusExport(t *testing.T) {
	reg := promclient.NewRegistry()
	tel, err := New(Config{Enabled: true, Service: "ratelimitfilter-test", Metrics: true}, WithRegisterer(reg))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tel.Shutdown(context.Background())

	rec, err := tel.NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	rec.RecordDecision("ratelimitfilter", "denied", time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "ratelimit_decisions") {
			found = true
		}
	}
	if !found {
		t.Error("ratelimit_decisions not exported")
	}
}
