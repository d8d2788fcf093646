// Package telemetry sets up OpenTelemetry tracing and metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "ratelimitfilter"

// Config holds telemetry configuration
type Config struct {
	Enabled bool
	Service string
	Version string

	Tracing TracingConfig
	// Metrics exports OpenTelemetry instruments through the Prometheus
	// registry passed with WithRegisterer
	Metrics bool
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled      bool
	Endpoint     string
	Insecure     bool
	Headers      map[string]string
	SampleRate   float64
	MaxBatchSize int
	BatchTimeout time.Duration
}

// Option customizes New
type Option func(*Telemetry)

// WithTracerProvider uses tp instead of building an OTLP exporter
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Telemetry) { t.tracerProvider = tp }
}

// WithRegisterer sets the Prometheus registry OpenTelemetry metrics are
// exported through
func WithRegisterer(reg promclient.Registerer) Option {
	return func(t *Telemetry) { t.registerer = reg }
}

// Telemetry manages OpenTelemetry providers
type Telemetry struct {
	config         Config
	tracerProvider trace.TracerProvider
	registerer     promclient.Registerer
	tracer         trace.Tracer
	meter          metric.Meter
	shutdown       []func(context.Context) error
	resource       *resource.Resource
	propagator     propagation.TextMapPropagator
}

// New creates a new telemetry instance. Disabled telemetry hands out no-op
// tracers and meters.
func New(config Config, opts ...Option) (*Telemetry, error) {
	t := &Telemetry{
		config:     config,
		tracer:     tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:      metricnoop.NewMeterProvider().Meter(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if !config.Enabled {
		return t, nil
	}

	if err := t.initResource(); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.Tracing.Enabled {
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if config.Metrics && t.registerer != nil {
		if err := t.initMetrics(); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	t.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(t.propagator)

	return t, nil
}

// initResource creates the OpenTelemetry resource
func (t *Telemetry) initResource() error {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(t.config.Service),
	}
	if t.config.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(t.config.Version))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	t.resource = res
	return nil
}

// initTracing initializes the tracing provider
func (t *Telemetry) initTracing() error {
	if t.tracerProvider != nil {
		t.tracer = t.tracerProvider.Tracer(instrumentationName)
		return nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(30 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  time.Minute,
		}),
	}
	if t.config.Tracing.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(t.config.Tracing.Endpoint))
	}
	if t.config.Tracing.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(t.config.Tracing.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Tracing.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if t.config.Tracing.MaxBatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(t.config.Tracing.MaxBatchSize))
	}
	if t.config.Tracing.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(t.config.Tracing.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(t.resource),
		sdktrace.WithSampler(Sampler(t.config.Tracing.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	t.tracerProvider = tp
	t.tracer = tp.Tracer(instrumentationName)
	t.shutdown = append(t.shutdown, tp.Shutdown)
	return nil
}

// Sampler samples a ratio of root spans. Rates outside (0, 1) sample
// everything.
func Sampler(rate float64) sdktrace.Sampler {
	if rate > 0 && rate < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

// initMetrics exports OpenTelemetry instruments through Prometheus
func (t *Telemetry) initMetrics() error {
	exporter, err := prometheus.New(prometheus.WithRegisterer(t.registerer))
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(t.resource),
	)

	otel.SetMeterProvider(mp)
	t.meter = mp.Meter(instrumentationName)
	t.shutdown = append(t.shutdown, mp.Shutdown)
	return nil
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Propagator returns the propagator
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Shutdown flushes and stops the providers New created
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartSpan starts a new span
func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// RecordError records an error on the span from context
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LogAttrs returns the trace and span IDs of ctx as log attributes
func LogAttrs(ctx context.Context) []any {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []any{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}
