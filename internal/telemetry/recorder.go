package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/pkg/errors"
)

// Recorder reports decision telemetry through OpenTelemetry instruments
type Recorder struct {
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
	failures  metric.Int64Counter
	conflicts metric.Int64Counter
	snapshot  metric.Int64Histogram
}

// NewRecorder creates the decision instruments on t's meter
func (t *Telemetry) NewRecorder() (*Recorder, error) {
	return NewRecorder(t.meter)
}

// NewRecorder creates the decision instruments on meter
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	r.decisions, err = meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Admission decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.decisions: %w", err)
	}

	r.duration, err = meter.Float64Histogram(
		"ratelimit.decision.duration",
		metric.WithDescription("Time from snapshot load to persist"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.decision.duration: %w", err)
	}

	r.failures, err = meter.Int64Counter(
		"ratelimit.failures",
		metric.WithDescription("Failed decisions by reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.failures: %w", err)
	}

	r.conflicts, err = meter.Int64Counter(
		"ratelimit.conflicts",
		metric.WithDescription("Snapshot writes lost to a concurrent decision"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.conflicts: %w", err)
	}

	r.snapshot, err = meter.Int64Histogram(
		"ratelimit.snapshot.size",
		metric.WithDescription("Encoded size of persisted snapshots"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(64, 256, 1024, 4096, 16384, 65536),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.snapshot.size: %w", err)
	}

	return r, nil
}

func (r *Recorder) RecordDecision(namespace string, outcome pipeline.Outcome, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("outcome", string(outcome)),
	)
	r.decisions.Add(context.Background(), 1, attrs)
	r.duration.Record(context.Background(), duration.Seconds(), attrs)
}

func (r *Recorder) RecordFailure(namespace string, reason errors.ErrorType) {
	r.failures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("reason", string(reason)),
	))
}

func (r *Recorder) RecordConflict(namespace string) {
	r.conflicts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

func (r *Recorder) RecordSnapshot(namespace string, bytes, counters int) {
	r.snapshot.Record(context.Background(), int64(bytes), metric.WithAttributes(
		attribute.String("namespace", namespace),
	))
}

var _ pipeline.Recorder = (*Recorder)(nil)
