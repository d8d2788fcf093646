// Package metrics connects the decision pipeline and the HTTP surface to
// the Prometheus metrics in pkg/metrics.
package metrics

import (
	"time"

	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/pkg/errors"
	"ratelimitfilter/pkg/metrics"
)

// Recorder feeds decision telemetry into Prometheus
type Recorder struct {
	m *metrics.Metrics
}

// NewRecorder wraps m as a pipeline.Recorder
func NewRecorder(m *metrics.Metrics) *Recorder {
	return &Recorder{m: m}
}

func (r *Recorder) RecordDecision(namespace string, outcome pipeline.Outcome, duration time.Duration) {
	r.m.ObserveDecision(namespace, string(outcome), duration)
}

func (r *Recorder) RecordFailure(namespace string, reason errors.ErrorType) {
	r.m.FailuresTotal.WithLabelValues(namespace, string(reason)).Inc()
}

func (r *Recorder) RecordConflict(namespace string) {
	r.m.ConflictsTotal.WithLabelValues(namespace).Inc()
}

func (r *Recorder) RecordSnapshot(namespace string, bytes, counters int) {
	r.m.SnapshotBytes.WithLabelValues(namespace).Set(float64(bytes))
	r.m.SnapshotCounters.WithLabelValues(namespace).Set(float64(counters))
}

var _ pipeline.Recorder = (*Recorder)(nil)
