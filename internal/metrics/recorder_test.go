package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/pkg/errors"
	pkgmetrics "ratelimitfilter/pkg/metrics"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := pkgmetrics.NewWithRegistry(reg, reg)
	r := NewRecorder(m)

	r.RecordDecision("api", pipeline.Denied, time.Millisecond)
	r.RecordFailure("api", errors.ErrorTypeStorage)
	r.RecordFailure("api", errors.ErrorTypeStorage)
	r.RecordConflict("api")
	r.RecordSnapshot("api", 128, 5)

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("api", "denied")); got != 1 {
		t.Errorf("denied decisions = %v", got)
	}
	if got := testutil.ToFloat64(m.FailuresTotal.WithLabelValues("api", "storage")); got != 2 {
		t.Errorf("storage failures = %v", got)
	}
	if got := testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("api")); got != 1 {
		t.Errorf("conflicts = %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotBytes.WithLabelValues("api")); got != 128 {
		t.Errorf("snapshot bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotCounters.WithLabelValues("api")); got != 5 {
		t.Errorf("snapshot counters = %v", got)
	}
}
