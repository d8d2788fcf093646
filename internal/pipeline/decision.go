package pipeline

import (
	"time"

	"ratelimitfilter/pkg/errors"
)

// Outcome is the terminal state of one decision.
type Outcome string

const (
	Allowed Outcome = "allowed"
	Denied  Outcome = "denied"
	Failed  Outcome = "failed"
)

// Decision describes how a request was admitted.
type Decision struct {
	Outcome   Outcome
	Namespace string
	// Limit names the limit that denied the request.
	Limit string
	// Matched lists the limits that applied to the request.
	Matched []string
	// Attempts counts load-to-persist cycles, more than one only after
	// concurrent snapshot updates.
	Attempts int
	// Counters and SnapshotBytes describe the persisted snapshot.
	Counters      int
	SnapshotBytes int
}

// Consistency selects how the snapshot is written back.
type Consistency string

const (
	// ConsistencyCAS writes with compare-and-set and restarts the cycle
	// when another decision persisted in between.
	ConsistencyCAS Consistency = "cas"
	// ConsistencyBestEffort overwrites unconditionally; concurrent
	// decisions may lose each other's increments.
	ConsistencyBestEffort Consistency = "best_effort"
)

// Recorder receives decision telemetry.
type Recorder interface {
	RecordDecision(namespace string, outcome Outcome, duration time.Duration)
	RecordFailure(namespace string, reason errors.ErrorType)
	RecordConflict(namespace string)
	RecordSnapshot(namespace string, bytes, counters int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordDecision(string, Outcome, time.Duration) {}
func (NopRecorder) RecordFailure(string, errors.ErrorType)        {}
func (NopRecorder) RecordConflict(string)                         {}
func (NopRecorder) RecordSnapshot(string, int, int)               {}

// Recorders fans out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordDecision(namespace string, outcome Outcome, duration time.Duration) {
	for _, r := range rs {
		r.RecordDecision(namespace, outcome, duration)
	}
}

func (rs Recorders) RecordFailure(namespace string, reason errors.ErrorType) {
	for _, r := range rs {
		r.RecordFailure(namespace, reason)
	}
}

func (rs Recorders) RecordConflict(namespace string) {
	for _, r := range rs {
		r.RecordConflict(namespace)
	}
}

func (rs Recorders) RecordSnapshot(namespace string, bytes, counters int) {
	for _, r := range rs {
		r.RecordSnapshot(namespace, bytes, counters)
	}
}
