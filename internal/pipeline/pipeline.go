// Package pipeline runs the admission decision for one request: it loads
// the shared counter snapshot, assembles a request-scoped engine, checks
// and charges the applicable limits, and persists the updated snapshot.
package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/clock"
	"ratelimitfilter/internal/engine"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/retry"
	"ratelimitfilter/internal/snapshot"
	"ratelimitfilter/internal/storage"
	"ratelimitfilter/pkg/errors"
)

const (
	DefaultSnapshotKey        = "ratelimitfilter/counters"
	DefaultMaxConflictRetries = 3

	// cost charged per request
	requestCost = 1
)

// Config configures a Pipeline.
type Config struct {
	Store              storage.SharedStore
	Clock              clock.Clock
	Registry           *limit.Registry
	Namespace          string
	SnapshotKey        string
	Consistency        Consistency
	MaxConflictRetries int
	// ConflictBackoff spaces retries after a lost compare-and-set; the
	// zero value retries immediately
	ConflictBackoff retry.Backoff
	Logger          *slog.Logger
	Recorder        Recorder
	Tracer          trace.Tracer
}

// Pipeline decides admission for requests. It is safe for concurrent use;
// all counter state lives in the shared store.
type Pipeline struct {
	store       storage.SharedStore
	clock       clock.Clock
	registry    atomic.Pointer[limit.Registry]
	namespace   string
	key         string
	consistency Consistency
	maxRetries  int
	backoff     retry.Backoff
	logger      *slog.Logger
	recorder    Recorder
	tracer      trace.Tracer
}

// New creates a pipeline, filling defaults for optional fields.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "pipeline requires a shared store")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Registry == nil {
		cfg.Registry = limit.DefaultRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = limit.DefaultNamespace
	}
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = DefaultSnapshotKey
	}
	switch cfg.Consistency {
	case "":
		cfg.Consistency = ConsistencyCAS
	case ConsistencyCAS, ConsistencyBestEffort:
	default:
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "unknown consistency mode").
			WithDetail("consistency", cfg.Consistency)
	}
	if cfg.MaxConflictRetries < 0 {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "max conflict retries must not be negative")
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("ratelimitfilter")
	}

	p := &Pipeline{
		store:       cfg.Store,
		clock:       cfg.Clock,
		namespace:   cfg.Namespace,
		key:         cfg.SnapshotKey,
		consistency: cfg.Consistency,
		maxRetries:  cfg.MaxConflictRetries,
		backoff:     cfg.ConflictBackoff,
		logger:      cfg.Logger.With("component", "pipeline"),
		recorder:    cfg.Recorder,
		tracer:      cfg.Tracer,
	}
	p.registry.Store(cfg.Registry)
	return p, nil
}

// Namespace returns the namespace requests are evaluated in.
func (p *Pipeline) Namespace() string { return p.namespace }

// SnapshotKey returns the shared slot key.
func (p *Pipeline) SnapshotKey() string { return p.key }

// Registry returns the limits currently in force.
func (p *Pipeline) Registry() *limit.Registry { return p.registry.Load() }

// SetRegistry replaces the limits for subsequent decisions.
func (p *Pipeline) SetRegistry(r *limit.Registry) {
	if r == nil {
		return
	}
	p.registry.Store(r)
	p.logger.Info("limit registry replaced", "limits", r.Len())
}

// Decide runs the admission decision for one request. A Denied decision is
// not an error. Every failure returns a Failed decision and an *errors.Error
// of type decode, clock, storage or evaluation.
func (p *Pipeline) Decide(ctx context.Context, pairs []attributes.Pair) (Decision, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "ratelimit.decide",
		trace.WithAttributes(attribute.String("ratelimit.namespace", p.namespace)),
	)
	defer span.End()

	d, err := p.decide(ctx, pairs)
	if err != nil {
		d.Outcome = Failed
		reason := errors.TypeOf(err)
		p.recorder.RecordFailure(p.namespace, reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		p.logger.Warn("rate limit decision failed",
			"namespace", p.namespace,
			"reason", reason,
			"attempts", d.Attempts,
			"error", err,
		)
	} else {
		p.logger.Debug("rate limit decision",
			"namespace", p.namespace,
			"outcome", d.Outcome,
			"limit", d.Limit,
			"attempts", d.Attempts,
		)
	}

	span.SetAttributes(
		attribute.String("ratelimit.outcome", string(d.Outcome)),
		attribute.Int("ratelimit.attempts", d.Attempts),
	)
	if d.Limit != "" {
		span.SetAttributes(attribute.String("ratelimit.limit", d.Limit))
	}
	p.recorder.RecordDecision(p.namespace, d.Outcome, time.Since(start))
	return d, err
}

func (p *Pipeline) decide(ctx context.Context, pairs []attributes.Pair) (Decision, error) {
	reg := p.registry.Load()
	attrs := attributes.Extract(pairs)
	d := Decision{Namespace: p.namespace}

	for {
		d.Attempts++
		err := p.attempt(ctx, reg, attrs, &d)
		if !stderrors.Is(err, storage.ErrVersionMismatch) {
			return d, err
		}

		p.recorder.RecordConflict(p.namespace)
		if d.Attempts > p.maxRetries {
			return d, errors.NewError(errors.ErrorTypeStorage, "snapshot changed concurrently on every attempt").
				WithCause(err).
				WithDetail("attempts", d.Attempts)
		}
		if waitErr := p.backoff.Wait(ctx, d.Attempts); waitErr != nil {
			return d, errors.NewError(errors.ErrorTypeStorage, "decision canceled during retry").WithCause(waitErr)
		}
		p.logger.Debug("snapshot changed concurrently, retrying", "attempt", d.Attempts)
	}
}

// attempt runs one load-to-persist cycle. It returns the bare
// storage.ErrVersionMismatch when a CAS write loses.
func (p *Pipeline) attempt(ctx context.Context, reg *limit.Registry, attrs attributes.Map, d *Decision) error {
	seed, slot, err := p.Load(ctx)
	if err != nil {
		return err
	}

	eng, err := engine.Build(p.clock, reg, seed)
	if err != nil {
		return asEvaluation(err, "failed to assemble limiter")
	}

	verdict, err := eng.Check(p.namespace, attrs, requestCost)
	if err != nil {
		return asEvaluation(err, "failed to check limits")
	}
	d.Matched = verdict.Matched
	if verdict.Limited {
		d.Outcome = Denied
		d.Limit = verdict.Limit
		return nil
	}

	if err := eng.UpdateCounters(p.namespace, attrs, requestCost); err != nil {
		return asEvaluation(err, "failed to update counters")
	}

	blob, count, err := p.encode(eng)
	if err != nil {
		return err
	}

	switch p.consistency {
	case ConsistencyBestEffort:
		err = p.store.Set(ctx, p.key, blob)
	default:
		err = p.store.CompareAndSet(ctx, p.key, blob, slot.Version)
	}
	if err != nil {
		if stderrors.Is(err, storage.ErrVersionMismatch) {
			return storage.ErrVersionMismatch
		}
		return asStorage(err, "failed to persist snapshot")
	}

	d.Outcome = Allowed
	d.Counters = count
	d.SnapshotBytes = len(blob)
	p.recorder.RecordSnapshot(p.namespace, len(blob), count)
	return nil
}

// Load reads and decodes the shared snapshot. An absent slot yields an
// empty snapshot; a present slot that does not decode is an error.
func (p *Pipeline) Load(ctx context.Context) (snapshot.Snapshot, storage.Slot, error) {
	slot, err := p.store.Get(ctx, p.key)
	if err != nil {
		return nil, storage.Slot{}, asStorage(err, "failed to load snapshot")
	}
	if !slot.Found {
		return snapshot.New(), slot, nil
	}

	snap, err := snapshot.Decode(slot.Value)
	if err != nil {
		return nil, slot, err
	}
	return snap, slot, nil
}

// encode reads back every live counter and stamps it with an absolute
// expiry relative to the current time.
func (p *Pipeline) encode(eng *engine.Engine) ([]byte, int, error) {
	counters, err := eng.AllCounters()
	if err != nil {
		return nil, 0, asEvaluation(err, "failed to read counters")
	}
	now, err := clock.Read(p.clock)
	if err != nil {
		return nil, 0, err
	}

	snap := snapshot.New()
	for _, c := range counters {
		snap.Put(snapshot.Entry{
			Counter:   c.Counter,
			Hits:      c.Hits,
			ExpiresAt: now.Add(c.ExpiresIn),
		})
	}
	return snapshot.Encode(snap), len(counters), nil
}

// asEvaluation keeps clock and evaluation errors and wraps anything else
// as an evaluation error.
func asEvaluation(err error, msg string) error {
	if errors.IsType(err, errors.ErrorTypeClock) || errors.IsType(err, errors.ErrorTypeEvaluation) {
		return err
	}
	return errors.NewError(errors.ErrorTypeEvaluation, msg).WithCause(err)
}

func asStorage(err error, msg string) error {
	if errors.IsType(err, errors.ErrorTypeStorage) {
		return err
	}
	return errors.NewError(errors.ErrorTypeStorage, msg).WithCause(err)
}
