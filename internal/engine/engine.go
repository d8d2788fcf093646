// Package engine is the in-memory fixed-window limiter that serves a single
// admission decision. It is seeded from a snapshot, consulted, mutated, and
// read back before being discarded; nothing in it outlives the request.
package engine

import (
	"sort"
	"time"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/clock"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/snapshot"
	"ratelimitfilter/pkg/errors"
)

// CounterState is a live counter as seen at the time it was read.
type CounterState struct {
	Counter   limit.Counter
	Hits      int64
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Verdict is the result of a check.
type Verdict struct {
	Limited bool
	// Limit names the first limit that would be exceeded.
	Limit string
	// Matched lists every applicable limit in registration order.
	Matched []string
}

type entry struct {
	counter   limit.Counter
	hits      int64
	expiresAt time.Time
}

// Engine holds limits and a counter table. It is not safe for concurrent
// use; each decision builds its own.
type Engine struct {
	clock    clock.Clock
	limits   map[string][]limit.Limit
	names    map[string]struct{}
	counters map[string]*entry
}

// New creates an empty engine.
func New(clk clock.Clock) *Engine {
	return &Engine{
		clock:    clk,
		limits:   make(map[string][]limit.Limit),
		names:    make(map[string]struct{}),
		counters: make(map[string]*entry),
	}
}

// Build assembles an engine for one decision: it attaches every limit of
// reg and seeds the counter table from seed. Expired seeds are skipped so
// their counters start fresh.
func Build(clk clock.Clock, reg *limit.Registry, seed snapshot.Snapshot) (*Engine, error) {
	e := New(clk)
	if reg != nil {
		for _, l := range reg.All() {
			if err := e.AddLimit(l); err != nil {
				return nil, errors.NewError(errors.ErrorTypeEvaluation, "failed to attach limit").
					WithCause(err).
					WithDetail("limit", l.Name)
			}
		}
	}

	for _, s := range seed.Entries() {
		if err := e.Seed(s); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddLimit attaches l. Adding a second limit with the same namespace and
// name is a conflict.
func (e *Engine) AddLimit(l limit.Limit) error {
	if err := l.Validate(); err != nil {
		return err
	}
	id := l.Namespace + "\x00" + l.Name
	if _, exists := e.names[id]; exists {
		return errors.NewError(errors.ErrorTypeConflict, "limit already added").
			WithDetail("namespace", l.Namespace).
			WithDetail("limit", l.Name)
	}
	e.names[id] = struct{}{}
	e.limits[l.Namespace] = append(e.limits[l.Namespace], l)
	return nil
}

// Seed inserts a stored counter. It is a no-op when the entry has expired.
func (e *Engine) Seed(s snapshot.Entry) error {
	now, err := clock.Read(e.clock)
	if err != nil {
		return err
	}
	e.seed(s, now)
	return nil
}

func (e *Engine) seed(s snapshot.Entry, now time.Time) {
	if !s.ExpiresAt.After(now) {
		return
	}
	expiresAt := s.ExpiresAt
	// A window shortened by a rule reload caps the stored expiry.
	if l, ok := e.lookup(s.Counter.Namespace, s.Counter.Limit); ok {
		if ceiling := now.Add(l.Window); expiresAt.After(ceiling) {
			expiresAt = ceiling
		}
	}
	e.counters[s.Counter.Key()] = &entry{
		counter:   s.Counter,
		hits:      s.Hits,
		expiresAt: expiresAt,
	}
}

// Check reports whether charging cost would exceed any applicable limit in
// namespace, naming the first one that would. Nothing is mutated.
func (e *Engine) Check(namespace string, attrs attributes.Map, cost int64) (Verdict, error) {
	if cost < 0 {
		return Verdict{}, errors.NewError(errors.ErrorTypeEvaluation, "cost must not be negative").
			WithDetail("cost", cost)
	}
	now, err := clock.Read(e.clock)
	if err != nil {
		return Verdict{}, err
	}

	var v Verdict
	for _, l := range e.limits[namespace] {
		c, ok := l.CounterFor(attrs)
		if !ok {
			continue
		}
		v.Matched = append(v.Matched, l.Name)
		if e.hits(c, now)+cost > l.MaxValue && !v.Limited {
			v.Limited = true
			v.Limit = l.Name
		}
	}
	return v, nil
}

// UpdateCounters charges cost to the counter of every applicable limit in
// namespace. Absent or expired counters start a new window at now.
func (e *Engine) UpdateCounters(namespace string, attrs attributes.Map, cost int64) error {
	if cost < 0 {
		return errors.NewError(errors.ErrorTypeEvaluation, "cost must not be negative").
			WithDetail("cost", cost)
	}
	now, err := clock.Read(e.clock)
	if err != nil {
		return err
	}

	for _, l := range e.limits[namespace] {
		c, ok := l.CounterFor(attrs)
		if !ok {
			continue
		}
		key := c.Key()
		ent, exists := e.counters[key]
		if !exists || !ent.expiresAt.After(now) {
			e.counters[key] = &entry{counter: c, hits: cost, expiresAt: now.Add(l.Window)}
			continue
		}
		ent.hits += cost
	}
	return nil
}

// AllCounters returns every live counter of every namespace ordered by key,
// including counters seeded for limits that are no longer attached.
func (e *Engine) AllCounters() ([]CounterState, error) {
	now, err := clock.Read(e.clock)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(e.counters))
	for k, ent := range e.counters {
		if ent.expiresAt.After(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]CounterState, 0, len(keys))
	for _, k := range keys {
		ent := e.counters[k]
		out = append(out, CounterState{
			Counter:   ent.counter,
			Hits:      ent.hits,
			ExpiresAt: ent.expiresAt,
			ExpiresIn: ent.expiresAt.Sub(now),
		})
	}
	return out, nil
}

func (e *Engine) hits(c limit.Counter, now time.Time) int64 {
	ent, ok := e.counters[c.Key()]
	if !ok || !ent.expiresAt.After(now) {
		return 0
	}
	return ent.hits
}

func (e *Engine) lookup(namespace, name string) (limit.Limit, bool) {
	for _, l := range e.limits[namespace] {
		if l.Name == name {
			return l, true
		}
	}
	return limit.Limit{}, false
}
