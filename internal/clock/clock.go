// Package clock supplies the wall-clock time used for counter expiry.
//
// Reading the clock can fail. Callers must treat a failure as fatal for the
// current decision instead of substituting a value, since a wrong "now"
// silently lengthens or shortens every window.
package clock

import (
	"sync"
	"time"

	"ratelimitfilter/pkg/errors"
)

// Clock returns the current instant.
type Clock interface {
	Now() (time.Time, error)
}

// Func adapts an ordinary function to Clock.
type Func func() (time.Time, error)

// Now calls f.
func (f Func) Now() (time.Time, error) {
	return f()
}

type systemClock struct{}

func (systemClock) Now() (time.Time, error) {
	return time.Now(), nil
}

// System returns a clock backed by time.Now.
func System() Clock {
	return systemClock{}
}

// Read calls c.Now and converts any failure into a clock error.
func Read(c Clock) (time.Time, error) {
	if c == nil {
		return time.Time{}, errors.NewError(errors.ErrorTypeClock, "no clock configured")
	}
	now, err := c.Now()
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeClock) {
			return time.Time{}, err
		}
		return time.Time{}, errors.NewError(errors.ErrorTypeClock, "failed to read current time").WithCause(err)
	}
	if now.IsZero() {
		return time.Time{}, errors.NewError(errors.ErrorTypeClock, "clock returned zero time")
	}
	return now, nil
}

// Manual is a settable clock for tests and offline tooling.
type Manual struct {
	mu  sync.Mutex
	now time.Time
	err error
}

// NewManual creates a manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the configured instant or the configured failure.
func (m *Manual) Now() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, m.err
	}
	return m.now, nil
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Fail makes every following Now call return err. Passing nil clears it.
func (m *Manual) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
