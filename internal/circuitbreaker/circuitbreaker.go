// Package circuitbreaker stops calls to a failing shared store for a while
// so decisions fail fast instead of each waiting out the store timeout.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed lets every call through
	StateClosed State = iota
	// StateOpen rejects every call
	StateOpen
	// StateHalfOpen lets a few trial calls through
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when the circuit rejects a call
var ErrOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// OpenTimeout is how long the circuit stays open before trying again
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial calls allowed while half-open;
	// that many successes close the circuit again
	HalfOpenRequests int
	// OnStateChange is called synchronously on every transition
	OnStateChange func(from, to State)
	// Now replaces time.Now in tests
	Now func() time.Time
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		OpenTimeout:      10 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Breaker counts consecutive failures and opens after MaxFailures
type Breaker struct {
	config Config

	mu        sync.Mutex
	state     State
	failures  int
	trials    int
	successes int
	openedAt  time.Time
}

// New creates a breaker, filling defaults for unset fields
func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = def.OpenTimeout
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = def.HalfOpenRequests
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{config: config}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

// Allow reports whether a call may proceed. A true result while half-open
// reserves one trial call, which must be reported with Success, Failure or
// Release.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.trials < b.config.HalfOpenRequests {
			b.trials++
			return true
		}
		return false
	default:
		return false
	}
}

// Success records a call that reached the backend
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenRequests {
			b.transition(StateClosed)
		}
	}
}

// Failure records a call the backend failed
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.MaxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// Release returns a half-open trial slot for a call that says nothing about
// the backend, such as one canceled by its caller.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.trials > 0 {
		b.trials--
	}
}

// Call runs fn when the circuit allows it. countable decides whether an
// error returned by fn is a backend failure; other errors are neither.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error, countable func(error) bool) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.Success()
	case countable(err):
		b.Failure()
	default:
		b.Release()
	}
	return err
}

// expire moves an open circuit to half-open once OpenTimeout has passed
func (b *Breaker) expire() {
	if b.state == StateOpen && b.config.Now().Sub(b.openedAt) >= b.config.OpenTimeout {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	b.trials = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.config.Now()
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
