// Package retry computes jittered exponential delays between attempts.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes the delay before each retry
type Backoff struct {
	// Initial is the delay before the first retry (0 = retry immediately)
	Initial time.Duration
	// Max caps the delay
	Max time.Duration
	// Multiplier grows the delay per attempt
	Multiplier float64
	// Jitter spreads each delay by up to this fraction either way (0-1)
	Jitter float64
}

// DefaultBackoff returns the backoff used between snapshot conflicts
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    5 * time.Millisecond,
		Max:        100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.25,
	}
}

// Delay returns the delay before retry number attempt, counting from 1
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 || attempt < 1 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if j := math.Min(b.Jitter, 1); j > 0 {
		delay += (rand.Float64()*2 - 1) * j * delay
	}
	return time.Duration(delay)
}

// Wait sleeps for Delay(attempt) or until ctx is done, returning ctx's
// error in the latter case.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	d := b.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
