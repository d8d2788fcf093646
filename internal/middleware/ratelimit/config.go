package ratelimit

import (
	"context"
	"log/slog"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/internal/pipeline"
)

// FailureMode decides what happens to a request when no decision could be
// reached.
type FailureMode string

const (
	// FailClosed rejects the request with the decision error
	FailClosed FailureMode = "closed"
	// FailOpen admits the request and logs the error
	FailOpen FailureMode = "open"
)

// Decider reaches an admission decision for a request's attributes
type Decider interface {
	Decide(ctx context.Context, pairs []attributes.Pair) (pipeline.Decision, error)
}

// Config defines rate limit middleware configuration
type Config struct {
	Decider     Decider
	FailureMode FailureMode
	Logger      *slog.Logger
}
