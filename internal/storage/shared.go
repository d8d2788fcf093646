package storage

import (
	"context"
	stderrors "errors"
	"time"
)

// ErrVersionMismatch is returned by CompareAndSet when the slot changed
// since it was read.
var ErrVersionMismatch = stderrors.New("shared slot version mismatch")

// Slot is the value stored under a key together with its version.
// Found is false for an absent slot. Version is always the value to pass
// to CompareAndSet next; it is zero for a key that was never written.
type Slot struct {
	Value   []byte
	Version uint64
	Found   bool
}

// SharedStore is a whole-value key/value slot shared by every decision.
type SharedStore interface {
	// Get reads the slot under key. An absent key is not an error.
	Get(ctx context.Context, key string) (Slot, error)

	// Set overwrites the slot unconditionally.
	Set(ctx context.Context, key string, value []byte) error

	// CompareAndSet overwrites the slot only if its version still equals
	// expected, as returned by Get.
	CompareAndSet(ctx context.Context, key string, value []byte, expected uint64) error

	// Delete removes the slot.
	Delete(ctx context.Context, key string) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Config defines common configuration for shared stores
type Config struct {
	// OperationTimeout bounds each backend call (0 = caller's context only)
	OperationTimeout time.Duration
	// KeyPrefix is prepended to every key
	KeyPrefix string
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		OperationTimeout: 2 * time.Second,
	}
}
