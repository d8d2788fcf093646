package circuitbreaker

import (
	"context"
	stderrors "errors"

	"ratelimitfilter/internal/storage"
	"ratelimitfilter/pkg/errors"
)

// Store guards a shared store with a breaker. Version mismatches and
// canceled callers are not backend failures and never trip the circuit.
type Store struct {
	inner   storage.SharedStore
	breaker *Breaker
}

// NewStore wraps inner
func NewStore(inner storage.SharedStore, breaker *Breaker) *Store {
	return &Store{inner: inner, breaker: breaker}
}

func (s *Store) Get(ctx context.Context, key string) (storage.Slot, error) {
	var slot storage.Slot
	err := s.call(ctx, key, func(ctx context.Context) error {
		var err error
		slot, err = s.inner.Get(ctx, key)
		return err
	})
	return slot, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.call(ctx, key, func(ctx context.Context) error {
		return s.inner.Set(ctx, key, value)
	})
}

func (s *Store) CompareAndSet(ctx context.Context, key string, value []byte, expected uint64) error {
	return s.call(ctx, key, func(ctx context.Context) error {
		return s.inner.CompareAndSet(ctx, key, value, expected)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.call(ctx, key, func(ctx context.Context) error {
		return s.inner.Delete(ctx, key)
	})
}

// Ping always reaches the backend so health checks see its real state
func (s *Store) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *Store) Close() error {
	return s.inner.Close()
}

// Breaker returns the breaker guarding the store
func (s *Store) Breaker() *Breaker {
	return s.breaker
}

func (s *Store) call(ctx context.Context, key string, fn func(context.Context) error) error {
	err := s.breaker.Call(ctx, fn, func(err error) bool {
		return !stderrors.Is(err, storage.ErrVersionMismatch) && ctx.Err() == nil
	})
	if stderrors.Is(err, ErrOpen) {
		return errors.NewError(errors.ErrorTypeStorage, "shared store unavailable").
			WithCause(err).
			WithDetail("key", key)
	}
	return err
}

var _ storage.SharedStore = (*Store)(nil)
