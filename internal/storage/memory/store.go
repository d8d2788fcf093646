package memory

import (
	"context"
	"sync"

	"ratelimitfilter/internal/storage"
	"ratelimitfilter/pkg/errors"
)

// slot represents a stored value and its version
type slot struct {
	value   []byte
	version uint64
}

// Store implements SharedStore in process memory. It backs single-instance
// deployments and tests.
type Store struct {
	slots  map[string]*slot
	mu     sync.Mutex
	config *storage.Config
	seq    uint64
	closed bool
}

// NewStore creates a new memory store
func NewStore(config *storage.Config) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}
	return &Store{
		slots:  make(map[string]*slot),
		config: config,
	}
}

// Get returns a copy of the slot under key
func (s *Store) Get(ctx context.Context, key string) (storage.Slot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Slot{}, storageError("get", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.Slot{}, storageError("get", key, errClosed)
	}
	sl, ok := s.slots[s.config.KeyPrefix+key]
	if !ok {
		return storage.Slot{}, nil
	}
	return storage.Slot{
		Value:   append([]byte(nil), sl.value...),
		Version: sl.version,
		Found:   true,
	}, nil
}

// Set overwrites the slot under key
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return storageError("set", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storageError("set", key, errClosed)
	}
	s.write(s.config.KeyPrefix+key, value)
	return nil
}

// CompareAndSet overwrites the slot if its version equals expected
func (s *Store) CompareAndSet(ctx context.Context, key string, value []byte, expected uint64) error {
	if err := ctx.Err(); err != nil {
		return storageError("compare-and-set", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storageError("compare-and-set", key, errClosed)
	}
	k := s.config.KeyPrefix + key
	var current uint64
	if sl, ok := s.slots[k]; ok {
		current = sl.version
	}
	if current != expected {
		return storage.ErrVersionMismatch
	}
	s.write(k, value)
	return nil
}

// Delete removes the slot under key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storageError("delete", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storageError("delete", key, errClosed)
	}
	delete(s.slots, s.config.KeyPrefix+key)
	return nil
}

// Ping reports whether the store is open
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storageError("ping", "", errClosed)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// write stores value under a fresh version. Versions are drawn from one
// store-wide sequence so a slot recreated after a delete never reuses a
// version a stale reader holds.
func (s *Store) write(key string, value []byte) {
	s.seq++
	s.slots[key] = &slot{
		value:   append([]byte(nil), value...),
		version: s.seq,
	}
}

var errClosed = errors.NewError(errors.ErrorTypeStorage, "store is closed")

func storageError(op, key string, cause error) error {
	return errors.NewError(errors.ErrorTypeStorage, "memory store "+op+" failed").
		WithCause(cause).
		WithDetail("key", key)
}
