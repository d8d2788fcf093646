package redis

import (
	"context"
	"fmt"
	"strconv"

	"ratelimitfilter/internal/storage"
	"ratelimitfilter/pkg/errors"
)

// Client defines the interface for Redis operations
type Client interface {
	// Eval executes a Lua script
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	// Ping checks the connection
	Ping(ctx context.Context) error
	// Close closes the connection
	Close() error
}

// Each slot is a hash with a "data" field and a monotonically increasing
// "version" field. Delete drops only the data so versions are never reused.
const (
	getScript = `
		return redis.call('HMGET', KEYS[1], 'data', 'version')
	`

	setScript = `
		redis.call('HSET', KEYS[1], 'data', ARGV[1])
		return redis.call('HINCRBY', KEYS[1], 'version', 1)
	`

	casScript = `
		local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
		if current ~= tonumber(ARGV[2]) then
			return 0
		end
		redis.call('HSET', KEYS[1], 'data', ARGV[1])
		redis.call('HINCRBY', KEYS[1], 'version', 1)
		return 1
	`

	deleteScript = `
		if redis.call('HEXISTS', KEYS[1], 'data') == 1 then
			redis.call('HDEL', KEYS[1], 'data')
			redis.call('HINCRBY', KEYS[1], 'version', 1)
		end
		return 1
	`
)

// Store implements SharedStore using Redis
type Store struct {
	client Client
	config *storage.Config
}

// NewStore creates a new Redis store
func NewStore(client Client, config *storage.Config) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}
	return &Store{
		client: client,
		config: config,
	}
}

// Get reads the slot under key
func (s *Store) Get(ctx context.Context, key string) (storage.Slot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.client.Eval(ctx, getScript, []string{s.key(key)})
	if err != nil {
		return storage.Slot{}, storageError("get", key, err)
	}

	res, ok := result.([]interface{})
	if !ok || len(res) != 2 {
		return storage.Slot{}, storageError("get", key, fmt.Errorf("unexpected script result %T", result))
	}

	var slot storage.Slot
	if res[1] != nil {
		version, err := parseUint(res[1])
		if err != nil {
			return storage.Slot{}, storageError("get", key, err)
		}
		slot.Version = version
	}
	if res[0] != nil {
		data, ok := res[0].(string)
		if !ok {
			return storage.Slot{}, storageError("get", key, fmt.Errorf("unexpected data type %T", res[0]))
		}
		slot.Value = []byte(data)
		slot.Found = true
	}
	return slot, nil
}

// Set overwrites the slot under key
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Eval(ctx, setScript, []string{s.key(key)}, value); err != nil {
		return storageError("set", key, err)
	}
	return nil
}

// CompareAndSet overwrites the slot if its version equals expected
func (s *Store) CompareAndSet(ctx context.Context, key string, value []byte, expected uint64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.client.Eval(ctx, casScript, []string{s.key(key)}, value, strconv.FormatUint(expected, 10))
	if err != nil {
		return storageError("compare-and-set", key, err)
	}

	swapped, ok := result.(int64)
	if !ok {
		return storageError("compare-and-set", key, fmt.Errorf("unexpected script result %T", result))
	}
	if swapped != 1 {
		return storage.ErrVersionMismatch
	}
	return nil
}

// Delete removes the slot under key
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Eval(ctx, deleteScript, []string{s.key(key)}); err != nil {
		return storageError("delete", key, err)
	}
	return nil
}

// Ping checks Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx); err != nil {
		return storageError("ping", "", err)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) key(key string) string {
	return s.config.KeyPrefix + key
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.config.OperationTimeout)
	}
	return ctx, func() {}
}

func parseUint(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseUint(t, 10, 64)
	case int64:
		return uint64(t), nil
	default:
		return 0, fmt.Errorf("unexpected version type %T", v)
	}
}

func storageError(op, key string, cause error) error {
	return errors.NewError(errors.ErrorTypeStorage, "redis store "+op+" failed").
		WithCause(cause).
		WithDetail("key", key)
}
