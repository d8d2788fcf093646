package circuitbreaker

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratelimitfilter/internal/storage"
	"ratelimitfilter/internal/storage/memory"
	"ratelimitfilter/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clk *fakeClock, transitions *[]string) *Breaker {
	return New(Config{
		MaxFailures:      3,
		OpenTimeout:      time.Second,
		HalfOpenRequests: 1,
		Now:              clk.Now,
		OnStateChange: func(from, to State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
}

func TestBreaker_Transitions(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	var transitions []string
	b := newTestBreaker(clk, &transitions)

	assert.Equal(t, StateClosed, b.State())

	// A success in between resets the streak.
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	assert.Equal(t, StateClosed, b.State())

	b.Failure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	clk.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "only one trial call while half-open")

	// A failed trial call reopens.
	b.Failure()
	assert.Equal(t, StateOpen, b.State())

	clk.Advance(time.Second)
	require.True(t, b.Allow())
	b.Success()
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}

func TestBreaker_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, 5, b.config.MaxFailures)
	assert.Equal(t, 10*time.Second, b.config.OpenTimeout)
	assert.Equal(t, 1, b.config.HalfOpenRequests)
	assert.Equal(t, "unknown", State(9).String())
}

func TestBreaker_Call(t *testing.T) {
	b := New(Config{MaxFailures: 1})
	boom := stderrors.New("boom")
	ignored := stderrors.New("ignored")
	countable := func(err error) bool { return err == boom }

	err := b.Call(context.Background(), func(context.Context) error { return ignored }, countable)
	assert.Equal(t, ignored, err)
	assert.Equal(t, StateClosed, b.State())

	err = b.Call(context.Background(), func(context.Context) error { return boom }, countable)
	assert.Equal(t, boom, err)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err = b.Call(context.Background(), func(context.Context) error { called = true; return nil }, countable)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_IgnoredErrorKeepsHalfOpen(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	var transitions []string
	b := newTestBreaker(clk, &transitions)
	for i := 0; i < 3; i++ {
		b.Failure()
	}
	clk.Advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	countable := func(err error) bool { return !stderrors.Is(err, context.Canceled) }
	err := b.Call(context.Background(), func(context.Context) error { return context.Canceled }, countable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, b.State(), "a canceled call does not close the circuit")

	// The slot was returned so the next call still reaches the backend.
	require.NoError(t, b.Call(context.Background(), func(context.Context) error { return nil }, countable))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

// failingStore fails every operation with a storage error
type failingStore struct {
	storage.SharedStore
	calls int
}

func (f *failingStore) Get(ctx context.Context, key string) (storage.Slot, error) {
	f.calls++
	return storage.Slot{}, errors.NewError(errors.ErrorTypeStorage, "connection refused")
}

func (f *failingStore) Ping(ctx context.Context) error {
	return errors.NewError(errors.ErrorTypeStorage, "connection refused")
}

func TestStore_OpensOnBackendFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{}
	store := NewStore(inner, New(Config{MaxFailures: 2, OpenTimeout: time.Hour}))

	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, "k")
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, store.Breaker().State())

	_, err := store.Get(ctx, "k")
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, inner.calls, "open circuit does not reach the backend")

	// Ping bypasses the breaker.
	assert.Error(t, store.Ping(ctx))
}

func TestStore_VersionMismatchDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(memory.NewStore(nil), New(Config{MaxFailures: 1}))

	require.NoError(t, store.CompareAndSet(ctx, "k", []byte("a"), 0))
	err := store.CompareAndSet(ctx, "k", []byte("b"), 0)
	assert.ErrorIs(t, err, storage.ErrVersionMismatch)
	assert.Equal(t, StateClosed, store.Breaker().State())

	slot, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", string(slot.Value))

	require.NoError(t, store.Set(ctx, "k", []byte("c")))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
}

func TestStore_CanceledCallerDoesNotTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewStore(memory.NewStore(nil), New(Config{MaxFailures: 1}))
	_, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, StateClosed, store.Breaker().State())
}
