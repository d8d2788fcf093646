package memory

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"ratelimitfilter/internal/storage"
	"ratelimitfilter/pkg/errors"
)

func TestNewStore(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		store := NewStore(nil)
		defer store.Close()

		if store.config == nil {
			t.Fatal("expected default config to be used")
		}
	})

	t.Run("with custom config", func(t *testing.T) {
		config := &storage.Config{KeyPrefix: "test:"}
		store := NewStore(config)
		defer store.Close()

		if store.config != config {
			t.Error("expected custom config to be used")
		}
	})
}

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	defer store.Close()

	slot, err := store.Get(ctx, "counters")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if slot.Found || slot.Version != 0 || slot.Value != nil {
		t.Errorf("Get() on absent key = %+v, want empty slot", slot)
	}

	if err := store.Set(ctx, "counters", []byte("v1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	slot, err = store.Get(ctx, "counters")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !slot.Found || string(slot.Value) != "v1" || slot.Version == 0 {
		t.Errorf("Get() = %+v, want v1 with a version", slot)
	}

	// Returned values are copies.
	slot.Value[0] = 'X'
	again, _ := store.Get(ctx, "counters")
	if string(again.Value) != "v1" {
		t.Errorf("stored value mutated through Get() result: %q", again.Value)
	}
}

func TestStore_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	defer store.Close()

	tests := []struct {
		name     string
		expected func(current uint64) uint64
		wantErr  error
	}{
		{name: "create requires zero", expected: func(uint64) uint64 { return 0 }},
		{name: "matching version", expected: func(c uint64) uint64 { return c }},
		{name: "stale version", expected: func(c uint64) uint64 { return c - 1 }, wantErr: storage.ErrVersionMismatch},
		{name: "zero on existing slot", expected: func(uint64) uint64 { return 0 }, wantErr: storage.ErrVersionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, _ := store.Get(ctx, "k")
			err := store.CompareAndSet(ctx, "k", []byte(tt.name), tt.expected(slot.Version))
			if !stderrors.Is(err, tt.wantErr) {
				t.Fatalf("CompareAndSet() error = %v, want %v", err, tt.wantErr)
			}
			after, _ := store.Get(ctx, "k")
			if tt.wantErr == nil && string(after.Value) != tt.name {
				t.Errorf("value = %q, want %q", after.Value, tt.name)
			}
			if tt.wantErr != nil && after.Version != slot.Version {
				t.Errorf("version changed on failed CAS: %d -> %d", slot.Version, after.Version)
			}
		})
	}
}

func TestStore_DeleteDoesNotReuseVersions(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	defer store.Close()

	_ = store.Set(ctx, "k", []byte("a"))
	stale, _ := store.Get(ctx, "k")

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_ = store.Set(ctx, "k", []byte("b"))

	if err := store.CompareAndSet(ctx, "k", []byte("c"), stale.Version); !stderrors.Is(err, storage.ErrVersionMismatch) {
		t.Errorf("CompareAndSet() with pre-delete version error = %v, want mismatch", err)
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	a := NewStore(&storage.Config{KeyPrefix: "a:"})
	defer a.Close()

	_ = a.Set(ctx, "k", []byte("v"))
	if _, ok := a.slots["a:k"]; !ok {
		t.Error("expected prefixed key to be stored")
	}
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	store.Close()

	checks := map[string]error{
		"get":    func() error { _, err := store.Get(ctx, "k"); return err }(),
		"set":    store.Set(ctx, "k", nil),
		"cas":    store.CompareAndSet(ctx, "k", nil, 0),
		"delete": store.Delete(ctx, "k"),
		"ping":   store.Ping(ctx),
	}
	for op, err := range checks {
		if !errors.IsType(err, errors.ErrorTypeStorage) {
			t.Errorf("%s on closed store error = %v, want storage error", op, err)
		}
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewStore(nil)
	defer store.Close()

	if _, err := store.Get(ctx, "k"); !errors.IsType(err, errors.ErrorTypeStorage) {
		t.Errorf("Get() error = %v, want storage error", err)
	}
	if err := store.Set(ctx, "k", nil); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Set() error = %v, want context.Canceled in chain", err)
	}
}

func TestStore_ConcurrentCAS(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	defer store.Close()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.CompareAndSet(ctx, "k", []byte("x"), 0); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one creator, got %d", wins)
	}
}
