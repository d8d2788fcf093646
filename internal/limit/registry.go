package limit

import (
	"sync"

	"ratelimitfilter/pkg/errors"
)

// Registry holds an ordered set of limits. A registry handed to the decision
// pipeline is treated as read-only; reloads build a new registry.
type Registry struct {
	mu     sync.RWMutex
	limits []Limit
	index  map[string]int
}

// NewRegistry creates a registry holding limits in the given order.
func NewRegistry(limits ...Limit) (*Registry, error) {
	r := &Registry{index: make(map[string]int)}
	for _, l := range limits {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry with only DefaultLimit.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultLimit())
	return r
}

// Register appends l. It fails with a conflict error when a limit with the
// same namespace and name is already registered.
func (r *Registry) Register(l Limit) error {
	if err := l.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := limitID(l.Namespace, l.Name)
	if _, exists := r.index[id]; exists {
		return errors.NewError(errors.ErrorTypeConflict, "limit already registered").
			WithDetail("namespace", l.Namespace).
			WithDetail("limit", l.Name)
	}
	r.index[id] = len(r.limits)
	r.limits = append(r.limits, l)
	return nil
}

// All returns every limit in registration order.
func (r *Registry) All() []Limit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Limit, len(r.limits))
	copy(out, r.limits)
	return out
}

// Lookup finds a limit by namespace and name.
func (r *Registry) Lookup(namespace, name string) (Limit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[limitID(namespace, name)]
	if !ok {
		return Limit{}, false
	}
	return r.limits[i], true
}

// Len returns the number of registered limits.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limits)
}

func limitID(namespace, name string) string {
	return namespace + "\x00" + name
}
