package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide mapping from provider key to a configured
// Adapter instance. Built once at startup, read-mostly afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own key. Registering under ManualKey is
// a programming error: manual entry is a pseudo-source with no adapter.
func (r *Registry) Register(a Adapter) error {
	key := a.Key()
	if key == "" || key == ManualKey {
		return fmt.Errorf("provider: cannot register adapter under key %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.adapters[key]; dup {
		return fmt.Errorf("provider: adapter %q already registered", key)
	}
	r.adapters[key] = a
	return nil
}

// Get resolves an adapter by key.
func (r *Registry) Get(key string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
	}
	return a, nil
}

// Adapters returns all registered adapters, sorted by key. Manual entry never
// appears here: it has no adapter, so tracker iteration skips it while its
// ledger rows still count toward totals.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Keys returns the registered provider keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
