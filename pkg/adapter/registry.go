package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the constructed adapters. Registration happens at startup;
// lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, rejecting duplicate names.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("adapter %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the adapters from the enabled set, in name order. An empty
// enabled set selects everything.
func (r *Registry) Select(enabled []string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	if len(enabled) == 0 {
		for name := range r.adapters {
			names = append(names, name)
		}
	} else {
		for _, name := range enabled {
			if _, ok := r.adapters[name]; ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}
