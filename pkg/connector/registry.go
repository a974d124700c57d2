package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
)

// Registry is a process-wide mapping from connector id to factory
// (SPEC_FULL.md §4.2). It is read-mostly: registrations happen at startup,
// create/get/list happen continuously from many goroutines, so the lock is
// an RWMutex, matching the discipline the teacher's executor registry uses.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	meta      map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		meta:      make(map[string]Descriptor),
	}
}

// Register adds (or replaces) the factory for id. Duplicate registration
// replaces the existing factory, per SPEC_FULL.md §4.2.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance := factory()
	r.factories[id] = factory
	r.meta[id] = Descriptor{
		ID:           id,
		Name:         instance.Name(),
		Category:     instance.Category(),
		ConfigSchema: instance.ConfigSchema(),
	}
}

// Create instantiates a fresh connector for id. Unknown ids fail with a
// ConfigurationError (SPEC_FULL.md §4.2).
func (r *Registry) Create(id string) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		return nil, engineerrors.Configuration("", fmt.Sprintf("unknown connector id: %s", id))
	}
	return factory(), nil
}

// Get returns the descriptor for id, or false if unregistered.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.meta[id]
	return d, ok
}

// List returns all registered descriptors, sorted by id for deterministic
// iteration in editor tooling and tests.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.meta))
	for _, d := range r.meta {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
