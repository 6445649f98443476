package keylog

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Factory builds a source on demand. It runs only for the selected source,
// so an unused source never touches its backing file or device.
type Factory func() (Source, error)

// Registry maps source IDs to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds id to f. IDs are unique.
func (r *Registry) Register(id string, f Factory) error {
	if id == "" || f == nil {
		return fmt.Errorf("%w: source id and factory are required", ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: source %q already registered", ErrInvalidArgument, id)
	}
	r.factories[id] = f
	return nil
}

// Open builds the source registered under id. The built source must report
// the same ID it was registered under.
func (r *Registry) Open(id string) (Source, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrSourceNotFound, id, strings.Join(r.List(), ", "))
	}
	src, err := f()
	if err != nil {
		return nil, fmt.Errorf("open source %q: %w", id, err)
	}
	if src == nil || src.ID() != id {
		return nil, fmt.Errorf("%w: factory for %q built a mismatched source", ErrInvalidArgument, id)
	}
	return src, nil
}

// List returns the registered IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
