package flow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrActionNotFound is returned for unregistered action names.
var ErrActionNotFound = errors.New("action not found")

// Registry maps action names to constructors. It is built once at start-up
// and handed to the Parser.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Constructor),
	}
}

// DefaultRegistry creates a registry holding every built-in action.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, ctor := range builtins {
		r.MustRegister(name, ctor)
	}
	return r
}

// Register adds an action. Registering a name twice is an error.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("register action %q: name and constructor are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q is already registered", name)
	}
	r.actions[name] = ctor
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Lookup returns a new Action for name.
func (r *Registry) Lookup(name string) (Action, error) {
	r.mu.RLock()
	ctor, exists := r.actions[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	return ctor(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.actions[name]
	return exists
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the field schema of action name.
func (r *Registry) Schema(name string) (Schema, error) {
	a, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return a.Schema(), nil
}
