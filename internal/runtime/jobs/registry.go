package jobs

import (
	"sort"
	"sync"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
)

// Definition is a registered job class.
type Definition struct {
	Class   string
	Factory Factory
	// Options are flattened at registration time: registry defaults first,
	// then the class overrides.
	Options Options
}

// Registry maps job class names to handler factories.
type Registry struct {
	mu       sync.RWMutex
	defaults Options
	defs     map[string]Definition
}

// NewRegistry creates a registry whose classes inherit DefaultOptions with
// opts applied.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		defaults: DefaultOptions().Apply(opts...),
		defs:     make(map[string]Definition),
	}
}

// Register binds class to factory. Registering a class twice replaces the
// earlier definition.
func (r *Registry) Register(class string, factory Factory, opts ...Option) error {
	if class == "" {
		return runtimeerrors.ErrClassRequired
	}
	if factory == nil {
		return runtimeerrors.ErrHandlerRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[class] = Definition{
		Class:   class,
		Factory: factory,
		Options: r.defaults.Apply(opts...),
	}
	return nil
}

// RegisterFunc registers a stateless handler function.
func (r *Registry) RegisterFunc(class string, fn HandlerFunc, opts ...Option) error {
	if fn == nil {
		return runtimeerrors.ErrHandlerRequired
	}
	return r.Register(class, func() Handler { return fn }, opts...)
}

// Resolve returns the definition registered for class.
func (r *Registry) Resolve(class string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[class]
	if !ok {
		return Definition{}, &runtimeerrors.HandlerNotRegisteredError{Class: class}
	}
	return def, nil
}

// Options returns the options of class, or the registry defaults when the
// class is unknown.
func (r *Registry) Options(class string) Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.defs[class]; ok {
		return def.Options
	}
	return r.defaults
}

// Classes lists the registered class names in sorted order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for class := range r.defs {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}
