package streams

import (
	"sort"
	"sync"

	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/naming"
)

// Definition is a registered stream handler class.
type Definition struct {
	Class   string
	Factory Factory
	Options Options
}

// Registry maps stream handler class names to factories and defaults.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register binds class to factory. Without WithStream the stream is named
// after the class.
func (r *Registry) Register(class string, factory Factory, opts ...Option) error {
	if class == "" {
		return runtimeerrors.ErrClassRequired
	}
	if factory == nil {
		return runtimeerrors.ErrHandlerRequired
	}
	options := DefaultOptions(naming.Underscore(class)).Apply(opts...)
	if options.Stream == "" {
		return runtimeerrors.ErrStreamRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[class] = Definition{Class: class, Factory: factory, Options: options}
	return nil
}

// RegisterFunc registers a batch function.
func (r *Registry) RegisterFunc(class string, fn HandlerFunc, opts ...Option) error {
	if fn == nil {
		return runtimeerrors.ErrHandlerRequired
	}
	return r.Register(class, func() Handler { return fn }, opts...)
}

// RegisterOne registers a per-message function wrapped with Each.
func (r *Registry) RegisterOne(class string, fn OneHandlerFunc, opts ...Option) error {
	if fn == nil {
		return runtimeerrors.ErrHandlerRequired
	}
	return r.Register(class, func() Handler { return Each(fn) }, opts...)
}

func (r *Registry) Resolve(class string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[class]
	if !ok {
		return Definition{}, &runtimeerrors.HandlerNotRegisteredError{Class: class}
	}
	return def, nil
}

// ForStream returns the definition registered on stream.
func (r *Registry) ForStream(stream string) (Definition, bool) {
	for _, def := range r.Definitions() {
		if def.Options.Stream == stream {
			return def, true
		}
	}
	return Definition{}, false
}

// Definitions returns every definition ordered by class name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}
