package engine

import (
	"fmt"
	"sort"
)

// Options carry process-wide settings into every adapter.
type Options struct {
	// VizBaseURL prefixes visualization URLs handed to clients.
	VizBaseURL string
}

// Factory constructs an unbuilt adapter. params are the session's initial
// parameters, used for construction-time settings such as the random seed.
type Factory func(params Params, opts Options) (Adapter, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry contains every backend built into the binary.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("cartpole", NewCartPole)
	r.Register("pendulum", NewPendulum)
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Has reports whether name resolves to a backend.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// New resolves params["sim_type"] and constructs the adapter.
func (r *Registry) New(params Params, opts Options) (Adapter, error) {
	name := params.SimType()
	fn, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSimType, name)
	}
	return fn(params, opts)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
