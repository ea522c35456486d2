package integrators

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/simhost/internal/dynamo"
)

// ErrUnknownIntegrator is returned by New for an unregistered method name.
var ErrUnknownIntegrator = errors.New("integrators: unknown method")

// Default is the method plants use when none is configured.
const Default = "rk4"

var factories = map[string]func() dynamo.Integrator{
	"euler":    func() dynamo.Integrator { return NewEuler() },
	"rk4":      func() dynamo.Integrator { return NewRK4() },
	"verlet":   func() dynamo.Integrator { return NewVerlet() },
	"leapfrog": func() dynamo.Integrator { return NewLeapfrog() },
}

// New returns a fresh integrator. Integrators keep scratch buffers, so each
// plant gets its own instance.
func New(name string) (dynamo.Integrator, error) {
	if name == "" {
		name = Default
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegrator, name)
	}
	return f(), nil
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
