package engine

import (
	"github.com/san-kum/simhost/internal/control"
	"github.com/san-kum/simhost/internal/dynamo"
)

// Adapter is a physics backend driven by one session goroutine. None of the
// methods need to be safe for concurrent use.
type Adapter interface {
	// Build (re)constructs the backend from params, starting at initial.
	// Failures are reported as *BuildError.
	Build(params Params, initial dynamo.State) error

	// DefaultState is the starting state used when the client supplies none.
	DefaultState() dynamo.State

	// AdvanceTo integrates forward to simulated time t. t must not precede
	// Time(). Failures are reported as *StepError.
	AdvanceTo(t float64) error
	Time() float64

	Observe() dynamo.State

	// Actuate sets the command held constant over the next AdvanceTo.
	Actuate(u float64)

	Reset() error
	SetRealtimeRate(r float64)
	VisualizationURL() string

	// Design describes the control laws the backend offers for its plant.
	Design() control.Design

	// Shutdown releases the backend. It is idempotent.
	Shutdown() error
}

// KeyHandler is implemented by backends that map raw keys onto the
// controller, typically as manual forces. The return value reports whether
// the key was recognized.
type KeyHandler interface {
	KeyDown(key string, m *control.Machine) bool
	KeyUp(key string, m *control.Machine) bool
}

// UIHandler is implemented by backends that accept UI actions beyond the
// ones every session understands.
type UIHandler interface {
	HandleUI(action string, value any) error
}
