package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSimType is returned by Registry.New for an unregistered tag.
	ErrUnknownSimType = errors.New("engine: unknown sim type")

	// ErrNotBuilt is returned when stepping an adapter before Build succeeded.
	ErrNotBuilt = errors.New("engine: adapter not built")

	// ErrShutdown is returned by every operation after Shutdown.
	ErrShutdown = errors.New("engine: adapter shut down")
)

// BuildError reports a failed Build. It is fatal to the session that
// requested it.
type BuildError struct {
	SimType string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.SimType, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// StepError reports a failed AdvanceTo.
type StepError struct {
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("advance at t=%.4f: %v", e.Time, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrUnsupported is returned by HandleUI for actions the backend does not know.
var ErrUnsupported = errors.New("engine: unsupported action")
