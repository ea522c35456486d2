package session

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity rejects a Create when MaxSessions sessions are live.
	ErrCapacity = errors.New("session: capacity")

	// ErrDuplicateSession rejects a Create for a client that already has a
	// live session.
	ErrDuplicateSession = errors.New("session: already initialized")

	// ErrIdleTimeout is the termination reason for idle eviction.
	ErrIdleTimeout = errors.New("session: idle timeout")

	// ErrStopped is returned when a session was stopped before it could
	// serve the request.
	ErrStopped = errors.New("session: stopped")
)

// InputError rejects a single command. The session logs it and continues.
type InputError struct {
	Kind Kind
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Kind, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputErr(kind Kind, format string, args ...any) error {
	return &InputError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
