package control

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned when a mode name does not resolve to a
// canonical mode.
var ErrUnknownMode = errors.New("control: unknown mode")

// Mode names a controller operating mode. The string values are the tags
// clients send in toggle_controller actions.
type Mode string

const (
	Manual    Mode = "manual"
	Regulator Mode = "lqr"
	Tracking  Mode = "pid"
	Policy    Mode = "fvi"

	// Zero is a pseudo-mode: toggling it clears every flag.
	Zero Mode = "zero"
)

// Modes lists the canonical modes in priority-independent display order.
var Modes = []Mode{Manual, Regulator, Tracking, Policy}

var aliases = map[string]Mode{
	"manual":         Manual,
	"lqr":            Regulator,
	"regulator":      Regulator,
	"pid":            Tracking,
	"tracking":       Tracking,
	"fvi":            Policy,
	"policy":         Policy,
	"learned-policy": Policy,
	"zero":           Zero,
	"none":           Zero,
}

// ParseMode maps a client supplied name (case insensitive, aliases accepted)
// onto a canonical mode.
func ParseMode(s string) (Mode, error) {
	m, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// ParseModes resolves a list of names, failing on the first unknown one.
// Zero entries are dropped.
func ParseModes(names []string) ([]Mode, error) {
	modes := make([]Mode, 0, len(names))
	for _, n := range names {
		m, err := ParseMode(n)
		if err != nil {
			return nil, err
		}
		if m != Zero {
			modes = append(modes, m)
		}
	}
	return modes, nil
}
