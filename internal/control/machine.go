package control

import (
	"errors"
	"fmt"

	"github.com/san-kum/simhost/internal/dynamo"
)

// ErrNotDesigned is returned when a request needs a law the plant's design
// does not provide.
var ErrNotDesigned = errors.New("control: law not designed for this plant")

// Design is the set of control laws a plant backend offers. Nil laws are
// allowed; a mode whose law is missing never wins arbitration.
type Design struct {
	Regulator    *LQR
	Neighborhood Neighborhood
	Tracking     *PID
	Policy       *Table

	// Limit clips the final command to ±Limit. Non-positive disables clipping.
	Limit float64
}

type Option func(*Machine)

// WithExclusiveManual makes an active manual mode override every other mode
// instead of adding to their output.
func WithExclusiveManual() Option {
	return func(m *Machine) {
		m.exclusive = true
	}
}

// Machine arbitrates between the modes of a Design.
//
// Priority is regulator (only inside its neighborhood), then policy, then
// tracking, then zero. An active manual mode adds its force on top. The
// tracking integral advances whenever tracking is active, even while another
// mode wins.
type Machine struct {
	design    Design
	period    float64
	active    map[Mode]bool
	force     float64
	integral  float64
	exclusive bool
}

func NewMachine(d Design, period float64, initial []Mode, opts ...Option) *Machine {
	if d.Tracking != nil {
		pid := *d.Tracking
		d.Tracking = &pid
	}
	m := &Machine{
		design: d,
		period: period,
		active: make(map[Mode]bool, len(Modes)),
	}
	for _, mode := range initial {
		if mode != Zero {
			m.active[mode] = true
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Toggle flips one mode. Toggling tracking in either direction zeroes the
// integral; toggling Zero clears every mode.
func (m *Machine) Toggle(mode Mode) error {
	switch mode {
	case Zero:
		for k := range m.active {
			delete(m.active, k)
		}
		m.force = 0
		return nil
	case Manual, Regulator, Tracking, Policy:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	m.active[mode] = !m.active[mode]
	if !m.active[mode] {
		delete(m.active, mode)
	}
	switch mode {
	case Tracking:
		m.integral = 0
	case Manual:
		if !m.active[Manual] {
			m.force = 0
		}
	}
	return nil
}

func (m *Machine) Active(mode Mode) bool {
	return m.active[mode]
}

// ActiveModes returns the active modes in the order of Modes.
func (m *Machine) ActiveModes() []Mode {
	out := make([]Mode, 0, len(m.active))
	for _, mode := range Modes {
		if m.active[mode] {
			out = append(out, mode)
		}
	}
	return out
}

// SetManualForce stores f if manual mode is active and reports whether it did.
func (m *Machine) SetManualForce(f float64) bool {
	if !m.active[Manual] {
		return false
	}
	m.force = f
	return true
}

func (m *Machine) ManualForce() float64 { return m.force }

func (m *Machine) Integral() float64 { return m.integral }

func (m *Machine) Design() Design { return m.design }

// Compute returns the actuation for observation x. It does not mutate the
// machine.
func (m *Machine) Compute(x dynamo.State) float64 {
	d := m.design
	u := 0.0
	switch {
	case m.active[Regulator] && d.Regulator != nil && d.Neighborhood.Contains(x):
		if out := d.Regulator.Compute(x, 0); len(out) > 0 {
			u = out[0]
		}
	case m.active[Policy] && d.Policy != nil:
		u = d.Policy.Lookup(x)
	case m.active[Tracking] && d.Tracking != nil:
		u = d.Tracking.Output(x, m.integral)
	}

	if m.active[Manual] {
		if m.exclusive {
			u = m.force
		} else {
			u += m.force
		}
	}

	if d.Limit > 0 {
		u = dynamo.Clamp(u, -d.Limit, d.Limit)
	}
	return u
}

// Advance moves the tracking integral forward by one period.
func (m *Machine) Advance(x dynamo.State) {
	if m.active[Tracking] && m.design.Tracking != nil {
		m.integral = m.design.Tracking.Accumulate(m.integral, x, m.period)
	}
}

// SetGains retunes the tracking loop in place.
func (m *Machine) SetGains(kp, ki, kd float64) error {
	if m.design.Tracking == nil {
		return fmt.Errorf("%w: %s", ErrNotDesigned, Tracking)
	}
	m.design.Tracking.Kp = kp
	m.design.Tracking.Ki = ki
	m.design.Tracking.Kd = kd
	return nil
}

// Reset clears the integral and the manual force. Mode flags are kept.
func (m *Machine) Reset() {
	m.integral = 0
	m.force = 0
}
