// Package control resolves a session's controller configuration into a single
// actuation command per tick.
//
// A [Design] bundles the control laws a plant offers:
//
//   - [LQR]: linear state feedback around an operating point
//   - [PID]: tracking loop on one state component with a bounded integral
//   - [Table]: tabulated policy evaluated by multilinear interpolation
//
// A [Machine] holds the per-session mode flags, the manual force and the
// tracking integral, and arbitrates between the laws:
//
//	m := control.NewMachine(design, 1.0/60, []control.Mode{control.Regulator})
//	u := m.Compute(x)
//	m.Advance(x)
//
// Machine is not synchronized. It is owned by the session step goroutine.
package control
