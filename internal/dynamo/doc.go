// Package dynamo provides the numeric primitives shared by the plant backends.
//
// The package defines the fundamental interfaces and types for integrating
// ordinary differential equations (ODEs):
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Metric]: running statistic observed once per step
//
// # Example
//
//	dyn := physics.NewCartPole()
//	integ := integrators.NewRK4()
//	x = integ.Step(dyn, x, dynamo.Control{u}, t, dt)
//
// # Thread Safety
//
// Nothing in this package is synchronized. Each simulation session owns its
// own System, Integrator and State values and only touches them from its step
// goroutine.
package dynamo
