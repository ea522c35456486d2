// Package physics provides the plant models served by the simulation host.
//
// Each model implements the [dynamo.System] interface:
//
//   - [CartPole]: cart on a rail carrying a point-mass pole, θ=π upright
//   - [Pendulum]: damped torque-driven pendulum, θ=π upright
//
// State vectors keep generalized positions first and their rates second so
// that the symplectic integrators can split them in half. Both models also
// implement [dynamo.Configurable] for parameter updates and
// [dynamo.Hamiltonian] for energy monitoring:
//
//	dyn := physics.NewCartPole()
//	if h, ok := dyn.(dynamo.Hamiltonian); ok {
//	    energy := h.Energy(state)
//	}
package physics
