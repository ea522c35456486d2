// Package engine defines the boundary between a simulation session and the
// physics backend that advances it.
//
// A backend implements [Adapter]. Sessions never inspect backend internals:
// they build it from [Params], push one actuation value per tick, advance it
// in simulated time and read back the observation vector. Backends that react
// to raw keyboard events or extra UI actions also implement [KeyHandler] or
// [UIHandler].
//
// Backends are resolved by sim type through a compile-time [Registry]:
//
//	reg := engine.DefaultRegistry()
//	a, err := reg.New(engine.Params{"sim_type": "cartpole"}, engine.Options{})
//
// The in-repo backends ([NewCartPole], [NewPendulum]) wrap a [dynamo.System]
// in a [Plant] integrated with the methods from package integrators.
package engine
