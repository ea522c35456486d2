// Package session runs one real-time simulation per connected client.
//
// A [Manager] owns every live [Session]: it enforces the capacity limit,
// routes client commands by connection id and evicts sessions that stay idle
// past the configured timeout. Each Session runs its own goroutine that
// builds the physics adapter, then repeatedly drains the command queue,
// resolves the controller into an actuation value, advances the adapter by
// one period of simulated time and publishes a [Snapshot].
//
// Lifecycle: Uninitialized → Building → Running → Stopped. A rebuild after
// update_param passes through Building again. Stopped is terminal and
// releases the adapter exactly once.
package session
