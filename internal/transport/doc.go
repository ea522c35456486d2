// Package transport exposes sessions to browser clients: Socket.IO events for
// control and telemetry, and a small gin HTTP surface for status and metrics.
package transport
