// Package metrics holds the server's Prometheus collectors and the per-run
// statistics recorded alongside session recordings.
//
// [Metrics] methods are safe on a nil receiver so that callers without a
// registry (tests, the local driver) skip instrumentation without branching.
package metrics
