// Package prometheus exposes engine counters as a prometheus.Collector.
//
// Counters are named storeauth_*_total. The single histogram is
// storeauth_authorize_latency_seconds and is only emitted when latency
// histograms are enabled on the engine.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry. Callers choose the
//     registry, or use [Handler] for a private one.
//   - Mutate engine state.
package prometheus
