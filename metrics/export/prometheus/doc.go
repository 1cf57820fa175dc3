// Package prometheus renders goFactor metrics in Prometheus text exposition
// format.
//
// [New] wraps a [goFactor.Engine] and [Exporter.Handler] serves the rendered
// page. Counters are named gofactor_*_total and the single histogram is
// gofactor_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
