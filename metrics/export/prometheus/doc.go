// Package prometheus exposes engine metrics through client_golang.
//
// [NewPrometheusExporter] wraps an [authkit.Engine] in a
// [prometheus.Collector] on a private registry and serves it with
// [promhttp]. Counter names are prefixed authkit_*_total; the single
// histogram is authkit_validate_latency_seconds. Every scrape reads one
// engine snapshot, so all series within a scrape are mutually consistent.
//
// # What this package must NOT do
//
//   - Register anything in the global default registry. Callers mount
//     Handler, or graft extra collectors onto Registry.
//   - Mutate engine state.
package prometheus
