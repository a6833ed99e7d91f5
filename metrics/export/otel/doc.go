// Package otel binds engine counters and histograms to OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per cumulative histogram bucket. One callback reads
// a single engine snapshot each collection cycle, so a cycle's series are
// mutually consistent. Call Close to unregister.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter and its lifecycle.
//   - Mutate engine state.
package otel
