// Package internaldefs holds the metric name and bucket-bound tables shared
// by the exporter packages.
//
// Counter and histogram definitions live here so the Prometheus and OTel
// exporters emit identical names and boundaries. A rename in this package
// changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
