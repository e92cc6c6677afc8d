// Package internaldefs holds the metric names and bucket boundaries shared by the
// Prometheus and OpenTelemetry exporters, so both expose identical series.
//
// It imports only the root package for MetricID and performs no I/O.
package internaldefs
