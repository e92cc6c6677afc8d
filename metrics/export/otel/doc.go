// Package otel publishes TernSecure engine metrics as OpenTelemetry asynchronous
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter and,
// for the latency histogram, a bucket gauge keyed by an "le" attribute plus count
// and sum gauges. One callback reads [ternsecure.Engine.MetricsSnapshot] per
// collection cycle. Callers own the MeterProvider.
package otel
