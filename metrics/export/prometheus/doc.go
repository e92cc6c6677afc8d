// Package prometheus exposes TernSecure engine metrics through client_golang.
//
// [Collector] snapshots the engine on every scrape and emits const metrics, so the
// engine's hot path never touches a Prometheus type. [PrometheusExporter] wraps a
// Collector in its own registry and serves it with promhttp. Counter names are
// ternsecure_*_total; the one histogram is ternsecure_request_latency_seconds.
//
// Nothing is registered with the global default registry.
package prometheus
