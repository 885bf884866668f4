// Package metrics exposes webmocket's relay counters in the Prometheus text
// exposition format (text/plain; version=0.0.4).
//
// The primitives (Counter, Gauge, Histogram) are dependency free and safe for
// concurrent use. Relay bundles the metrics the relay core and control
// surface update:
//
//   - webmocket_sessions_active: gauge of open WebSocket sessions
//   - webmocket_sessions_total: counter of accepted sessions
//   - webmocket_frames_total: counter of frames (labels: direction, type)
//   - webmocket_bus_published_total: counter of published events (labels: type)
//   - webmocket_bus_lagged_total: counter of events dropped for slow subscribers
//   - webmocket_control_requests_total: counter of control calls (labels: method, path, status)
//   - webmocket_control_request_duration_seconds: histogram (labels: method, path)
//
// Usage:
//
//	registry := metrics.NewRegistry()
//	m := metrics.NewRelay(registry)
//	m.Frame(metrics.Inbound, "text")
//	mux.Handle("GET /metrics", registry.Handler())
package metrics
