package metrics

import (
	"strconv"
	"time"
)

// Frame directions.
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)

// Relay groups the metrics updated by the relay core and control surface.
// A nil *Relay is valid and records nothing.
type Relay struct {
	SessionsActive   *Gauge
	SessionsTotal    *Counter
	Frames           *Counter
	BusPublished     *Counter
	BusLagged        *Counter
	ControlRequests  *Counter
	ControlDurations *Histogram
}

// NewRelay registers the relay metrics on r.
func NewRelay(r *Registry) *Relay {
	return &Relay{
		SessionsActive: r.NewGauge(
			"webmocket_sessions_active",
			"Number of open WebSocket sessions",
		),
		SessionsTotal: r.NewCounter(
			"webmocket_sessions_total",
			"Total number of accepted WebSocket sessions",
		),
		Frames: r.NewCounter(
			"webmocket_frames_total",
			"Total number of WebSocket frames relayed",
			"direction", "type",
		),
		BusPublished: r.NewCounter(
			"webmocket_bus_published_total",
			"Total number of events published on the bus",
			"type",
		),
		BusLagged: r.NewCounter(
			"webmocket_bus_lagged_total",
			"Total number of events dropped for lagging sessions",
		),
		ControlRequests: r.NewCounter(
			"webmocket_control_requests_total",
			"Total number of control surface requests",
			"method", "path", "status",
		),
		ControlDurations: r.NewHistogram(
			"webmocket_control_request_duration_seconds",
			"Duration of control surface requests in seconds",
			DefaultBuckets,
			"method", "path",
		),
	}
}

// SessionOpened records an accepted session.
func (m *Relay) SessionOpened() {
	if m == nil {
		return
	}
	_ = m.SessionsTotal.Inc()
	_ = m.SessionsActive.Inc()
}

// SessionClosed records a closed session.
func (m *Relay) SessionClosed() {
	if m == nil {
		return
	}
	_ = m.SessionsActive.Dec()
}

// Frame records one relayed frame.
func (m *Relay) Frame(direction, frameType string) {
	if m == nil {
		return
	}
	if vec, err := m.Frames.WithLabels(direction, frameType); err == nil {
		_ = vec.Inc()
	}
}

// Published records an event published on the bus.
func (m *Relay) Published(eventType string) {
	if m == nil {
		return
	}
	if vec, err := m.BusPublished.WithLabels(eventType); err == nil {
		_ = vec.Inc()
	}
}

// Lagged records events dropped for a slow subscriber.
func (m *Relay) Lagged(skipped uint64) {
	if m == nil {
		return
	}
	_ = m.BusLagged.Add(float64(skipped))
}

// ControlRequest records a completed control surface request.
func (m *Relay) ControlRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if vec, err := m.ControlRequests.WithLabels(method, path, strconv.Itoa(status)); err == nil {
		_ = vec.Inc()
	}
	if vec, err := m.ControlDurations.WithLabels(method, path); err == nil {
		vec.Observe(elapsed.Seconds())
	}
}
