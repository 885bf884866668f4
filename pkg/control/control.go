package control

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/webmocket/pkg/bus"
	"github.com/getmockd/webmocket/pkg/httputil"
	"github.com/getmockd/webmocket/pkg/ledger"
	"github.com/getmockd/webmocket/pkg/logging"
	"github.com/getmockd/webmocket/pkg/metrics"
)

// SessionCounter reports the number of live WebSocket sessions.
type SessionCounter interface {
	Count() int
}

// Options configures an API.
type Options struct {
	Ledger   *ledger.Ledger
	Bus      *bus.Bus
	Sessions SessionCounter
	Metrics  *metrics.Relay
	Registry *metrics.Registry
	Logger   *slog.Logger

	// MaxBodySize caps POST /messages bodies. Defaults to httputil.MaxBodySize.
	MaxBodySize int64
}

// API serves the control routes.
type API struct {
	ledger   *ledger.Ledger
	bus      *bus.Bus
	sessions SessionCounter
	metrics  *metrics.Relay
	registry *metrics.Registry
	log      *slog.Logger
	maxBody  int64
}

// New creates an API. Options.Ledger and Options.Bus are required.
func New(opts Options) *API {
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = httputil.MaxBodySize
	}
	return &API{
		ledger:   opts.Ledger,
		bus:      opts.Bus,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		registry: opts.Registry,
		log:      logging.OrNop(opts.Logger).With(logging.Component, "control"),
		maxBody:  maxBody,
	}
}

// Register adds the control routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /messages", a.handleListMessages)
	mux.HandleFunc("POST /messages", a.handleCreateMessage)
	mux.HandleFunc("DELETE /messages", a.handleResetMessages)
	mux.HandleFunc("POST /ping", a.handlePing)
	mux.HandleFunc("POST /pong", a.handlePong)
	mux.HandleFunc("GET /health", a.handleHealth)
	if a.registry != nil {
		mux.Handle("GET /metrics", a.registry.Handler())
	}
}

// Handler returns the complete control surface with upgrade mounted at
// wsPath, wrapped in request logging. wsPath is matched literally and is
// never parsed as a mux pattern.
func (a *API) Handler(wsPath string, upgrade http.Handler) http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	pattern := http.MethodGet + " " + wsPath
	return a.withLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wsPath {
			mux.ServeHTTP(w, r)
			return
		}
		r.Pattern = pattern
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		upgrade.ServeHTTP(w, r)
	}))
}

// withLogging logs and counts every request once it completes.
func (a *API) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := httputil.NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeOf(r)
		a.metrics.ControlRequest(r.Method, route, rec.Status, elapsed)
		a.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status,
			"duration", elapsed,
		)
	})
}

// routeOf returns the path of the matched mux pattern, keeping metric
// labels bounded.
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// handleListMessages handles GET /messages.
func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, a.ledger.Snapshot())
}

// handleCreateMessage handles POST /messages.
func (a *API) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(w, r, a.maxBody)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.WriteTooLarge(w)
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}
	a.publish(w, bus.Text(string(body)))
}

// handleResetMessages handles DELETE /messages.
func (a *API) handleResetMessages(w http.ResponseWriter, r *http.Request) {
	a.ledger.Reset()
	a.log.Debug("resetting all messages")
	w.WriteHeader(http.StatusOK)
}

// handlePing handles POST /ping.
func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	a.publish(w, bus.Ping())
}

// handlePong handles POST /pong.
func (a *API) handlePong(w http.ResponseWriter, r *http.Request) {
	a.publish(w, bus.Pong())
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Subscribers int    `json:"subscribers"`
}

// handleHealth handles GET /health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Subscribers: a.bus.Subscribers(),
	}
	if a.sessions != nil {
		resp.Sessions = a.sessions.Count()
	}
	httputil.WriteOK(w, resp)
}

// publish broadcasts ev. Having no subscribers is not an error.
func (a *API) publish(w http.ResponseWriter, ev bus.Event) {
	n, err := a.bus.Publish(ev)
	if err != nil {
		a.log.Error("failed generating websocket "+ev.Kind.String(), "error", err)
		httputil.WriteServiceUnavailable(w, "bus_closed", "server is shutting down")
		return
	}

	a.metrics.Published(ev.Kind.String())
	if n == 0 {
		a.log.Debug("no active sessions", "event", ev.Kind.String())
	} else {
		a.log.Debug("generating mock websocket "+ev.Kind.String(), "sessions", n)
	}
	w.WriteHeader(http.StatusOK)
}
