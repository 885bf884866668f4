package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/getmockd/webmocket/pkg/bus"
	"github.com/getmockd/webmocket/pkg/httputil"
	"github.com/getmockd/webmocket/pkg/ledger"
	"github.com/getmockd/webmocket/pkg/logging"
	"github.com/getmockd/webmocket/pkg/metrics"
)

// DefaultWriteTimeout bounds every frame write when Options.WriteTimeout is
// not set.
const DefaultWriteTimeout = 10 * time.Second

// MaxCloseFrameTimeout caps the wait for the close frame sent by
// Session.Close, whatever the write timeout.
const MaxCloseFrameTimeout = time.Second

// Options configures the sessions created by a Manager.
type Options struct {
	Ledger  *ledger.Ledger
	Bus     *bus.Bus
	Metrics *metrics.Relay
	Logger  *slog.Logger

	// WriteTimeout is the deadline applied to each outbound frame.
	WriteTimeout time.Duration
	// ReadLimit caps inbound frame size in bytes. Zero means unlimited.
	ReadLimit int64
}

func (o Options) logger() *slog.Logger {
	return logging.OrNop(o.Logger)
}

func (o Options) writeTimeout() time.Duration {
	if o.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return o.WriteTimeout
}

// Manager tracks every live Session and accepts new ones.
type Manager struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a Manager. Options.Ledger and Options.Bus are required.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts: opts,
		log:  opts.logger().With(logging.Component, "relay"),
		upgrader: websocket.Upgrader{
			// Any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// Handler returns the http.Handler that upgrades requests to sessions.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(m.ServeHTTP)
}

// ServeHTTP upgrades the request and runs a Session for it in the
// background. The bus subscription is taken before the upgrade response is
// written, so every event published after the client sees the handshake
// complete is delivered.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.Closed() {
		httputil.WriteServiceUnavailable(w, "shutting_down", "server is shutting down")
		return
	}
	sub := m.opts.Bus.Subscribe()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		sub.Close()
		m.log.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := newSession(conn, sub, Options{
		Ledger:       m.opts.Ledger,
		Metrics:      m.opts.Metrics,
		Logger:       m.log,
		WriteTimeout: m.opts.WriteTimeout,
		ReadLimit:    m.opts.ReadLimit,
	}, r.RemoteAddr)
	if err := m.add(s); err != nil {
		// Shutdown began during the handshake.
		s.Close()
		s.finish()
		m.log.Debug("session refused", "remote", r.RemoteAddr, "error", err)
		return
	}

	go func() {
		_ = s.Run(context.Background())
	}()
}

// add registers a session. It is removed again once it reaches StateClosed.
// Once CloseAll has run no session is accepted.
func (m *Manager) add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	m.sessions[s.ID()] = s
	s.onClosed = func(s *Session) { m.Remove(s.ID()) }
	m.wg.Add(1)
	m.opts.Metrics.SessionOpened()
	return nil
}

// Remove unregisters a session. Removing an unknown ID is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	m.wg.Done()
	m.opts.Metrics.SessionClosed()
}

// Get returns a session by ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns the IDs of all live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Closed reports whether CloseAll has been called.
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// CloseAll stops accepting sessions and asks every live session to close.
// Close frames are sent concurrently; CloseAll returns once each has been
// written or has timed out.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}

// Wait blocks until every registered session has closed or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
