package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/webmocket/pkg/bus"
	"github.com/getmockd/webmocket/pkg/ledger"
	"github.com/getmockd/webmocket/pkg/metrics"
)

// Session is one upgraded WebSocket connection.
type Session struct {
	id          string
	remoteAddr  string
	connectedAt time.Time

	conn         *websocket.Conn
	sub          *bus.Subscription
	ledger       *ledger.Ledger
	metrics      *metrics.Relay
	log          *slog.Logger
	writeTimeout time.Duration

	state     atomic.Int32
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	onClosed  func(*Session)
}

func newSession(conn *websocket.Conn, sub *bus.Subscription, opts Options, remoteAddr string) *Session {
	id := uuid.NewString()
	s := &Session{
		id:           id,
		remoteAddr:   remoteAddr,
		connectedAt:  time.Now(),
		conn:         conn,
		sub:          sub,
		ledger:       opts.Ledger,
		metrics:      opts.Metrics,
		log:          opts.logger().With("session", id),
		writeTimeout: opts.writeTimeout(),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	conn.SetPingHandler(s.handlePing)
	conn.SetPongHandler(s.handlePong)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the client address the upgrade came from.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// ConnectedAt returns when the session was upgraded.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done returns a channel closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close asks the session to stop. A close frame is sent to the client on a
// best-effort basis. Close does not wait; use Done for that.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout(s.writeTimeout)))
		close(s.closing)
	})
}

// Run drives the session until either loop ends, then releases the socket
// and the bus subscription. The returned error is nil for a normal end
// (peer close, bus close, Close).
func (s *Session) Run(ctx context.Context) error {
	defer s.finish()

	g, ctx := errgroup.WithContext(ctx)

	// The inbound read only returns on a frame or a socket error.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	g.Go(func() error {
		select {
		case <-s.closing:
			return ErrSessionClosed
		case <-ctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		err := s.readLoop()
		s.advance(StateClosing)
		return err
	})
	g.Go(func() error {
		err := s.writeLoop(ctx)
		s.advance(StateClosing)
		return err
	})
	s.advance(StateActive)
	s.log.Info("session opened", "remote", s.RemoteAddr())

	err := g.Wait()
	lifetime := time.Since(s.ConnectedAt())
	if normalExit(err) {
		s.log.Info("session closed", "remote", s.RemoteAddr(), "reason", reason(err), "duration", lifetime)
		return nil
	}
	s.log.Error("session failed", "remote", s.RemoteAddr(), "error", err, "duration", lifetime)
	return err
}

func closeFrameTimeout(writeTimeout time.Duration) time.Duration {
	return min(writeTimeout, MaxCloseFrameTimeout)
}

func (s *Session) finish() {
	s.sub.Close()
	_ = s.conn.Close()
	s.state.Store(int32(StateClosed))
	close(s.done)
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// advance moves the state forward to to. It never moves it backwards.
func (s *Session) advance(to State) {
	for {
		cur := s.state.Load()
		if cur >= int32(to) || s.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

// readLoop classifies inbound frames until the socket closes or fails.
// Ping and pong frames are handled inside ReadMessage by the control
// handlers, so ordering within the session is preserved.
func (s *Session) readLoop() error {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.log.Debug("peer sent close", "code", ce.Code, "text", ce.Text)
				return ErrPeerClosed
			}
			return readError(err, s.closing)
		}

		switch msgType {
		case websocket.TextMessage:
			msg := string(data)
			s.ledger.Append(msg)
			s.metrics.Frame(metrics.Inbound, "text")
			s.log.Info("client to server", "message", msg)
		default:
			s.metrics.Frame(metrics.Inbound, "binary")
			s.log.Debug("ignoring binary frame", "bytes", len(data))
		}
	}
}

// readError maps a read failure to the session's terminal error. A read
// that fails because the session was closed is not a failure.
func readError(err error, closing <-chan struct{}) error {
	select {
	case <-closing:
		return ErrSessionClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrSessionClosed
	}
	return err
}

func (s *Session) handlePing(appData string) error {
	s.ledger.Append(ledger.TagPing)
	s.metrics.Frame(metrics.Inbound, ledger.TagPing)
	s.log.Info("client to server", "message", ledger.TagPing)

	err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.writeTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (s *Session) handlePong(string) error {
	s.ledger.Append(ledger.TagPong)
	s.metrics.Frame(metrics.Inbound, ledger.TagPong)
	s.log.Info("client to server", "message", ledger.TagPong)
	return nil
}

// writeLoop forwards bus events to the client until the bus closes, a
// write fails or ctx is cancelled.
func (s *Session) writeLoop(ctx context.Context) error {
	for {
		ev, err := s.sub.Receive(ctx)
		if err != nil {
			var lag *bus.LagError
			switch {
			case errors.As(err, &lag):
				s.log.Warn("session lagging, events dropped", "skipped", lag.Skipped)
				s.metrics.Lagged(lag.Skipped)
				continue
			case errors.Is(err, bus.ErrClosed):
				return ErrBusClosed
			default:
				return err
			}
		}

		if err := s.send(ev); err != nil {
			return err
		}
		s.metrics.Frame(metrics.Outbound, ev.Kind.String())
		if ev.Kind == bus.KindText {
			s.log.Info("server to client", "message", ev.Payload)
		} else {
			s.log.Info("server to client", "message", ev.Kind.String())
		}
	}
}

func (s *Session) send(ev bus.Event) error {
	deadline := time.Now().Add(s.writeTimeout)
	switch ev.Kind {
	case bus.KindPing:
		return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
	case bus.KindPong:
		return s.conn.WriteControl(websocket.PongMessage, nil, deadline)
	default:
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return s.conn.WriteMessage(websocket.TextMessage, []byte(ev.Payload))
	}
}

func reason(err error) string {
	if err == nil {
		return "done"
	}
	return err.Error()
}
