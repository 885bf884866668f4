package relay

import (
	"context"
	"errors"
)

// Terminal conditions reported by a session's loops.
var (
	// ErrPeerClosed indicates the client sent a close frame.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrBusClosed indicates the bus was closed, typically on shutdown.
	ErrBusClosed = errors.New("bus closed")
	// ErrSessionClosed indicates the session was closed by the server.
	ErrSessionClosed = errors.New("session closed")
)

// ErrManagerClosed is returned when a session arrives after CloseAll.
var ErrManagerClosed = errors.New("relay manager closed")

// normalExit reports whether err ends a session without being a failure.
func normalExit(err error) bool {
	return err == nil ||
		errors.Is(err, ErrPeerClosed) ||
		errors.Is(err, ErrBusClosed) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, context.Canceled)
}
