// Package ledger records every message received from WebSocket clients.
//
// A Ledger is an ordered, append-only list of strings that can be read as a
// snapshot or reset to empty. Text frames are stored verbatim; ping and pong
// control frames are stored as the tags TagPing and TagPong so a test can
// assert that they happened.
//
// All operations take a single read/write lock, so a Reset is linearizable
// with respect to Append: once Reset returns, nothing appended before it is
// visible.
package ledger

import "sync"

// Tags recorded for protocol-level control frames.
const (
	TagPing = "ping"
	TagPong = "pong"
)

// Ledger is a concurrency-safe ordered record of inbound messages.
type Ledger struct {
	mu       sync.RWMutex
	messages []string
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{messages: make([]string, 0)}
}

// Append records a message at the end of the ledger.
func (l *Ledger) Append(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Snapshot returns a copy of the recorded messages in insertion order.
// The result is never nil.
func (l *Ledger) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

// Reset discards every recorded message.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = make([]string, 0)
}

// Len returns the number of recorded messages.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
