package bus

import (
	"errors"
	"strconv"
)

var (
	// ErrClosed indicates the bus or subscription is closed.
	ErrClosed = errors.New("bus closed")
	// ErrLagged indicates a subscriber fell behind and events were dropped.
	ErrLagged = errors.New("subscriber lagged")
)

// LagError reports how many events a subscription dropped since its last
// Receive. It matches ErrLagged with errors.Is.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return ErrLagged.Error() + ": skipped " + strconv.FormatUint(e.Skipped, 10) + " events"
}

func (e *LagError) Unwrap() error {
	return ErrLagged
}
