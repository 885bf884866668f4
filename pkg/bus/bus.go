package bus

import (
	"context"
	"sync"
)

// DefaultCapacity is the default per-subscriber queue size.
const DefaultCapacity = 100

// Bus is a multi-producer, multi-consumer broadcast channel.
type Bus struct {
	capacity int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a Bus whose subscribers buffer up to capacity events.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Capacity returns the per-subscriber queue size.
func (b *Bus) Capacity() int {
	return b.capacity
}

// Publish delivers ev to every current subscriber and returns how many
// subscribers it reached. Publish never blocks on slow subscribers.
// Publishers are serialized so all subscribers see the same order.
func (b *Bus) Publish(ev Event) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	for sub := range b.subs {
		sub.push(ev)
	}
	return len(b.subs), nil
}

// Subscribe creates a Subscription that receives events published from now
// on. Subscribing to a closed bus returns an already closed Subscription.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:      b,
		capacity: b.capacity,
		queue:    make([]Event, 0, b.capacity),
		notify:   make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes the bus. Subscribers receive any events already queued and
// then ErrClosed. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.shutdown(false)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Subscription is one receiver's view of the Bus.
type Subscription struct {
	bus      *Bus
	capacity int
	notify   chan struct{}

	mu      sync.Mutex
	queue   []Event
	skipped uint64
	closed  bool
}

// push enqueues ev, dropping the oldest queued event when full.
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.capacity {
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.skipped++
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Receive waits for the next event. It returns a *LagError (matching
// ErrLagged) once after events were dropped, ErrClosed after the bus or
// subscription is closed and drained, or the context error if ctx ends
// first.
func (s *Subscription) Receive(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if s.skipped > 0 {
			n := s.skipped
			s.skipped = 0
			s.mu.Unlock()
			return Event{}, &LagError{Skipped: n}
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Event{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Pending returns the number of queued events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close unsubscribes from the bus and discards queued events.
// Close is idempotent.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.shutdown(true)
}

func (s *Subscription) shutdown(discard bool) {
	s.mu.Lock()
	s.closed = true
	if discard {
		s.queue = nil
		s.skipped = 0
	}
	s.mu.Unlock()

	s.wake()
}
