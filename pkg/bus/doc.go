// Package bus provides the broadcast channel that carries control-plane
// events to every connected WebSocket session.
//
// A Bus fans each published Event out to all current subscribers. Each
// Subscription owns a bounded queue; when a subscriber falls behind by more
// than the queue capacity, the oldest queued events are dropped and the next
// Receive reports a *LagError once before delivery continues. Lag is never
// fatal: a slow client only loses intermediate events.
//
// Subscriptions only observe events published after they were created.
// History is never replayed.
//
// Usage:
//
//	b := bus.New(bus.DefaultCapacity)
//	sub := b.Subscribe()
//	defer sub.Close()
//
//	n, err := b.Publish(bus.Text("hello"))
//
//	ev, err := sub.Receive(ctx)
//	if errors.Is(err, bus.ErrLagged) {
//		// skipped events, keep receiving
//	}
package bus
