package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) (Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sub.Receive(ctx)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultCapacity, b.Capacity())

	n, err := b.Publish(Text("nobody listening"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBus_FanOut(t *testing.T) {
	b := New(10)
	subs := []*Subscription{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	assert.Equal(t, 3, b.Subscribers())

	n, err := b.Publish(Text("x"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, sub := range subs {
		ev, err := receive(t, sub)
		require.NoError(t, err)
		assert.Equal(t, Text("x"), ev)
	}
}

func TestBus_PreservesPublishOrder(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()

	for _, ev := range []Event{Ping(), Text("a"), Pong(), Text("b")} {
		_, err := b.Publish(ev)
		require.NoError(t, err)
	}

	var got []Event
	for i := 0; i < 4; i++ {
		ev, err := receive(t, sub)
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, []Event{Ping(), Text("a"), Pong(), Text("b")}, got)
}

func TestBus_NoReplay(t *testing.T) {
	b := New(10)
	early := b.Subscribe()

	_, err := b.Publish(Text("before"))
	require.NoError(t, err)

	late := b.Subscribe()
	assert.Equal(t, 0, late.Pending())

	_, err = b.Publish(Text("after"))
	require.NoError(t, err)

	ev, err := receive(t, late)
	require.NoError(t, err)
	assert.Equal(t, "after", ev.Payload)

	ev, err = receive(t, early)
	require.NoError(t, err)
	assert.Equal(t, "before", ev.Payload)
}

func TestBus_LagIsReportedOnceThenDeliveryContinues(t *testing.T) {
	b := New(3)
	sub := b.Subscribe()

	for _, p := range []string{"1", "2", "3", "4", "5"} {
		_, err := b.Publish(Text(p))
		require.NoError(t, err)
	}

	_, err := receive(t, sub)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLagged))

	var lag *LagError
	require.True(t, errors.As(err, &lag))
	assert.Equal(t, uint64(2), lag.Skipped)

	for _, want := range []string{"3", "4", "5"} {
		ev, err := receive(t, sub)
		require.NoError(t, err)
		assert.Equal(t, want, ev.Payload)
	}
}

func TestBus_LagDoesNotAffectOtherSubscribers(t *testing.T) {
	b := New(2)
	slow := b.Subscribe()
	fast := b.Subscribe()

	for _, p := range []string{"a", "b", "c"} {
		_, err := b.Publish(Text(p))
		require.NoError(t, err)
		ev, err := receive(t, fast)
		require.NoError(t, err)
		assert.Equal(t, p, ev.Payload)
	}

	_, err := receive(t, slow)
	assert.ErrorIs(t, err, ErrLagged)
}

func TestBus_ReceiveBlocksUntilPublish(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()

	got := make(chan Event, 1)
	go func() {
		ev, err := sub.Receive(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := b.Publish(Ping())
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, KindPing, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not wake up after publish")
	}
}

func TestBus_ReceiveHonoursContext(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_CloseDrainsThenReportsClosed(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()

	_, err := b.Publish(Text("last"))
	require.NoError(t, err)

	b.Close()
	b.Close()

	_, err = b.Publish(Text("too late"))
	assert.ErrorIs(t, err, ErrClosed)

	ev, err := receive(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "last", ev.Payload)

	_, err = receive(t, sub)
	assert.ErrorIs(t, err, ErrClosed)

	late := b.Subscribe()
	_, err = receive(t, late)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscription_CloseUnsubscribes(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()
	other := b.Subscribe()

	_, err := b.Publish(Text("queued"))
	require.NoError(t, err)

	sub.Close()
	sub.Close()
	assert.Equal(t, 1, b.Subscribers())

	_, err = receive(t, sub)
	assert.ErrorIs(t, err, ErrClosed)

	n, err := b.Publish(Text("next"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, err := receive(t, other)
	require.NoError(t, err)
	assert.Equal(t, "queued", ev.Payload)
}

func TestSubscription_CloseWakesReceiver(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := sub.Receive(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver was not woken by Close")
	}
}

func TestBus_ConcurrentPublishersKeepSubscribersConsistent(t *testing.T) {
	b := New(1000)
	a := b.Subscribe()
	c := b.Subscribe()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = b.Publish(Text(string(rune('a'+p))))
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < 200; i++ {
		ea, err := receive(t, a)
		require.NoError(t, err)
		ec, err := receive(t, c)
		require.NoError(t, err)
		require.Equal(t, ea, ec, "subscribers diverged at event %d", i)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindText, "text"},
		{KindPing, "ping"},
		{KindPong, "pong"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestBusProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every subscriber receives every event within capacity", prop.ForAll(
		func(payloads []string, subscribers int) bool {
			b := New(len(payloads) + 1)
			subs := make([]*Subscription, subscribers)
			for i := range subs {
				subs[i] = b.Subscribe()
			}
			for _, p := range payloads {
				if n, err := b.Publish(Text(p)); err != nil || n != subscribers {
					return false
				}
			}
			ctx := context.Background()
			for _, sub := range subs {
				for _, p := range payloads {
					ev, err := sub.Receive(ctx)
					if err != nil || ev.Payload != p {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
		gen.IntRange(1, 8),
	))

	properties.Property("overflow keeps the newest events and reports the rest as skipped", prop.ForAll(
		func(capacity, published int) bool {
			b := New(capacity)
			sub := b.Subscribe()
			for i := 0; i < published; i++ {
				_, _ = b.Publish(Text(string(rune('A' + i%26))))
			}
			ctx := context.Background()
			received := 0
			if published > capacity {
				_, err := sub.Receive(ctx)
				var lag *LagError
				if !errors.As(err, &lag) || lag.Skipped != uint64(published-capacity) {
					return false
				}
			}
			for sub.Pending() > 0 {
				if _, err := sub.Receive(ctx); err != nil {
					return false
				}
				received++
			}
			want := published
			if want > capacity {
				want = capacity
			}
			return received == want
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
