package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/webmocket/pkg/bus"
	"github.com/getmockd/webmocket/pkg/config"
	"github.com/getmockd/webmocket/pkg/ledger"
)

const waitFor = 3 * time.Second

type harness struct {
	srv  *Server
	http *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.NewDefault()
	cfg.WriteTimeout = time.Second
	srv := New(cfg, nil)
	h := &harness{srv: srv, http: httptest.NewServer(srv.Handler())}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		srv.State().Bus.Close()
		srv.State().Sessions.CloseAll()
		_ = srv.State().Sessions.Wait(ctx)
		h.http.Close()
	})
	return h
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
}

// client is a gorilla connection with a background reader, so control
// frames are processed while the test writes.
type client struct {
	*websocket.Conn
	frames chan string
}

func (h *harness) dial(t *testing.T) *client {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &client{Conn: conn, frames: make(chan string, 64)}
	conn.SetPingHandler(func(string) error {
		c.frames <- "ping"
		return nil
	})
	conn.SetPongHandler(func(string) error {
		c.frames <- "pong"
		return nil
	})
	go func() {
		defer close(c.frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.frames <- string(data)
		}
	}()
	return c
}

// next returns the next text payload, or "ping"/"pong" for control frames.
func (c *client) next(t *testing.T) string {
	t.Helper()
	select {
	case f, ok := <-c.frames:
		require.True(t, ok, "connection closed")
		return f
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func (h *harness) post(t *testing.T, path, body string) {
	t.Helper()
	resp, err := http.Post(h.http.URL+path, "text/plain; charset=UTF-8", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (h *harness) reset(t *testing.T) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, h.http.URL+"/messages", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (h *harness) messages(t *testing.T) []string {
	t.Helper()
	resp, err := http.Get(h.http.URL + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	return got
}

func (h *harness) eventuallyContains(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, m := range h.messages(t) {
			if m == want {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)
}

func TestClientTextIsRecorded(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello from client")))

	h.eventuallyContains(t, "hello from client")
}

func TestPostedMessageReachesClient(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	h.post(t, "/messages", "hello from server 👋")

	assert.Equal(t, "hello from server 👋", conn.next(t))
}

func TestPingAndPongReachClient(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	h.post(t, "/ping", "")
	assert.Equal(t, "ping", conn.next(t))

	h.post(t, "/pong", "")
	assert.Equal(t, "pong", conn.next(t))
}

func TestClientControlFramesAreClassified(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	deadline := time.Now().Add(time.Second)

	require.NoError(t, conn.WriteControl(websocket.PongMessage, nil, deadline))
	h.eventuallyContains(t, ledger.TagPong)

	require.NoError(t, conn.WriteControl(websocket.PingMessage, nil, deadline))
	h.eventuallyContains(t, ledger.TagPing)
}

func TestResetClearsMessages(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("to be cleared")))
	h.eventuallyContains(t, "to be cleared")

	h.reset(t)
	assert.Empty(t, h.messages(t))

	h.reset(t)
	assert.Empty(t, h.messages(t))
}

func TestOrderIsPreservedPerSession(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t)
	b := h.dial(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 20 {
			_ = b.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("b%d", i)))
		}
	}()
	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	<-done

	var got []string
	require.Eventually(t, func() bool {
		got = h.messages(t)
		return len(got) == 23
	}, waitFor, 10*time.Millisecond)

	var fromA []string
	for _, m := range got {
		if len(m) == 1 {
			fromA = append(fromA, m)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, fromA)
}

func TestFanOut(t *testing.T) {
	h := newHarness(t)
	conns := make([]*client, 5)
	for i := range conns {
		conns[i] = h.dial(t)
	}

	h.post(t, "/messages", "x")

	for _, conn := range conns {
		assert.Equal(t, "x", conn.next(t))
	}
}

func TestNoReplay(t *testing.T) {
	h := newHarness(t)

	h.post(t, "/messages", "too early")
	conn := h.dial(t)
	h.post(t, "/messages", "on time")

	assert.Equal(t, "on time", conn.next(t))
}

func TestCoderClientRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	conn, _, err := ws.Dial(ctx, h.wsURL(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, ws.MessageText, []byte("from coder")))
	h.eventuallyContains(t, "from coder")

	h.post(t, "/messages", "to coder")
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ws.MessageText, typ)
	assert.Equal(t, "to coder", string(data))

	require.NoError(t, conn.Close(ws.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		return h.srv.State().Sessions.Count() == 0
	}, waitFor, 10*time.Millisecond)
}

func TestHealthReportsSessions(t *testing.T) {
	h := newHarness(t)
	h.dial(t)
	h.dial(t)

	require.Eventually(t, func() bool {
		resp, err := http.Get(h.http.URL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == `{"status":"ok","sessions":2,"subscribers":2}`+"\n"
	}, waitFor, 10*time.Millisecond)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Port = 0
	srv := New(cfg, nil)

	require.NoError(t, srv.Start())
	assert.ErrorIs(t, srv.Start(), ErrAlreadyStarted)
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	url := "ws://" + srv.Addr() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.Equal(t, 0, srv.State().Sessions.Count())
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	_, err = srv.State().Bus.Publish(bus.Ping())
	assert.ErrorIs(t, err, bus.ErrClosed)
}
