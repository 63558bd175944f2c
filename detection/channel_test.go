package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignanchoutpally/voice-rag/internal/wsconn"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// fastBackoff keeps reconnect tests quick.
var fastBackoff = wsconn.Backoff{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// collectEvent waits for the next event of the given type, discarding others.
func collectEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestChannel_WakeWordEventDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(ServerMessage{Type: MessageWakeWordDetected, Message: "detected"})
		// hold the connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	collectEvent(t, ch.Events(), EventConnected)
	ev := collectEvent(t, ch.Events(), EventWakeWord)
	assert.Equal(t, SourceChannel, ev.Source)
	assert.Equal(t, "detected", ev.Message)
}

func TestChannel_MalformedMessageDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"shutdown"}`))
		_ = conn.WriteJSON(ServerMessage{Type: MessageWakeWordDetected})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	// The malformed frames are dropped; the valid one still arrives.
	ev := collectEvent(t, ch.Events(), EventWakeWord)
	assert.Equal(t, SourceChannel, ev.Source)
}

func TestChannel_PauseSendsControlMessage(t *testing.T) {
	received := make(chan ControlMessage, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg ControlMessage
			if json.Unmarshal(data, &msg) == nil {
				received <- msg
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	collectEvent(t, ch.Events(), EventConnected)

	require.NoError(t, ch.Pause())
	select {
	case msg := <-received:
		assert.Equal(t, ActionPauseListening, msg.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("pause_listening was not observed on the wire")
	}

	require.NoError(t, ch.Resume())
	select {
	case msg := <-received:
		assert.Equal(t, ActionResumeListening, msg.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("resume_listening was not observed on the wire")
	}
}

func TestChannel_DegradedAfterSixFailures(t *testing.T) {
	ch := NewChannel(ChannelConfig{
		URL:         "ws://localhost:1", // nothing listening
		Backoff:     fastBackoff,
		DialTimeout: 100 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	ev := collectEvent(t, ch.Events(), EventDegraded)
	assert.Equal(t, 6, ev.Attempt)
	assert.True(t, ch.IsDegraded())

	// The channel keeps attempting reconnection in the background.
	ev = collectEvent(t, ch.Events(), EventDisconnected)
	assert.Greater(t, ev.Attempt, 6)
}

func TestChannel_RestoredAfterDegradation(t *testing.T) {
	var accepting atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !accepting.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	collectEvent(t, ch.Events(), EventDegraded)

	accepting.Store(true)
	collectEvent(t, ch.Events(), EventConnected)
	collectEvent(t, ch.Events(), EventRestored)

	assert.False(t, ch.IsDegraded())
	attempts, _ := ch.ReconnectState()
	assert.Zero(t, attempts)
}

func TestChannel_AttemptsResetAfterReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		if n == 1 {
			// Drop the first connection immediately: unexpected closure.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	collectEvent(t, ch.Events(), EventConnected)
	ev := collectEvent(t, ch.Events(), EventDisconnected)
	assert.Equal(t, 1, ev.Attempt)
	assert.Greater(t, ev.Delay, time.Duration(0))

	collectEvent(t, ch.Events(), EventConnected)
	attempts, delay := ch.ReconnectState()
	assert.Zero(t, attempts)
	assert.Zero(t, delay)
}

func TestChannel_PauseReassertedOnReconnect(t *testing.T) {
	control := make(chan ControlMessage, 8)
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		go func() {
			if n == 1 {
				// Kill the first connection shortly after the pause arrives.
				time.Sleep(200 * time.Millisecond)
				conn.Close()
			}
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg ControlMessage
			if json.Unmarshal(data, &msg) == nil {
				control <- msg
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	collectEvent(t, ch.Events(), EventConnected)
	require.NoError(t, ch.Pause())

	// After the drop the channel reconnects and re-asserts the pause.
	collectEvent(t, ch.Events(), EventDisconnected)
	collectEvent(t, ch.Events(), EventConnected)

	deadline := time.After(5 * time.Second)
	pauses := 0
	for pauses < 2 {
		select {
		case msg := <-control:
			if msg.Action == ActionPauseListening {
				pauses++
			}
		case <-deadline:
			t.Fatalf("pause was not re-asserted; saw %d pause messages", pauses)
		}
	}
}

func TestChannel_ForceReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(ChannelConfig{URL: wsURL(srv), Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	collectEvent(t, ch.Events(), EventConnected)
	ch.ForceReconnect()

	// The abort surfaces as an unexpected closure and the channel reconnects.
	collectEvent(t, ch.Events(), EventDisconnected)
	collectEvent(t, ch.Events(), EventConnected)
}

func TestChannel_RunStopsOnContextCancel(t *testing.T) {
	ch := NewChannel(ChannelConfig{URL: "ws://localhost:1", Backoff: fastBackoff})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
