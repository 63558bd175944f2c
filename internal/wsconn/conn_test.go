package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsUpgrader is the test WebSocket upgrader.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// echoServer returns a test server that echoes WebSocket messages back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

// wsURL converts an HTTP test server URL to a WebSocket URL.
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConn_ConnectAndSendReceive(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	msg := map[string]string{"action": "pause_listening"}
	require.NoError(t, c.Send(msg))

	data, err := c.Receive(ctx)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "pause_listening", got["action"])
}

func TestConn_SendRaw(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	payload := []byte(`{"type":"log","message":"heartbeat"}`)
	require.NoError(t, c.SendRaw(payload))

	data, err := c.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestConn_ConnectFailure(t *testing.T) {
	c := New(&Config{
		URL:         "ws://localhost:1", // Nothing listening
		DialTimeout: 500 * time.Millisecond,
	})
	err := c.Connect(context.Background())
	require.Error(t, err)
}

func TestConn_SendWithoutConnect(t *testing.T) {
	c := New(&Config{URL: "ws://localhost:1"})
	err := c.Send(map[string]string{"action": "resume_listening"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestConn_ReceiveContextCancel(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Receive(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_ReceiveLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"log"}`)); err != nil {
				return
			}
		}
		// normal close after the burst
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	msgCh := make(chan []byte, 8)
	err := c.ReceiveLoop(context.Background(), msgCh)
	require.NoError(t, err) // normal closure

	assert.Len(t, msgCh, 3)
}

func TestConn_Close_Idempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close()) // second close should succeed
	assert.True(t, c.IsClosed())
}

func TestConn_Close_WithoutConnect(t *testing.T) {
	c := New(&Config{URL: "ws://localhost:1"})
	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())
}

func TestConn_Abort_FailsBlockedReader(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Abort()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not observe forced close")
	}

	// The Conn is not cleanly closed; a fresh transport may be dialed.
	assert.False(t, c.IsClosed())
}

func TestConn_ConnectAfterClose(t *testing.T) {
	c := New(&Config{URL: "ws://localhost:1"})
	require.NoError(t, c.Close())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
