package detection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vignanchoutpally/voice-rag/events"
	"github.com/vignanchoutpally/voice-rag/internal/wsconn"
	"github.com/vignanchoutpally/voice-rag/logger"
)

// Reconnection policy defaults.
const (
	// DefaultEscalationThreshold is the number of consecutive failed
	// attempts after which the channel signals permanent degradation.
	DefaultEscalationThreshold = 5

	// keepaliveInterval is the WebSocket ping interval on an open transport.
	keepaliveInterval = 30 * time.Second

	// eventBufferSize bounds the source event queue.
	eventBufferSize = 16
)

// ChannelConfig configures the detection channel.
type ChannelConfig struct {
	// URL is the listen WebSocket endpoint.
	URL string

	// Headers are sent during the WebSocket handshake. Optional.
	Headers http.Header

	// Backoff is the reconnect delay policy. Zero value uses the defaults
	// (1s base, 30s cap, jitter in [0.75, 1.25]).
	Backoff wsconn.Backoff

	// EscalationThreshold is the consecutive-failure count beyond which the
	// channel signals degradation. Defaults to DefaultEscalationThreshold.
	EscalationThreshold int

	// DialTimeout is the per-attempt handshake timeout. Optional.
	DialTimeout time.Duration

	// Bus receives observability events. Optional.
	Bus *events.Bus
}

func (c *ChannelConfig) defaults() {
	if c.EscalationThreshold == 0 {
		c.EscalationThreshold = DefaultEscalationThreshold
	}
}

// Channel is the reconnecting duplex signaling channel to the wake-word
// detection service. It implements WakeWordSource.
//
// Transport failures never surface as session errors: the channel retries
// with exponential backoff indefinitely, signals degradation upward after
// EscalationThreshold consecutive failures, and reclaims primacy when a
// later attempt succeeds.
type Channel struct {
	cfg    ChannelConfig
	events chan Event

	mu       sync.Mutex
	conn     *wsconn.Conn
	paused   bool
	degraded bool
	attempts int
	delay    time.Duration
}

// NewChannel creates a detection channel. Call Run to start it.
func NewChannel(cfg ChannelConfig) *Channel {
	cfg.defaults()
	return &Channel{
		cfg:    cfg,
		events: make(chan Event, eventBufferSize),
	}
}

// Name implements WakeWordSource.
func (c *Channel) Name() string { return SourceChannel }

// Events implements WakeWordSource.
func (c *Channel) Events() <-chan Event { return c.events }

// ReconnectState reports the current consecutive failure count and the last
// scheduled reconnect delay.
func (c *Channel) ReconnectState() (attempts int, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts, c.delay
}

// Run drives the connect/read/reconnect loop until ctx is canceled.
func (c *Channel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn := wsconn.New(&wsconn.Config{
			URL:         c.cfg.URL,
			Headers:     c.cfg.Headers,
			DialTimeout: c.cfg.DialTimeout,
			Logger:      channelLogAdapter{},
		})

		if err := conn.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.handleFailure(ctx, err)
			continue
		}

		c.handleOpen(ctx, conn)
		conn.StartKeepalive(ctx, keepaliveInterval)

		err := c.readLoop(ctx, conn)
		c.clearConn()
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("detection channel closed unexpectedly", "error", err)
		c.publish(events.EventChannelDisconnected, &events.ChannelData{URL: c.cfg.URL, Err: errString(err)})

		c.handleFailure(ctx, err)
	}
}

// handleOpen records a successful open: attempts reset, degradation lifts,
// and a pause is re-asserted if the session is not listening.
func (c *Channel) handleOpen(ctx context.Context, conn *wsconn.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.delay = 0
	wasDegraded := c.degraded
	c.degraded = false
	paused := c.paused
	c.mu.Unlock()

	logger.Info("detection channel open", "url", c.cfg.URL)
	emit(ctx, c.events, Event{Type: EventConnected, Source: SourceChannel})
	c.publish(events.EventChannelConnected, &events.ChannelData{URL: c.cfg.URL})

	if wasDegraded {
		emit(ctx, c.events, Event{Type: EventRestored, Source: SourceChannel})
		c.publish(events.EventChannelRestored, &events.ChannelData{URL: c.cfg.URL})
	}

	// The service starts every connection in the listening state; if the
	// session is mid-interaction, re-assert the pause on the fresh transport.
	if paused {
		if err := conn.Send(ControlMessage{Action: ActionPauseListening}); err != nil {
			logger.Warn("failed to re-assert pause on reconnect", "error", err)
		}
	}
}

// handleFailure increments the failure count, signals degradation when the
// threshold is crossed, and sleeps out the backoff delay.
func (c *Channel) handleFailure(ctx context.Context, err error) {
	c.mu.Lock()
	delay := c.cfg.Backoff.Delay(c.attempts)
	c.attempts++
	attempts := c.attempts
	c.delay = delay
	crossed := attempts > c.cfg.EscalationThreshold && !c.degraded
	if crossed {
		c.degraded = true
	}
	c.mu.Unlock()

	logger.Reconnect(attempts, delay.String(), err)
	emit(ctx, c.events, Event{
		Type:    EventDisconnected,
		Source:  SourceChannel,
		Attempt: attempts,
		Delay:   delay,
	})
	c.publish(events.EventChannelReconnecting, &events.ChannelData{
		URL:     c.cfg.URL,
		Attempt: attempts,
		Delay:   delay,
		Err:     errString(err),
	})

	if crossed {
		logger.Error("detection channel degraded; activating fallback",
			"attempts", attempts)
		emit(ctx, c.events, Event{Type: EventDegraded, Source: SourceChannel, Attempt: attempts})
		c.publish(events.EventChannelDegraded, &events.ChannelData{URL: c.cfg.URL, Attempt: attempts, Degraded: true})
	}

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// readLoop parses and dispatches inbound messages until the transport fails.
func (c *Channel) readLoop(ctx context.Context, conn *wsconn.Conn) error {
	msgCh := make(chan []byte, eventBufferSize)
	errCh := make(chan error, 1)

	go func() {
		errCh <- conn.ReceiveLoop(ctx, msgCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case data := <-msgCh:
			c.dispatch(ctx, data)
		}
	}
}

// dispatch validates one inbound message and converts it to a source event.
// Malformed messages are logged and dropped.
func (c *Channel) dispatch(ctx context.Context, data []byte) {
	msg, err := ParseServerMessage(data)
	if err != nil {
		logger.Warn("dropping malformed detection message", "error", err)
		c.publish(events.EventChannelProtocolError, &events.ChannelData{URL: c.cfg.URL, Err: err.Error()})
		return
	}

	switch msg.Type {
	case MessageWakeWordDetected:
		emit(ctx, c.events, Event{Type: EventWakeWord, Source: SourceChannel, Message: msg.Message})
	case MessageLog:
		logger.Debug("detection service log", "message", msg.Message)
		emit(ctx, c.events, Event{Type: EventLog, Source: SourceChannel, Message: msg.Message})
	case MessageError:
		logger.Warn("detection service error", "message", msg.Message)
		emit(ctx, c.events, Event{Type: EventError, Source: SourceChannel, Message: msg.Message})
	}
}

// Pause implements WakeWordSource. It sends a pause_listening control message
// on the active transport; the paused flag survives reconnects.
func (c *Channel) Pause() error {
	return c.setPaused(true, ActionPauseListening)
}

// Resume implements WakeWordSource.
func (c *Channel) Resume() error {
	return c.setPaused(false, ActionResumeListening)
}

func (c *Channel) setPaused(paused bool, action string) error {
	c.mu.Lock()
	c.paused = paused
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		// Not connected: the flag is re-asserted on the next open.
		return nil
	}
	if err := conn.Send(ControlMessage{Action: action}); err != nil {
		logger.Warn("failed to send control message", "action", action, "error", err)
		return err
	}
	return nil
}

// ForceReconnect aborts the active transport so the read loop fails and the
// normal reconnection policy takes over. Called by the heartbeat monitor when
// the connection is open but silently stalled.
func (c *Channel) ForceReconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		logger.Warn("forcing detection channel reconnect")
		conn.Abort()
	}
}

// IsDegraded reports whether the channel has signaled permanent degradation
// and not yet reclaimed primacy.
func (c *Channel) IsDegraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

func (c *Channel) clearConn() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *Channel) publish(t events.EventType, data events.EventData) {
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(&events.Event{Type: t, Data: data})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// channelLogAdapter adapts the runtime logger to the wsconn.Logger interface.
type channelLogAdapter struct{}

// Debug implements wsconn.Logger.
func (channelLogAdapter) Debug(msg string, keysAndValues ...interface{}) {
	logger.Debug(msg, append([]interface{}{"component", "detection"}, keysAndValues...)...)
}

// Info implements wsconn.Logger.
func (channelLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	logger.Info(msg, append([]interface{}{"component", "detection"}, keysAndValues...)...)
}

// Warn implements wsconn.Logger.
func (channelLogAdapter) Warn(msg string, keysAndValues ...interface{}) {
	logger.Warn(msg, append([]interface{}{"component", "detection"}, keysAndValues...)...)
}

// Error implements wsconn.Logger.
func (channelLogAdapter) Error(msg string, keysAndValues ...interface{}) {
	logger.Error(msg, append([]interface{}{"component", "detection"}, keysAndValues...)...)
}
