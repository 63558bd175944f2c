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

// Liveness supervision defaults.
const (
	// DefaultCheckInterval is how often staleness is evaluated.
	DefaultCheckInterval = 30 * time.Second

	// DefaultStaleAfter is the silence duration beyond which the listen
	// transport is forced closed.
	DefaultStaleAfter = 90 * time.Second
)

// MonitorConfig configures the heartbeat monitor.
type MonitorConfig struct {
	// URL is the heartbeat WebSocket endpoint.
	URL string

	// Headers are sent during the WebSocket handshake. Optional.
	Headers http.Header

	// CheckInterval is the staleness evaluation period.
	// Defaults to DefaultCheckInterval.
	CheckInterval time.Duration

	// StaleAfter is the staleness threshold. Defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	// Backoff is the reconnect policy for the heartbeat transport itself.
	Backoff wsconn.Backoff

	// OnStale is invoked exactly once per stale episode; it should force the
	// listen transport closed (Channel.ForceReconnect).
	OnStale func()

	// OnPulse is invoked for every received pulse with its arrival time.
	// Optional; the session uses it to track lastHeartbeatAt.
	OnPulse func(time.Time)

	// Bus receives observability events. Optional.
	Bus *events.Bus

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

func (c *MonitorConfig) defaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Monitor tracks the secondary liveness channel. A connection can remain
// technically open while silently stalled; the monitor decouples "is the
// socket connected" from "is it actually delivering data" by watching pulse
// arrival times and forcing a listen-transport reconnect on staleness.
type Monitor struct {
	cfg MonitorConfig

	mu        sync.Mutex
	lastPulse time.Time
	forced    bool // set after a forced reconnect, cleared by the next pulse
}

// NewMonitor creates a heartbeat monitor. Call Run to start it.
func NewMonitor(cfg MonitorConfig) *Monitor {
	cfg.defaults()
	return &Monitor{cfg: cfg}
}

// LastHeartbeatAt returns the arrival time of the most recent pulse.
func (m *Monitor) LastHeartbeatAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPulse
}

// Run maintains the heartbeat connection and the periodic staleness check
// until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	// Arm the clock at startup so a slow first connection does not count as
	// staleness from epoch.
	m.mu.Lock()
	m.lastPulse = m.cfg.Now()
	m.mu.Unlock()

	go m.checkLoop(ctx)
	return m.receiveLoop(ctx)
}

// receiveLoop keeps a heartbeat transport open, recording every inbound frame
// as a pulse. The pulse payload is opaque.
func (m *Monitor) receiveLoop(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn := wsconn.New(&wsconn.Config{
			URL:     m.cfg.URL,
			Headers: m.cfg.Headers,
			Logger:  channelLogAdapter{},
		})

		if err := conn.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := m.cfg.Backoff.Delay(attempt)
			attempt++
			logger.Debug("heartbeat connect failed", "attempt", attempt, "delay", delay.String(), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		for {
			if _, err := conn.Receive(ctx); err != nil {
				break
			}
			m.pulse()
		}
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("heartbeat connection lost, reconnecting")
	}
}

// pulse records a liveness signal and clears any stale episode.
func (m *Monitor) pulse() {
	now := m.cfg.Now()

	m.mu.Lock()
	m.lastPulse = now
	m.forced = false
	m.mu.Unlock()

	if m.cfg.OnPulse != nil {
		m.cfg.OnPulse(now)
	}
	m.publish(events.EventHeartbeatReceived, &events.HeartbeatData{LastHeartbeatAt: now})
}

// checkLoop evaluates staleness periodically.
func (m *Monitor) checkLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// check forces a listen-transport reconnect when staleness exceeds the
// threshold. At most one forced reconnect fires per stale episode; the next
// pulse resets the staleness clock.
func (m *Monitor) check() {
	now := m.cfg.Now()

	m.mu.Lock()
	staleness := now.Sub(m.lastPulse)
	shouldForce := staleness > m.cfg.StaleAfter && !m.forced
	if shouldForce {
		m.forced = true
	}
	last := m.lastPulse
	m.mu.Unlock()

	if !shouldForce {
		return
	}

	logger.Warn("heartbeat stale, forcing detection channel reconnect",
		"staleness", staleness.String(), "threshold", m.cfg.StaleAfter.String())
	m.publish(events.EventHeartbeatStale, &events.HeartbeatData{
		LastHeartbeatAt: last,
		Staleness:       staleness,
	})

	if m.cfg.OnStale != nil {
		m.cfg.OnStale()
	}
}

func (m *Monitor) publish(t events.EventType, data events.EventData) {
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(&events.Event{Type: t, Data: data})
	}
}
