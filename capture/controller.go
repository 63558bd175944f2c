// Package capture owns the microphone and the recording lifecycle. Exactly
// one recording cycle can hold the device at a time, every cycle releases the
// device on every exit path, and a hard duration cap bounds open-ended
// recordings.
package capture

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vignanchoutpally/voice-rag/events"
	"github.com/vignanchoutpally/voice-rag/logger"
)

// DefaultMaxDuration is the hard cap on one recording cycle.
const DefaultMaxDuration = 10 * time.Second

// StopReason says why a recording cycle ended.
type StopReason string

const (
	// StopUser is an explicit stop request.
	StopUser StopReason = "user"
	// StopTimeout is the hard duration cap firing.
	StopTimeout StopReason = "timeout"
	// StopSilence is the silence detector ending the cycle.
	StopSilence StopReason = "silence"
	// StopError is a device failure mid-cycle.
	StopError StopReason = "error"
)

// Result is the outcome of one recording cycle. Exactly one Result is
// delivered per started cycle.
type Result struct {
	RecordingID string
	Audio       []byte
	Duration    time.Duration
	Reason      StopReason
	Err         error // set only when Reason is StopError
}

// ControllerConfig configures the capture controller.
type ControllerConfig struct {
	// Device is the microphone. Required.
	Device MicrophoneDevice

	// MaxDuration caps one recording cycle. Defaults to DefaultMaxDuration.
	MaxDuration time.Duration

	// OnResult receives the single outcome of each cycle. Required.
	OnResult func(Result)

	// Silence enables silence-based auto-stop for PCM input. Optional.
	Silence *SilenceConfig

	// Bus receives observability events. Optional.
	Bus *events.Bus
}

func (c *ControllerConfig) defaults() {
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultMaxDuration
	}
}

// Controller mediates all microphone access. Start opens a cycle, Stop ends
// it; both are safe to call at any time and Stop is idempotent.
type Controller struct {
	cfg ControllerConfig

	mu      sync.Mutex
	current *cycle
}

// NewController creates a capture controller.
func NewController(cfg ControllerConfig) *Controller {
	cfg.defaults()
	return &Controller{cfg: cfg}
}

// Recording reports whether a cycle currently holds the microphone.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Start acquires the microphone and begins a recording cycle. It returns
// ErrDeviceBusy if a cycle is already running, and the device's error
// (including ErrPermissionDenied) if acquisition fails. On success the cycle
// runs until Stop, the duration cap, or a device failure, and delivers
// exactly one Result.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return "", ErrDeviceBusy
	}
	// Reserve the slot before the (possibly slow) device open so two
	// concurrent Starts cannot both acquire.
	placeholder := &cycle{}
	c.current = placeholder
	c.mu.Unlock()

	stream, err := c.cfg.Device.Open(ctx)
	if err != nil {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		logger.Error("microphone acquisition failed", "device", c.cfg.Device.Name(), "error", err)
		c.publish(events.EventCaptureFailed, &events.CaptureData{Reason: string(StopError)})
		return "", err
	}

	cyc := &cycle{
		id:        uuid.New().String(),
		stream:    stream,
		startedAt: time.Now(),
		stopped:   make(chan StopReason, 1),
	}
	cyc.timer = time.AfterFunc(c.cfg.MaxDuration, func() {
		cyc.requestStop(StopTimeout)
	})

	c.mu.Lock()
	c.current = cyc
	c.mu.Unlock()

	logger.Info("recording started", "recording_id", cyc.id, "device", c.cfg.Device.Name())
	c.publish(events.EventCaptureStarted, &events.CaptureData{RecordingID: cyc.id})

	go c.run(ctx, cyc)
	return cyc.id, nil
}

// Stop ends the current recording cycle, if any. Calling it with no cycle
// running, or more than once for the same cycle, is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	cyc := c.current
	c.mu.Unlock()
	if cyc == nil || cyc.stream == nil {
		return
	}
	cyc.requestStop(StopUser)
}

// run pumps chunks into the cycle buffer until a stop request, the chunk
// stream ending, or ctx cancelation, then finalizes exactly once.
func (c *Controller) run(ctx context.Context, cyc *cycle) {
	var (
		reason StopReason
		runErr error
		vad    *silenceDetector
	)
	if c.cfg.Silence != nil {
		vad = newSilenceDetector(*c.cfg.Silence)
	}

loop:
	for {
		select {
		case <-ctx.Done():
			reason, runErr = StopError, ctx.Err()
			break loop
		case reason = <-cyc.stopped:
			break loop
		case chunk, ok := <-cyc.stream.Chunks():
			if !ok {
				// Device closed the stream underneath us.
				reason, runErr = StopError, ErrStreamEnded
				select {
				case r := <-cyc.stopped:
					// A stop raced the stream closing; keep its reason.
					reason, runErr = r, nil
				default:
				}
				break loop
			}
			cyc.buf.Write(chunk)
			if vad != nil && vad.observe(chunk, time.Now()) {
				reason = StopSilence
				break loop
			}
		}
	}

	c.finish(cyc, reason, runErr)
}

// finish releases the device, clears the active cycle, and delivers the
// cycle's single Result.
func (c *Controller) finish(cyc *cycle, reason StopReason, runErr error) {
	cyc.timer.Stop()
	if err := cyc.stream.Close(); err != nil {
		logger.Warn("microphone release failed", "recording_id", cyc.id, "error", err)
	}

	c.mu.Lock()
	if c.current == cyc {
		c.current = nil
	}
	c.mu.Unlock()

	res := Result{
		RecordingID: cyc.id,
		Audio:       cyc.buf.Bytes(),
		Duration:    time.Since(cyc.startedAt),
		Reason:      reason,
		Err:         runErr,
	}

	logger.Info("recording stopped",
		"recording_id", cyc.id,
		"reason", string(reason),
		"bytes", len(res.Audio),
		"duration", res.Duration.String())
	c.publish(events.EventCaptureStopped, &events.CaptureData{
		RecordingID: cyc.id,
		Reason:      string(reason),
		Bytes:       len(res.Audio),
		Duration:    res.Duration,
	})

	c.cfg.OnResult(res)
}

func (c *Controller) publish(t events.EventType, data events.EventData) {
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(&events.Event{Type: t, Data: data})
	}
}

// cycle is one microphone acquisition with its accumulated audio.
type cycle struct {
	id        string
	stream    Stream
	startedAt time.Time
	buf       bytes.Buffer
	timer     *time.Timer

	stopOnce sync.Once
	stopped  chan StopReason
}

// requestStop records the first stop request for the cycle; later requests
// are ignored, which makes Stop and the timeout race safely.
func (cy *cycle) requestStop(reason StopReason) {
	cy.stopOnce.Do(func() {
		cy.stopped <- reason
	})
}
