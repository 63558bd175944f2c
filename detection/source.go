// Package detection provides the wake-word detection surface of the voice
// session: the resilient signaling channel to the detection service, the
// local fallback recognizer, the manual escape hatch, and the heartbeat
// liveness monitor.
//
// All wake-word producers implement WakeWordSource and emit the same Event
// shape, so the session consumes detections identically regardless of origin.
package detection

import (
	"context"
	"time"
)

// EventType identifies an event emitted by a wake-word source.
type EventType string

const (
	// EventWakeWord is a validated wake-word detection.
	EventWakeWord EventType = "wake_word"
	// EventLog is informational service text, surfaced to the UI.
	EventLog EventType = "log"
	// EventError is a service-reported error. Infrastructure-level: the
	// session stays in LISTENING.
	EventError EventType = "error"
	// EventConnected marks a successful channel open.
	EventConnected EventType = "connected"
	// EventDisconnected marks an unexpected channel closure.
	EventDisconnected EventType = "disconnected"
	// EventDegraded marks escalation after consecutive reconnect failures;
	// the session should activate the fallback recognizer.
	EventDegraded EventType = "degraded"
	// EventRestored marks the channel reclaiming primacy after degradation.
	EventRestored EventType = "restored"
)

// Event is the uniform event shape consumed by the session from every
// wake-word source.
type Event struct {
	Type    EventType
	Source  string // "channel", "fallback", "manual"
	Message string

	// Reconnection bookkeeping, populated by the channel source.
	Attempt int
	Delay   time.Duration
}

// WakeWordSource is the capability interface for wake-word producers.
// Exactly one source owns the wake-word-producing role at any time.
type WakeWordSource interface {
	// Name identifies the source ("channel", "fallback", "manual").
	Name() string

	// Run drives the source until ctx is canceled. It blocks.
	Run(ctx context.Context) error

	// Pause suppresses wake-word production. For the channel source this
	// sends a pause_listening control message; for local sources it stops
	// recognition.
	Pause() error

	// Resume re-enables wake-word production.
	Resume() error

	// Events returns the source's event stream. Events are delivered in
	// production order.
	Events() <-chan Event
}

// Source names.
const (
	SourceChannel  = "channel"
	SourceFallback = "fallback"
	SourceManual   = "manual"
)

// emit delivers an event preserving order, giving up when ctx is done.
func emit(ctx context.Context, ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
