package events

import (
	"time"
)

// EventType identifies the type of event emitted by the voice session runtime.
type EventType string

const (
	// EventSessionStateChanged marks a session state machine transition.
	EventSessionStateChanged EventType = "session.state_changed"
	// EventSessionStarted marks session startup.
	EventSessionStarted EventType = "session.started"

	// EventWakeWordDetected marks an accepted wake-word detection.
	EventWakeWordDetected EventType = "wakeword.detected"
	// EventWakeWordIgnored marks a wake-word event dropped because the
	// session was not listening.
	EventWakeWordIgnored EventType = "wakeword.ignored"

	// EventChannelConnected marks a successful detection-channel open.
	EventChannelConnected EventType = "channel.connected"
	// EventChannelDisconnected marks an unexpected detection-channel closure.
	EventChannelDisconnected EventType = "channel.disconnected"
	// EventChannelReconnecting marks a scheduled reconnect attempt.
	EventChannelReconnecting EventType = "channel.reconnecting"
	// EventChannelDegraded marks escalation to the fallback recognizer.
	EventChannelDegraded EventType = "channel.degraded"
	// EventChannelRestored marks the channel reclaiming primacy after degradation.
	EventChannelRestored EventType = "channel.restored"
	// EventChannelProtocolError marks a malformed inbound message (logged, dropped).
	EventChannelProtocolError EventType = "channel.protocol_error"

	// EventHeartbeatReceived marks a liveness pulse on the heartbeat channel.
	EventHeartbeatReceived EventType = "heartbeat.received"
	// EventHeartbeatStale marks staleness exceeding the threshold; a forced
	// reconnect of the listen transport follows.
	EventHeartbeatStale EventType = "heartbeat.stale"

	// EventCaptureStarted marks a recording cycle start.
	EventCaptureStarted EventType = "capture.started"
	// EventCaptureStopped marks a recording cycle stop (any path).
	EventCaptureStopped EventType = "capture.stopped"
	// EventCaptureFailed marks a device-level capture failure.
	EventCaptureFailed EventType = "capture.failed"

	// EventQueryStarted marks submission of a recorded payload to the pipeline.
	EventQueryStarted EventType = "query.started"
	// EventQueryCompleted marks a successful pipeline response.
	EventQueryCompleted EventType = "query.completed"
	// EventQueryFailed marks a pipeline request failure.
	EventQueryFailed EventType = "query.failed"

	// EventPlaybackStarted marks response audio playback start.
	EventPlaybackStarted EventType = "playback.started"
	// EventPlaybackFinished marks playback completion or failure.
	EventPlaybackFinished EventType = "playback.finished"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a runtime event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// StateChangedData carries a session state transition.
type StateChangedData struct {
	baseEventData
	From  string
	To    string
	Cause string
}

// WakeWordData carries a wake-word detection.
type WakeWordData struct {
	baseEventData
	Source  string // "channel", "fallback", "manual"
	Message string
}

// ChannelData carries detection-channel lifecycle details.
type ChannelData struct {
	baseEventData
	URL      string
	Attempt  int
	Delay    time.Duration
	Err      string
	Degraded bool
}

// HeartbeatData carries liveness supervision details.
type HeartbeatData struct {
	baseEventData
	LastHeartbeatAt time.Time
	Staleness       time.Duration
}

// CaptureData carries recording-cycle details.
type CaptureData struct {
	baseEventData
	RecordingID string
	Reason      string // "user", "timeout", "silence", "error"
	Bytes       int
	Duration    time.Duration
}

// QueryData carries pipeline query details.
type QueryData struct {
	baseEventData
	QueryID      string
	UserQuery    string
	ResponseText string
	StatusCode   int
	Err          string
	Latency      time.Duration
}

// PlaybackData carries playback details.
type PlaybackData struct {
	baseEventData
	AudioURL string
	Bytes    int
	Err      string
	Duration time.Duration
}
