package session

import "time"

// State is the voice session's activation state. Exactly one state is
// current at any time, and only the dispatch loop changes it.
type State int

const (
	// StateListening means detection is armed and the microphone is idle.
	StateListening State = iota
	// StateRecording means the microphone is capturing a query.
	StateRecording
	// StateProcessing means a recorded query is at the pipeline.
	StateProcessing
	// StatePlaying means the response audio is being rendered.
	StatePlaying
	// StateError is a recoverable fault state; the session returns to
	// listening after the recovery delay or an explicit retry.
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// PendingQuery is the single in-flight interaction. At most one exists per
// session; it is created when a wake word is accepted and retired when the
// session returns to listening.
type PendingQuery struct {
	ID          string
	Source      string // wake-word source that started it
	RecordingID string
	QueryText   string
	StartedAt   time.Time
}
