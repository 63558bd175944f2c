// Package history persists the transcript of a voice session: each completed
// query/answer exchange in order, per session.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session has no recorded history.
var ErrNotFound = errors.New("session history not found")

// ErrInvalidSessionID is returned for an empty session ID.
var ErrInvalidSessionID = errors.New("invalid session ID")

// Exchange is one completed voice interaction.
type Exchange struct {
	QueryID    string    `json:"query_id"`
	QueryText  string    `json:"query_text"`
	AnswerText string    `json:"answer_text"`
	AudioURL   string    `json:"audio_url,omitempty"`
	Source     string    `json:"source"` // wake-word source that started the query
	At         time.Time `json:"at"`
}

// Store persists session transcripts.
type Store interface {
	// Append records one exchange at the end of the session's transcript.
	Append(ctx context.Context, sessionID string, ex Exchange) error

	// Recent returns up to n exchanges, newest last. n <= 0 returns the
	// full transcript. Returns ErrNotFound for an unknown session.
	Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error)

	// Clear drops the session's transcript. Clearing an unknown session is
	// a no-op.
	Clear(ctx context.Context, sessionID string) error
}
