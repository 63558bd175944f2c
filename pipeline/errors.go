package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyAudio is returned when a voice query carries no audio data.
var ErrEmptyAudio = errors.New("empty audio payload")

// Error is a failed pipeline request. StatusCode is zero for transport-level
// failures that never produced a response.
type Error struct {
	Operation  string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("pipeline %s: status %d: %s", e.Operation, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("pipeline %s: %s", e.Operation, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying: transport errors,
// rate limiting, and server-side errors.
func (e *Error) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}
