package capture

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned when the platform refuses microphone
// access. The session surfaces this as a terminal capture failure rather
// than retrying.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrDeviceBusy is returned when the microphone is already held by another
// capture cycle.
var ErrDeviceBusy = errors.New("microphone already in use")

// ErrStreamEnded is reported when the device closes its chunk stream before
// the cycle was stopped.
var ErrStreamEnded = errors.New("microphone stream ended unexpectedly")

// Stream is one open microphone acquisition. Chunks delivers encoded audio
// until the stream is closed; Close releases the device and must be safe to
// call more than once.
type Stream interface {
	// Chunks streams encoded audio data. The channel closes when the
	// stream is closed or the device fails.
	Chunks() <-chan []byte

	// Close releases the microphone.
	Close() error
}

// MicrophoneDevice abstracts platform audio input. Implementations own the
// actual device handle; the controller guarantees at most one open Stream
// at a time.
type MicrophoneDevice interface {
	// Name identifies the device.
	Name() string

	// Open acquires the microphone and starts streaming.
	// Returns ErrPermissionDenied when the platform refuses access.
	Open(ctx context.Context) (Stream, error)
}
