package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// Values stored under these keys are automatically extracted by the
// ContextHandler and added to log entries.
const (
	// ContextKeySessionID identifies the voice session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyQueryID identifies the pending pipeline query.
	ContextKeyQueryID contextKey = "query_id"

	// ContextKeyComponent identifies the emitting component
	// (e.g., "detection", "capture", "pipeline", "playback").
	ContextKeyComponent contextKey = "component"

	// ContextKeyWakeSource identifies the active wake-word source
	// ("channel", "fallback", "manual").
	ContextKeyWakeSource contextKey = "wake_source"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyQueryID,
	ContextKeyComponent,
	ContextKeyWakeSource,
}

// WithSessionID returns a context carrying the session ID for log enrichment.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, id)
}

// WithQueryID returns a context carrying the pending query ID for log enrichment.
func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyQueryID, id)
}

// WithComponent returns a context carrying the component name for log enrichment.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ContextKeyComponent, component)
}
