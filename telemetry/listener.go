package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vignanchoutpally/voice-rag/events"
)

// SpanListener turns runtime events into spans. One span covers a full
// interaction: opened when the wake word is accepted, closed when the session
// returns to listening. Query and playback boundaries become span events.
type SpanListener struct {
	tracer trace.Tracer

	mu      sync.Mutex
	current trace.Span
}

// NewSpanListener creates a span listener using the given TracerProvider.
// A nil provider uses the global one.
func NewSpanListener(tp trace.TracerProvider) *SpanListener {
	return &SpanListener{tracer: Tracer(tp)}
}

// Handle processes one runtime event. Register with Bus.SubscribeAll.
func (l *SpanListener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventWakeWordDetected:
		l.begin(event)
	case events.EventQueryStarted, events.EventCaptureStopped, events.EventPlaybackStarted:
		l.annotate(event)
	case events.EventQueryCompleted:
		l.annotateQuery(event, codes.Ok)
	case events.EventQueryFailed:
		l.annotateQuery(event, codes.Error)
	case events.EventSessionStateChanged:
		l.onStateChanged(event)
	default:
	}
}

// Listener returns an events.Listener function for Bus registration.
func (l *SpanListener) Listener() events.Listener {
	return l.Handle
}

func (l *SpanListener) begin(event *events.Event) {
	data, ok := event.Data.(*events.WakeWordData)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		// Overlapping interactions cannot happen; a leftover span means a
		// missed terminal event, so close it rather than leak it.
		l.current.End()
	}
	_, span := l.tracer.Start(context.Background(), "voice.interaction",
		trace.WithAttributes(
			attribute.String("session.id", event.SessionID),
			attribute.String("wakeword.source", data.Source),
		))
	l.current = span
}

func (l *SpanListener) annotate(event *events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		l.current.AddEvent(string(event.Type))
	}
}

func (l *SpanListener) annotateQuery(event *events.Event, code codes.Code) {
	data, ok := event.Data.(*events.QueryData)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return
	}
	l.current.AddEvent(string(event.Type))
	l.current.SetAttributes(
		attribute.String("query.id", data.QueryID),
		attribute.Float64("query.latency_seconds", data.Latency.Seconds()),
	)
	if code == codes.Error {
		l.current.SetStatus(codes.Error, data.Err)
	}
}

// onStateChanged closes the interaction span when the session returns to
// listening or enters the error state.
func (l *SpanListener) onStateChanged(event *events.Event) {
	data, ok := event.Data.(*events.StateChangedData)
	if !ok {
		return
	}
	if data.To != "listening" && data.To != "error" {
		return
	}
	// Entering recording is the span start, not an end.
	if data.From == "listening" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return
	}
	l.current.SetAttributes(attribute.String("interaction.outcome", data.Cause))
	l.current.End()
	l.current = nil
}
