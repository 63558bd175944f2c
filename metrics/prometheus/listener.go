package prometheus

import (
	"github.com/vignanchoutpally/voice-rag/events"
)

// Status constants for metric labels.
const (
	statusSuccess  = "success"
	statusError    = "error"
	outcomeAccept  = "accepted"
	outcomeIgnored = "ignored"
)

// MetricsListener records runtime events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with a Bus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	switch event.Type {
	case events.EventSessionStateChanged:
		if data, ok := event.Data.(*events.StateChangedData); ok {
			RecordStateTransition(data.From, data.To)
		}
	case events.EventWakeWordDetected:
		if data, ok := event.Data.(*events.WakeWordData); ok {
			RecordWakeWord(data.Source, outcomeAccept)
		}
	case events.EventWakeWordIgnored:
		if data, ok := event.Data.(*events.WakeWordData); ok {
			RecordWakeWord(data.Source, outcomeIgnored)
		}
	case events.EventChannelReconnecting:
		RecordChannelReconnect()
	case events.EventChannelDegraded:
		SetChannelDegraded(true)
	case events.EventChannelRestored, events.EventChannelConnected:
		SetChannelDegraded(false)
	case events.EventChannelProtocolError:
		RecordProtocolError()
	case events.EventHeartbeatStale:
		RecordHeartbeatStale()
	case events.EventCaptureStopped:
		if data, ok := event.Data.(*events.CaptureData); ok {
			RecordRecording(data.Reason, data.Duration.Seconds())
		}
	case events.EventQueryCompleted:
		if data, ok := event.Data.(*events.QueryData); ok {
			RecordQuery(statusSuccess, data.Latency.Seconds())
		}
	case events.EventQueryFailed:
		if data, ok := event.Data.(*events.QueryData); ok {
			RecordQuery(statusError, data.Latency.Seconds())
		}
	case events.EventPlaybackFinished:
		if data, ok := event.Data.(*events.PlaybackData); ok {
			status := statusSuccess
			if data.Err != "" {
				status = statusError
			}
			RecordPlayback(status, data.Duration.Seconds())
		}
	default:
		// No metric for this event.
	}
}

// Listener returns an events.Listener function for Bus registration.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
