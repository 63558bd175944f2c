// Package prometheus provides Prometheus metrics for the voice session
// runtime.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voicerag"

var (
	// stateTransitionsTotal counts session state machine transitions.
	stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	// wakeWordsTotal counts wake-word detections by source and outcome.
	wakeWordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_words_total",
			Help:      "Total number of wake-word detections",
		},
		[]string{"source", "outcome"}, // outcome: accepted, ignored
	)

	// channelReconnectsTotal counts detection-channel reconnect attempts.
	channelReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_reconnects_total",
			Help:      "Total number of detection channel reconnect attempts",
		},
	)

	// channelDegraded is 1 while the fallback recognizer is active.
	channelDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_degraded",
			Help:      "Whether the detection channel is degraded (1) or healthy (0)",
		},
	)

	// protocolErrorsTotal counts malformed detection-channel messages.
	protocolErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of malformed detection channel messages",
		},
	)

	// heartbeatStaleTotal counts stale episodes that forced a reconnect.
	heartbeatStaleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_stale_total",
			Help:      "Total number of heartbeat stale episodes",
		},
	)

	// recordingDuration is a histogram of recording cycle duration.
	recordingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Histogram of recording cycle duration in seconds",
			Buckets:   []float64{.5, 1, 2, 3, 5, 8, 10, 15},
		},
		[]string{"reason"}, // reason: user, timeout, error
	)

	// queryDuration is a histogram of end-to-end pipeline query duration.
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Histogram of pipeline query duration in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"}, // status: success, error
	)

	// playbackDuration is a histogram of response playback duration.
	playbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_duration_seconds",
			Help:      "Histogram of response playback duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		stateTransitionsTotal,
		wakeWordsTotal,
		channelReconnectsTotal,
		channelDegraded,
		protocolErrorsTotal,
		heartbeatStaleTotal,
		recordingDuration,
		queryDuration,
		playbackDuration,
	}
)

// RecordStateTransition records one session state transition.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordWakeWord records a wake-word detection.
func RecordWakeWord(source, outcome string) {
	wakeWordsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordChannelReconnect records a scheduled reconnect attempt.
func RecordChannelReconnect() {
	channelReconnectsTotal.Inc()
}

// SetChannelDegraded flips the degradation gauge.
func SetChannelDegraded(degraded bool) {
	if degraded {
		channelDegraded.Set(1)
	} else {
		channelDegraded.Set(0)
	}
}

// RecordProtocolError records a malformed inbound message.
func RecordProtocolError() {
	protocolErrorsTotal.Inc()
}

// RecordHeartbeatStale records a stale episode.
func RecordHeartbeatStale() {
	heartbeatStaleTotal.Inc()
}

// RecordRecording records a completed recording cycle.
func RecordRecording(reason string, durationSeconds float64) {
	recordingDuration.WithLabelValues(reason).Observe(durationSeconds)
}

// RecordQuery records a pipeline query outcome.
func RecordQuery(status string, durationSeconds float64) {
	queryDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordPlayback records a playback outcome.
func RecordPlayback(status string, durationSeconds float64) {
	playbackDuration.WithLabelValues(status).Observe(durationSeconds)
}
