// Package session implements the voice activation state machine. A session
// is idle-by-default: it listens for a wake word, records one query, sends it
// through the pipeline, plays the answer, and returns to listening. All state
// changes happen on a single dispatch goroutine, so event ordering is the
// arrival order and stale events cannot race a transition.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vignanchoutpally/voice-rag/capture"
	"github.com/vignanchoutpally/voice-rag/detection"
	"github.com/vignanchoutpally/voice-rag/events"
	"github.com/vignanchoutpally/voice-rag/history"
	"github.com/vignanchoutpally/voice-rag/logger"
	"github.com/vignanchoutpally/voice-rag/pipeline"
)

// DefaultErrorRecoveryDelay is how long the session sits in the error state
// before automatically returning to listening.
const DefaultErrorRecoveryDelay = 3 * time.Second

const commandBufferSize = 32

// Backend is the subset of the pipeline client the session drives.
// *pipeline.Client satisfies it.
type Backend interface {
	ChatVoice(ctx context.Context, audio []byte) (*pipeline.VoiceResponse, error)
	ClearState(ctx context.Context) error
}

// Player renders a response audio URL. *playback.Player satisfies it.
type Player interface {
	Play(ctx context.Context, audioURL string) error
}

// Config configures a voice session.
type Config struct {
	// SessionID identifies the session. Defaults to a random UUID.
	SessionID string

	// Primary is the server-push detection channel. Required.
	Primary detection.WakeWordSource

	// Fallback is the local recognizer, activated while the primary is
	// degraded. Optional.
	Fallback detection.WakeWordSource

	// Backend runs voice queries. Required.
	Backend Backend

	// Device is the microphone. Required.
	Device capture.MicrophoneDevice

	// Player renders response audio. Required.
	Player Player

	// History records completed exchanges. Defaults to an in-memory store.
	History history.Store

	// MaxRecording caps one recording cycle.
	// Defaults to capture.DefaultMaxDuration.
	MaxRecording time.Duration

	// ErrorRecoveryDelay is how long the error state lasts before
	// automatic recovery. Defaults to DefaultErrorRecoveryDelay.
	ErrorRecoveryDelay time.Duration

	// ClearStateAtStart drops the backend's conversation memory when the
	// session starts, so stale context never leaks into a new session.
	ClearStateAtStart bool

	// Bus receives observability events. Defaults to a fresh bus.
	Bus *events.Bus
}

func (c *Config) defaults() {
	if c.SessionID == "" {
		c.SessionID = uuid.New().String()
	}
	if c.History == nil {
		c.History = history.NewMemoryStore()
	}
	if c.ErrorRecoveryDelay == 0 {
		c.ErrorRecoveryDelay = DefaultErrorRecoveryDelay
	}
	if c.Bus == nil {
		c.Bus = events.NewBus()
	}
}

// VoiceSession coordinates detection, capture, the pipeline, and playback.
type VoiceSession struct {
	cfg     Config
	capture *capture.Controller
	manual  *detection.ManualTrigger

	// commands serializes every state mutation onto the dispatch loop.
	commands chan func()

	mu       sync.RWMutex
	state    State
	pending  *PendingQuery
	lastErr  error
	degraded bool

	hbMu          sync.RWMutex
	lastHeartbeat time.Time

	recovery *time.Timer
}

// New creates a voice session. Call Run to start it.
func New(cfg Config) (*VoiceSession, error) {
	cfg.defaults()
	if cfg.Primary == nil {
		return nil, errors.New("primary wake-word source is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Device == nil {
		return nil, errors.New("microphone device is required")
	}
	if cfg.Player == nil {
		return nil, errors.New("player is required")
	}

	s := &VoiceSession{
		cfg:      cfg,
		manual:   detection.NewManualTrigger(),
		commands: make(chan func(), commandBufferSize),
		state:    StateListening,
	}
	s.capture = capture.NewController(capture.ControllerConfig{
		Device:      cfg.Device,
		MaxDuration: cfg.MaxRecording,
		Bus:         cfg.Bus,
		OnResult:    func(r capture.Result) { s.post(func() { s.onCaptureResult(r) }) },
	})
	return s, nil
}

// ID returns the session identifier.
func (s *VoiceSession) ID() string { return s.cfg.SessionID }

// Bus returns the session's event bus.
func (s *VoiceSession) Bus() *events.Bus { return s.cfg.Bus }

// State returns the current activation state.
func (s *VoiceSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentQuery returns a copy of the in-flight query, if any.
func (s *VoiceSession) CurrentQuery() *PendingQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil
	}
	q := *s.pending
	return &q
}

// LastError returns the error that put the session into the error state.
func (s *VoiceSession) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// RecordHeartbeat notes a liveness pulse. Wired to the heartbeat monitor's
// OnPulse callback.
func (s *VoiceSession) RecordHeartbeat(at time.Time) {
	s.hbMu.Lock()
	s.lastHeartbeat = at
	s.hbMu.Unlock()
}

// LastHeartbeatAt returns the arrival time of the most recent pulse.
func (s *VoiceSession) LastHeartbeatAt() time.Time {
	s.hbMu.RLock()
	defer s.hbMu.RUnlock()
	return s.lastHeartbeat
}

// TriggerWake simulates a wake-word detection, the user-visible last resort
// when no recognition path works. Triggers outside listening are dropped.
func (s *VoiceSession) TriggerWake() {
	s.manual.Trigger()
}

// StopRecording ends the current recording cycle. It is idempotent and a
// no-op outside the recording state.
func (s *VoiceSession) StopRecording() {
	s.capture.Stop()
}

// Retry leaves the error state immediately instead of waiting out the
// recovery delay.
func (s *VoiceSession) Retry() {
	s.post(func() { s.recover("retry") })
}

// Run starts the wake-word sources and the dispatch loop, blocking until ctx
// is canceled.
func (s *VoiceSession) Run(ctx context.Context) error {
	logger.Info("voice session starting", "session_id", s.cfg.SessionID)
	s.publish(events.EventSessionStarted, nil)

	if s.cfg.ClearStateAtStart {
		if err := s.cfg.Backend.ClearState(ctx); err != nil {
			logger.Warn("failed to clear backend conversation state", "error", err)
		}
	}

	// The fallback stays dormant until the primary degrades.
	if s.cfg.Fallback != nil {
		_ = s.cfg.Fallback.Pause()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCancel(s.cfg.Primary.Run(ctx)) })
	g.Go(func() error { return s.forward(ctx, s.cfg.Primary) })

	if s.cfg.Fallback != nil {
		g.Go(func() error {
			err := s.cfg.Fallback.Run(ctx)
			if errors.Is(err, detection.ErrRecognizerUnavailable) {
				// Manual trigger remains; not fatal for the session.
				return nil
			}
			return ignoreCancel(err)
		})
		g.Go(func() error { return s.forward(ctx, s.cfg.Fallback) })
	}

	g.Go(func() error { return ignoreCancel(s.manual.Run(ctx)) })
	g.Go(func() error { return s.forward(ctx, s.manual) })

	g.Go(func() error { return s.dispatch(ctx) })

	return g.Wait()
}

// dispatch is the single goroutine allowed to mutate session state.
func (s *VoiceSession) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.stopRecoveryTimer()
			return ctx.Err()
		case fn := <-s.commands:
			fn()
		}
	}
}

// forward moves one source's events onto the dispatch loop, preserving the
// source's ordering.
func (s *VoiceSession) forward(ctx context.Context, src detection.WakeWordSource) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-src.Events():
			if !ok {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case s.commands <- func() { s.onSourceEvent(ev) }:
			}
		}
	}
}

func (s *VoiceSession) post(fn func()) {
	s.commands <- fn
}

func (s *VoiceSession) onSourceEvent(ev detection.Event) {
	switch ev.Type {
	case detection.EventWakeWord:
		s.onWake(ev)
	case detection.EventDegraded:
		logger.Warn("detection channel degraded, activating fallback recognizer",
			"failures", ev.Attempt)
		s.degraded = true
		if s.cfg.Fallback != nil && s.state == StateListening {
			_ = s.cfg.Fallback.Resume()
		}
	case detection.EventRestored:
		logger.Info("detection channel restored, fallback recognizer dormant")
		s.degraded = false
		if s.cfg.Fallback != nil {
			_ = s.cfg.Fallback.Pause()
		}
	case detection.EventError:
		logger.Warn("wake-word source error", "source", ev.Source, "message", ev.Message)
	default:
		logger.Debug("wake-word source event",
			"source", ev.Source, "type", string(ev.Type))
	}
}

// onWake accepts a wake-word event only while listening. Anything else is a
// stale or duplicate detection and is dropped.
func (s *VoiceSession) onWake(ev detection.Event) {
	if s.state != StateListening {
		logger.WakeWord(ev.Source, false)
		s.publish(events.EventWakeWordIgnored, &events.WakeWordData{
			Source:  ev.Source,
			Message: ev.Message,
		})
		return
	}

	logger.WakeWord(ev.Source, true)
	s.publish(events.EventWakeWordDetected, &events.WakeWordData{
		Source:  ev.Source,
		Message: ev.Message,
	})

	// Detection stops while we own the microphone; the backend mirrors the
	// pause on the channel source.
	s.pauseDetection()

	queryID := uuid.New().String()
	s.setPending(&PendingQuery{
		ID:        queryID,
		Source:    ev.Source,
		StartedAt: time.Now(),
	})
	s.transition(StateRecording, "wake_word")

	go s.startCapture(queryID)
}

// startCapture opens the microphone off the dispatch loop and posts the
// outcome back onto it, so a slow device open never stalls event dispatch.
func (s *VoiceSession) startCapture(queryID string) {
	recordingID, err := s.capture.Start(context.Background())
	s.post(func() {
		query := s.CurrentQuery()
		if s.state != StateRecording || query == nil || query.ID != queryID {
			// The session moved on while the device was opening; release
			// the acquisition so the next cycle can have the microphone.
			if err == nil {
				s.capture.Stop()
			}
			return
		}
		if err != nil {
			s.fail(err, "capture_start_failed")
			return
		}
		s.mu.Lock()
		s.pending.RecordingID = recordingID
		s.mu.Unlock()
	})
}

func (s *VoiceSession) onCaptureResult(r capture.Result) {
	if s.state != StateRecording {
		// A late result from a cycle the session already abandoned.
		logger.Debug("stale capture result dropped", "recording_id", r.RecordingID)
		return
	}

	if r.Reason == capture.StopError {
		s.fail(r.Err, "capture_failed")
		return
	}
	if len(r.Audio) == 0 {
		logger.Warn("recording produced no audio", "recording_id", r.RecordingID)
		s.finishQuery("empty_recording")
		return
	}

	query := s.CurrentQuery()
	s.transition(StateProcessing, "recording_stopped")
	s.publish(events.EventQueryStarted, &events.QueryData{QueryID: query.ID})

	go s.submit(query.ID, r.Audio)
}

// submit runs the pipeline call off the dispatch loop and posts the outcome
// back onto it.
func (s *VoiceSession) submit(queryID string, audio []byte) {
	start := time.Now()
	resp, err := s.cfg.Backend.ChatVoice(context.Background(), audio)
	latency := time.Since(start)
	s.post(func() { s.onQueryResult(queryID, resp, err, latency) })
}

func (s *VoiceSession) onQueryResult(queryID string, resp *pipeline.VoiceResponse, err error, latency time.Duration) {
	query := s.CurrentQuery()
	if s.state != StateProcessing || query == nil || query.ID != queryID {
		logger.Debug("stale query result dropped", "query_id", queryID)
		return
	}

	if err != nil {
		data := &events.QueryData{QueryID: queryID, Err: err.Error(), Latency: latency}
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			data.StatusCode = perr.StatusCode
		}
		s.publish(events.EventQueryFailed, data)
		s.fail(err, "query_failed")
		return
	}

	logger.Info("query completed",
		"query_id", queryID,
		"user_query", resp.UserQueryText,
		"latency", latency.String())
	s.publish(events.EventQueryCompleted, &events.QueryData{
		QueryID:      queryID,
		UserQuery:    resp.UserQueryText,
		ResponseText: resp.ResponseText,
		Latency:      latency,
	})

	s.mu.Lock()
	s.pending.QueryText = resp.UserQueryText
	s.mu.Unlock()

	if err := s.cfg.History.Append(context.Background(), s.cfg.SessionID, history.Exchange{
		QueryID:    queryID,
		QueryText:  resp.UserQueryText,
		AnswerText: resp.ResponseText,
		AudioURL:   resp.ResponseAudioURL,
		Source:     query.Source,
		At:         time.Now(),
	}); err != nil {
		logger.Warn("failed to record exchange", "query_id", queryID, "error", err)
	}

	if resp.ResponseAudioURL == "" {
		s.finishQuery("no_response_audio")
		return
	}

	s.transition(StatePlaying, "response_received")
	go s.play(queryID, resp.ResponseAudioURL)
}

// play renders the answer off the dispatch loop. Playback failure is not a
// session fault; the answer text already exists, so the session just returns
// to listening.
func (s *VoiceSession) play(queryID, audioURL string) {
	err := s.cfg.Player.Play(context.Background(), audioURL)
	s.post(func() {
		query := s.CurrentQuery()
		if s.state != StatePlaying || query == nil || query.ID != queryID {
			return
		}
		if err != nil {
			logger.Warn("response playback failed", "query_id", queryID, "error", err)
			s.finishQuery("playback_failed")
			return
		}
		s.finishQuery("playback_finished")
	})
}

// finishQuery retires the pending query and re-arms detection.
func (s *VoiceSession) finishQuery(cause string) {
	s.setPending(nil)
	s.transition(StateListening, cause)
	s.resumeDetection()
}

// fail enters the error state and schedules automatic recovery. The pending
// query is abandoned; detection stays paused until recovery.
func (s *VoiceSession) fail(err error, cause string) {
	logger.Error("session error", "cause", cause, "error", err)

	s.mu.Lock()
	s.lastErr = err
	s.pending = nil
	s.mu.Unlock()

	s.transition(StateError, cause)

	s.stopRecoveryTimer()
	s.recovery = time.AfterFunc(s.cfg.ErrorRecoveryDelay, func() {
		s.post(func() { s.recover("auto_recovery") })
	})
}

func (s *VoiceSession) recover(cause string) {
	if s.state != StateError {
		return
	}
	s.stopRecoveryTimer()
	s.transition(StateListening, cause)
	s.resumeDetection()
}

func (s *VoiceSession) stopRecoveryTimer() {
	if s.recovery != nil {
		s.recovery.Stop()
		s.recovery = nil
	}
}

func (s *VoiceSession) pauseDetection() {
	if err := s.cfg.Primary.Pause(); err != nil {
		logger.Warn("failed to pause detection channel", "error", err)
	}
	if s.cfg.Fallback != nil {
		_ = s.cfg.Fallback.Pause()
	}
	_ = s.manual.Pause()
}

func (s *VoiceSession) resumeDetection() {
	if err := s.cfg.Primary.Resume(); err != nil {
		logger.Warn("failed to resume detection channel", "error", err)
	}
	// The fallback wakes only while the primary is degraded.
	if s.cfg.Fallback != nil && s.degraded {
		_ = s.cfg.Fallback.Resume()
	}
	_ = s.manual.Resume()
}

func (s *VoiceSession) setPending(q *PendingQuery) {
	s.mu.Lock()
	s.pending = q
	s.mu.Unlock()
}

// transition changes the activation state. Dispatch loop only.
func (s *VoiceSession) transition(to State, cause string) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}

	logger.StateTransition(from.String(), to.String(), cause)
	s.publish(events.EventSessionStateChanged, &events.StateChangedData{
		From:  from.String(),
		To:    to.String(),
		Cause: cause,
	})
}

func (s *VoiceSession) publish(t events.EventType, data events.EventData) {
	s.cfg.Bus.Publish(&events.Event{
		Type:      t,
		SessionID: s.cfg.SessionID,
		Data:      data,
	})
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
