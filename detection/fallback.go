package detection

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/vignanchoutpally/voice-rag/logger"
)

// DefaultWakePhrase is the canonical trigger phrase.
const DefaultWakePhrase = "hey friday"

// ErrRecognizerUnavailable is returned by Recognizer implementations when
// local recognition cannot run at all (no engine, no device). The session
// then falls through to the manual trigger.
var ErrRecognizerUnavailable = errors.New("local recognition unavailable")

// Recognizer produces low-fidelity local transcripts of ambient speech.
// It abstracts whatever on-device recognition is available.
type Recognizer interface {
	// Name identifies the recognition engine.
	Name() string

	// Listen starts one recognition run and streams transcript fragments.
	// The channel closing without error is benign termination; the fallback
	// restarts recognition if it is still supposed to be listening.
	// Returns ErrRecognizerUnavailable when recognition cannot run.
	Listen(ctx context.Context) (<-chan string, error)
}

var nonLetters = regexp.MustCompile(`[^a-z]`)

// normalizeTranscript lowercases and strips everything but letters, matching
// the detection service's own normalization.
func normalizeTranscript(text string) string {
	return nonLetters.ReplaceAllString(strings.ToLower(text), "")
}

// MatchesWakePhrase reports whether a transcript contains the wake phrase,
// case-insensitively, or its no-space variant after normalization.
func MatchesWakePhrase(transcript, phrase string) bool {
	lower := strings.ToLower(transcript)
	if strings.Contains(lower, strings.ToLower(phrase)) {
		return true
	}
	return strings.Contains(normalizeTranscript(transcript), normalizeTranscript(phrase))
}

// Fallback is the local, lower-fidelity wake-word spotter used when the
// detection channel has escalated failure. It implements WakeWordSource and
// emits the same wake event shape as the channel.
type Fallback struct {
	recognizer Recognizer
	phrase     string
	events     chan Event

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewFallback creates a fallback recognizer for the given wake phrase.
// An empty phrase uses DefaultWakePhrase.
func NewFallback(recognizer Recognizer, phrase string) *Fallback {
	if phrase == "" {
		phrase = DefaultWakePhrase
	}
	return &Fallback{
		recognizer: recognizer,
		phrase:     phrase,
		events:     make(chan Event, eventBufferSize),
		resume:     make(chan struct{}, 1),
	}
}

// Name implements WakeWordSource.
func (f *Fallback) Name() string { return SourceFallback }

// Events implements WakeWordSource.
func (f *Fallback) Events() <-chan Event { return f.events }

// Run drives local recognition until ctx is canceled. Recognition restarts on
// benign termination only while not paused; a match pauses the fallback until
// the session resumes it.
func (f *Fallback) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if f.isPaused() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.resume:
			}
			continue
		}

		transcripts, err := f.recognizer.Listen(ctx)
		if err != nil {
			if errors.Is(err, ErrRecognizerUnavailable) {
				logger.Warn("local recognition unavailable; manual trigger only")
				emit(ctx, f.events, Event{
					Type:    EventError,
					Source:  SourceFallback,
					Message: "local recognition unavailable",
				})
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("local recognition failed, restarting", "error", err)
			continue
		}

		f.consume(ctx, transcripts)
	}
}

// consume matches transcripts until the run terminates or a wake word fires.
func (f *Fallback) consume(ctx context.Context, transcripts <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-transcripts:
			if !ok {
				// Benign termination; the outer loop decides on restart.
				return
			}
			if f.isPaused() {
				continue
			}
			if !MatchesWakePhrase(text, f.phrase) {
				logger.Debug("fallback heard non-wake phrase", "transcript", text)
				continue
			}

			logger.Info("wake word detected by fallback recognizer", "transcript", text)
			// Stop producing until the session resumes listening, so an
			// overlapping recognition run cannot double-activate.
			f.setPaused(true)
			emit(ctx, f.events, Event{Type: EventWakeWord, Source: SourceFallback, Message: text})
			return
		}
	}
}

// Pause implements WakeWordSource. Recognition does not restart while paused.
func (f *Fallback) Pause() error {
	f.setPaused(true)
	return nil
}

// Resume implements WakeWordSource.
func (f *Fallback) Resume() error {
	f.setPaused(false)
	select {
	case f.resume <- struct{}{}:
	default:
	}
	return nil
}

func (f *Fallback) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *Fallback) setPaused(paused bool) {
	f.mu.Lock()
	f.paused = paused
	f.mu.Unlock()
}

// ManualTrigger is the last-resort wake-word source: a user-visible control
// that simulates a detection. It implements WakeWordSource.
type ManualTrigger struct {
	events chan Event

	mu     sync.Mutex
	paused bool
}

// NewManualTrigger creates the manual wake-word source.
func NewManualTrigger() *ManualTrigger {
	return &ManualTrigger{events: make(chan Event, 1)}
}

// Name implements WakeWordSource.
func (m *ManualTrigger) Name() string { return SourceManual }

// Events implements WakeWordSource.
func (m *ManualTrigger) Events() <-chan Event { return m.events }

// Run implements WakeWordSource. The manual trigger has no background work.
func (m *ManualTrigger) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Pause implements WakeWordSource.
func (m *ManualTrigger) Pause() error {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	return nil
}

// Resume implements WakeWordSource.
func (m *ManualTrigger) Resume() error {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	return nil
}

// Trigger simulates a wake-word detection. Triggers while paused are dropped,
// mirroring the session's own stale-event discipline.
func (m *ManualTrigger) Trigger() {
	m.mu.Lock()
	paused := m.paused
	m.mu.Unlock()
	if paused {
		return
	}

	select {
	case m.events <- Event{Type: EventWakeWord, Source: SourceManual}:
	default:
	}
}
