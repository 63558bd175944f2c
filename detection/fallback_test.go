package detection

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRecognizer replays prepared transcript runs.
type scriptedRecognizer struct {
	runs    [][]string
	calls   atomic.Int32
	blockCh chan struct{} // when non-nil, runs past the script block here
}

func (r *scriptedRecognizer) Name() string { return "scripted" }

func (r *scriptedRecognizer) Listen(ctx context.Context) (<-chan string, error) {
	n := int(r.calls.Add(1)) - 1
	out := make(chan string)
	go func() {
		defer close(out)
		var transcripts []string
		if n < len(r.runs) {
			transcripts = r.runs[n]
		} else if r.blockCh != nil {
			select {
			case <-ctx.Done():
			case <-r.blockCh:
			}
			return
		}
		for _, text := range transcripts {
			select {
			case out <- text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// unavailableRecognizer models a platform with no local recognition at all.
type unavailableRecognizer struct{}

func (unavailableRecognizer) Name() string { return "unavailable" }

func (unavailableRecognizer) Listen(context.Context) (<-chan string, error) {
	return nil, ErrRecognizerUnavailable
}

func TestMatchesWakePhrase(t *testing.T) {
	cases := []struct {
		transcript string
		want       bool
	}{
		{"hey friday", true},
		{"Hey Friday!", true},
		{"um, HEY FRIDAY, what's the weather", true},
		{"heyfriday", true},
		{"hey... fri-day", true}, // no-space variant after normalization
		{"hey thursday", false},
		{"friday", false},
		{"", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchesWakePhrase(tc.transcript, DefaultWakePhrase),
			"transcript %q", tc.transcript)
	}
}

func TestFallback_WakeWordMatchPausesItself(t *testing.T) {
	rec := &scriptedRecognizer{
		runs:    [][]string{{"some chatter", "hey friday turn on"}},
		blockCh: make(chan struct{}),
	}
	f := NewFallback(rec, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	select {
	case ev := <-f.Events():
		assert.Equal(t, EventWakeWord, ev.Type)
		assert.Equal(t, SourceFallback, ev.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no wake event from fallback")
	}

	// After a match the fallback stops producing until resumed: no restart,
	// no second event.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, f.isPaused())
	select {
	case ev := <-f.Events():
		t.Fatalf("unexpected event while paused: %+v", ev)
	default:
	}
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestFallback_RestartsOnBenignTermination(t *testing.T) {
	rec := &scriptedRecognizer{
		runs: [][]string{
			{"nothing relevant"}, // run ends benignly
			{"hey friday"},
		},
		blockCh: make(chan struct{}),
	}
	f := NewFallback(rec, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	select {
	case ev := <-f.Events():
		assert.Equal(t, EventWakeWord, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("fallback did not restart after benign termination")
	}
	assert.GreaterOrEqual(t, rec.calls.Load(), int32(2))
}

func TestFallback_NoRestartWhilePaused(t *testing.T) {
	rec := &scriptedRecognizer{
		runs:    [][]string{{"hey friday"}},
		blockCh: make(chan struct{}),
	}
	f := NewFallback(rec, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	<-f.Events() // wake event; fallback paused itself
	calls := rec.calls.Load()

	// Still paused: recognition must not restart.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, rec.calls.Load())

	// Resume restarts recognition.
	require.NoError(t, f.Resume())
	assert.Eventually(t, func() bool {
		return rec.calls.Load() > calls
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFallback_UnavailableRecognizer(t *testing.T) {
	f := NewFallback(unavailableRecognizer{}, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case ev := <-f.Events():
		assert.Equal(t, EventError, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no error event for unavailable recognizer")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRecognizerUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return for unavailable recognizer")
	}
}

func TestManualTrigger(t *testing.T) {
	m := NewManualTrigger()

	m.Trigger()
	select {
	case ev := <-m.Events():
		assert.Equal(t, EventWakeWord, ev.Type)
		assert.Equal(t, SourceManual, ev.Source)
	default:
		t.Fatal("trigger did not emit a wake event")
	}

	// Paused triggers are dropped, mirroring stale-event discipline.
	require.NoError(t, m.Pause())
	m.Trigger()
	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected event while paused: %+v", ev)
	default:
	}

	require.NoError(t, m.Resume())
	m.Trigger()
	assert.Len(t, m.Events(), 1)
}
