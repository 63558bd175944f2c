// Package playback turns a synthesized-audio URL into audible output.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vignanchoutpally/voice-rag/events"
	"github.com/vignanchoutpally/voice-rag/logger"
)

// ErrNoAudio is returned when the backend response carried no audio URL.
var ErrNoAudio = errors.New("no response audio to play")

// Sink renders decoded audio on the platform's output device. Play blocks
// until the audio finishes or ctx is canceled.
type Sink interface {
	Name() string
	Play(ctx context.Context, audio []byte) error
}

// Fetcher downloads response audio by URL. *pipeline.Client satisfies it.
type Fetcher interface {
	FetchAudio(ctx context.Context, audioURL string) ([]byte, error)
}

// Player fetches response audio and drives it through a Sink.
type Player struct {
	fetcher Fetcher
	sink    Sink
	bus     *events.Bus
}

// Option configures the player.
type Option func(*Player)

// WithBus attaches an observability bus.
func WithBus(bus *events.Bus) Option {
	return func(p *Player) {
		p.bus = bus
	}
}

// New creates a player.
func New(fetcher Fetcher, sink Sink, opts ...Option) *Player {
	p := &Player{fetcher: fetcher, sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play downloads and renders one response. It blocks for the duration of
// playback; the caller decides what state follows, on success and on failure
// alike.
func (p *Player) Play(ctx context.Context, audioURL string) error {
	if audioURL == "" {
		return ErrNoAudio
	}

	audio, err := p.fetcher.FetchAudio(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("failed to fetch response audio: %w", err)
	}

	start := time.Now()
	p.publish(events.EventPlaybackStarted, &events.PlaybackData{AudioURL: audioURL, Bytes: len(audio)})
	logger.Info("playback started", "audio_url", audioURL, "bytes", len(audio), "sink", p.sink.Name())

	err = p.sink.Play(ctx, audio)
	p.publish(events.EventPlaybackFinished, &events.PlaybackData{
		AudioURL: audioURL,
		Bytes:    len(audio),
		Duration: time.Since(start),
		Err:      errString(err),
	})
	if err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}

	logger.Info("playback finished", "audio_url", audioURL, "duration", time.Since(start).String())
	return nil
}

func (p *Player) publish(t events.EventType, data events.EventData) {
	if p.bus != nil {
		p.bus.Publish(&events.Event{Type: t, Data: data})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
