package capture

import (
	"encoding/binary"
	"math"
	"time"
)

// RMS analysis constants for 16-bit little-endian PCM.
const (
	pcmBytesPerSample = 2
	pcmMaxAmplitude   = 32768.0
	smoothingAlpha    = 0.3
)

// SilenceConfig enables hands-free recording stop: once the speaker has been
// heard and then falls silent for Hold, the cycle ends on its own instead of
// waiting for an explicit stop or the duration cap.
type SilenceConfig struct {
	// MinVolume is the smoothed RMS floor below which audio counts as
	// silence. Defaults to 0.01.
	MinVolume float64

	// MinVoice is how much voiced audio must be heard before silence can
	// end the cycle, so a recording never stops before the user starts
	// talking. Defaults to 300ms.
	MinVoice time.Duration

	// Hold is the silence duration that ends the recording.
	// Defaults to 1500ms.
	Hold time.Duration
}

func (c *SilenceConfig) defaults() {
	if c.MinVolume == 0 {
		c.MinVolume = 0.01
	}
	if c.MinVoice == 0 {
		c.MinVoice = 300 * time.Millisecond
	}
	if c.Hold == 0 {
		c.Hold = 1500 * time.Millisecond
	}
}

// silenceDetector tracks voice activity over a recording cycle using smoothed
// RMS volume.
type silenceDetector struct {
	cfg SilenceConfig

	smoothedRMS float64
	voicedFor   time.Duration
	lastVoice   time.Time
	lastChunk   time.Time
}

func newSilenceDetector(cfg SilenceConfig) *silenceDetector {
	cfg.defaults()
	return &silenceDetector{cfg: cfg}
}

// observe processes one chunk and reports whether the recording should stop.
func (d *silenceDetector) observe(chunk []byte, now time.Time) bool {
	rms := chunkRMS(chunk)
	d.smoothedRMS = smoothingAlpha*rms + (1-smoothingAlpha)*d.smoothedRMS

	elapsed := time.Duration(0)
	if !d.lastChunk.IsZero() {
		elapsed = now.Sub(d.lastChunk)
	}
	d.lastChunk = now

	if d.smoothedRMS > d.cfg.MinVolume {
		d.voicedFor += elapsed
		d.lastVoice = now
		return false
	}

	if d.voicedFor < d.cfg.MinVoice || d.lastVoice.IsZero() {
		return false
	}
	return now.Sub(d.lastVoice) >= d.cfg.Hold
}

// chunkRMS computes the root mean square of 16-bit little-endian PCM samples.
func chunkRMS(audio []byte) float64 {
	numSamples := len(audio) / pcmBytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(audio[i*pcmBytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(numSamples))
}
