package wsconn

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Backoff defaults match the detection-channel reconnection policy.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// Jitter bounds: delays are scaled by a uniform factor in [0.75, 1.25]
// sampled per attempt.
const (
	jitterFactor = 0.25

	// jitterPrecision is the granularity for crypto/rand jitter generation.
	jitterPrecision     = 1000
	jitterHalfPrecision = jitterPrecision / 2
)

// Backoff computes exponential reconnect delays with jitter:
//
//	delay = min(Base * 2^attempt * jitter, Max)
//
// where jitter is uniform in [0.75, 1.25]. The zero value uses the defaults.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the backoff delay for the given attempt number (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}

	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= float64(maxDelay) {
			delay = float64(maxDelay)
			break
		}
	}

	// jitter in [1-jitterFactor, 1+jitterFactor]
	n, _ := rand.Int(rand.Reader, big.NewInt(jitterPrecision))
	jitter := 1 + jitterFactor*(float64(n.Int64())/jitterHalfPrecision-1)

	result := delay * jitter
	if result > float64(maxDelay) {
		result = float64(maxDelay)
	}
	if result < 0 {
		result = float64(base)
	}
	return time.Duration(result)
}
