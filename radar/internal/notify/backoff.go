package notify

import (
	"math/rand"
	"time"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
)

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
	max     time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial, max: backoffMax}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}
