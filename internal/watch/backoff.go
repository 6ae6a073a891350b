package watch

import (
	"math/rand"
	"time"
)

// Backoff yields exponentially growing reconnect delays with jitter,
// capped at Max. It errs toward quick recovery since polling already
// bounds staleness.
type Backoff struct {
	Min     time.Duration
	Max     time.Duration
	attempt int
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	if b.Min <= 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	d := b.Min << b.attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	} else {
		b.attempt++
	}
	// Up to 25% jitter so reconnecting viewers don't stampede.
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// Reset clears the attempt counter after a successful connection.
func (b *Backoff) Reset() { b.attempt = 0 }
