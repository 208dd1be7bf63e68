// Package backoff computes reconnect delays: exponential growth capped at a
// maximum, with full jitter, and a reset once a connection proves healthy.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Backoff tracks consecutive failures of one connection. Not safe for
// concurrent use; each shard owns its own.
type Backoff struct {
	Base       time.Duration // Delay ceiling for the first retry
	Max        time.Duration // Upper bound for any delay
	ResetAfter time.Duration // Healthy uptime after which attempts reset

	attempts int
	random   func(n int64) int64
}

// New creates a Backoff.
func New(base, max, resetAfter time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		Base:       base,
		Max:        max,
		ResetAfter: resetAfter,
		random:     rand.Int64N,
	}
}

// Ceiling returns min(Max, Base*2^attempt) without jitter.
func (b *Backoff) Ceiling(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Next returns the delay before the next attempt and counts the failure.
func (b *Backoff) Next() time.Duration {
	ceiling := b.Ceiling(b.attempts)
	b.attempts++
	return time.Duration(b.random(int64(ceiling) + 1))
}

// Observe reports how long the last connection stayed ready. Uptime at or
// beyond ResetAfter clears the failure count.
func (b *Backoff) Observe(readyFor time.Duration) {
	if b.ResetAfter > 0 && readyFor >= b.ResetAfter {
		b.attempts = 0
	}
}

// Reset clears the failure count.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current failure count.
func (b *Backoff) Attempts() int {
	return b.attempts
}
