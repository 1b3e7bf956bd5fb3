package network

import "time"

// Backoff returns capped exponential wait durations.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// NewBackoff returns a backoff that starts at initial and doubles up to max.
func NewBackoff(initial, maxWait time.Duration) *Backoff {
	if maxWait < initial {
		maxWait = initial
	}
	return &Backoff{initial: initial, max: maxWait, next: initial}
}

// Next returns the current wait and advances the backoff.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max || b.next <= 0 {
		b.next = b.max
	}
	return d
}

// Reset restarts the backoff from the initial wait.
func (b *Backoff) Reset() { b.next = b.initial }
