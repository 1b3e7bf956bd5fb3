// Package breaker stops the loop after too many consecutive failed iterations.
package breaker

import "fmt"

// Breaker counts consecutive failures. It is not safe for concurrent use, the
// loop runs a single iteration at a time.
type Breaker struct {
	max   int
	count int
}

// New returns a breaker that trips after maxFailures consecutive failures, starting
// from a previously persisted count.
func New(maxFailures, count int) (*Breaker, error) {
	if maxFailures < 1 {
		return nil, fmt.Errorf("max consecutive failures must be >= 1")
	}
	if count < 0 {
		count = 0
	}
	return &Breaker{max: maxFailures, count: count}, nil
}

// RecordSuccess resets the failure count.
func (b *Breaker) RecordSuccess() { b.count = 0 }

// RecordFailure increments the failure count and returns true when the breaker
// tripped.
func (b *Breaker) RecordFailure() bool {
	b.count++
	return b.Tripped()
}

// Tripped returns true when the failure limit was reached.
func (b *Breaker) Tripped() bool { return b.count >= b.max }

// Count returns the current consecutive failure count.
func (b *Breaker) Count() int { return b.count }

// Reset resets the failure count, used on explicit resumes.
func (b *Breaker) Reset() { b.count = 0 }
