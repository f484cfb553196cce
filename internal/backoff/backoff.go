// Package backoff implements the capped exponential wait used between
// connection attempts.
package backoff

import (
	"context"
	"time"
)

// Backoff doubles its wait after every attempt, up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// New returns a backoff starting at initial and capped at max.
func New(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Max: max, next: initial}
}

// Next returns the wait before the next attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Initial
	}
	wait := b.next
	b.next *= 2
	if b.next > b.Max {
		b.next = b.Max
	}
	return wait
}

// Reset restarts the schedule at Initial.
func (b *Backoff) Reset() {
	b.next = b.Initial
}

// Sleep waits d or until ctx ends. It returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TimeLeft returns the time remaining before ctx's deadline, or 0 without one.
func TimeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
