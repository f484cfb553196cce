// Package notify holds the subscription plumbing shared by notifier backends.
package notify

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// DefaultBuffer is the event buffer of a stream.
const DefaultBuffer = 64

// Stream implements domain.Subscription on top of a producer.
//
// Producers call Send for each event and Finish when they stop; Finish is
// idempotent and safe to race with Send. Close cancels the producer and waits
// for Finish.
type Stream struct {
	events chan domain.Event
	done   chan struct{}
	quit   chan struct{}
	cancel context.CancelFunc

	once   sync.Once
	mu     sync.RWMutex
	closed bool
	err    error
}

// NewStream returns a stream whose Close calls cancel.
func NewStream(buffer int, cancel context.CancelFunc) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		events: make(chan domain.Event, buffer),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		cancel: cancel,
	}
}

// Send delivers ev unless ctx ends or the stream finishes first.
// It reports whether ev was delivered.
func (s *Stream) Send(ctx context.Context, ev domain.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-s.quit:
		return false
	}
}

// Finish ends the stream. err is nil for a requested shutdown and non-nil when
// the underlying connection was lost.
func (s *Stream) Finish(err error) {
	s.once.Do(func() {
		close(s.quit) // unblocks pending Sends so the lock below is obtainable
		s.mu.Lock()
		s.closed = true
		s.err = err
		close(s.events)
		close(s.done)
		s.mu.Unlock()
	})
}

func (s *Stream) Events() <-chan domain.Event { return s.events }

func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Close stops the producer and blocks until it has finished.
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	return nil
}
