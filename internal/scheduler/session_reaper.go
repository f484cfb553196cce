package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

const (
	// DefaultIdleTimeout is how long a session may go unused before it is closed.
	DefaultIdleTimeout = 30 * time.Minute
)

// SessionSweeper closes idle sessions.
type SessionSweeper interface {
	Sweep(idle time.Duration) int
}

// SessionReaper closes sessions nobody used for a while, releasing their
// notifier subscriptions.
type SessionReaper struct {
	sessions SessionSweeper
	logger   logger.Logger
	interval time.Duration
	idle     time.Duration
	stopCh   chan struct{}
}

// NewSessionReaper creates a reaper.
func NewSessionReaper(
	sessions SessionSweeper,
	log logger.Logger,
	interval time.Duration,
	idle time.Duration,
) *SessionReaper {
	if idle == 0 {
		idle = DefaultIdleTimeout
	}

	return &SessionReaper{
		sessions: sessions,
		logger:   log,
		interval: interval,
		idle:     idle,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reaping process.
func (sr *SessionReaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sr.Reap()
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reaper.
func (sr *SessionReaper) Stop() {
	close(sr.stopCh)
}

// Reap closes idle sessions and returns how many were closed.
func (sr *SessionReaper) Reap() int {
	n := sr.sessions.Sweep(sr.idle)
	if n > 0 {
		sr.logger.Info("idle sessions closed",
			logger.Int("closed", n),
			logger.Duration("idle", sr.idle))
	} else {
		sr.logger.Debug("no idle sessions")
	}
	return n
}
