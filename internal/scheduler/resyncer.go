// Package scheduler runs the periodic background jobs of the server.
package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// SessionResyncer reloads every open session.
type SessionResyncer interface {
	ResyncAll(ctx context.Context, reason string) (int, error)
}

// Resyncer periodically reloads every open session from the gateway, and on
// demand through manualTrigger. A full reload repairs any divergence that
// event delivery missed.
type Resyncer struct {
	sessions      SessionResyncer
	logger        logger.Logger
	interval      time.Duration
	timeout       time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewResyncer creates a resyncer. An interval of zero disables the periodic
// run; manual triggers still work.
func NewResyncer(
	sessions SessionResyncer,
	log logger.Logger,
	interval time.Duration,
	timeout time.Duration,
	manualTrigger chan struct{},
) *Resyncer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Resyncer{
		sessions:      sessions,
		logger:        log,
		interval:      interval,
		timeout:       timeout,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start begins the periodic resync process.
func (r *Resyncer) Start(ctx context.Context) error {
	var tick <-chan time.Time
	var ticker *time.Ticker
	if r.interval > 0 {
		ticker = time.NewTicker(r.interval)
		tick = ticker.C
	}

	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-tick:
				r.Resync(ctx, "periodic")
			case <-r.manualTrigger:
				r.logger.Info("manual resync triggered")
				r.Resync(ctx, "manual")
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the resyncer.
func (r *Resyncer) Stop() {
	close(r.stopCh)
}

// Resync reloads every session once and returns how many succeeded.
func (r *Resyncer) Resync(ctx context.Context, reason string) int {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	n, err := r.sessions.ResyncAll(ctx, reason)
	if err != nil {
		r.logger.Warn("some sessions failed to resync",
			logger.String("reason", reason),
			logger.Int("resynced", n),
			logger.Error(err))
		return n
	}
	r.logger.Info("sessions resynced",
		logger.String("reason", reason),
		logger.Int("resynced", n),
		logger.Duration("took", time.Since(start)))
	return n
}
