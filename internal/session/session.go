// Package session binds a reconciling store to a live notifier subscription
// for one owner and keeps the pair alive across connection losses.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/backoff"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metrics"
	"github.com/MrSnakeDoc/shelf/internal/reconcile"
)

const (
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 30 * time.Second
	DefaultLoadTimeout  = 10 * time.Second
)

// Options configures sessions.
type Options struct {
	Logger       logger.Logger
	RetryInitial time.Duration // first wait before resubscribing after a drop
	RetryMax     time.Duration // cap on the wait between resubscribe attempts
	LoadTimeout  time.Duration // bound on the reload that follows a resubscribe
	StoreOptions []reconcile.Option
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = DefaultRetryInitial
	}
	if o.RetryMax <= 0 {
		o.RetryMax = DefaultRetryMax
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = DefaultLoadTimeout
	}
	return o
}

// Session owns one store and its subscription. Remote events are applied on
// a dedicated goroutine until Close.
type Session struct {
	owner    string
	store    *reconcile.Store
	notifier domain.Notifier
	opts     Options
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	connected  atomic.Bool
	lastActive atomic.Int64
	now        func() time.Time
}

// Open subscribes to owner's changes and starts applying them to a new store.
// The store is not loaded; call EnsureLoaded or Store().Load.
//
// A failed subscribe does not fail Open: the session starts disconnected and
// keeps resubscribing in the background, reloading once it is connected.
// Gateway operations work meanwhile. Only a cancelled ctx aborts Open.
func Open(ctx context.Context, owner string, gateway domain.Gateway, notifier domain.Notifier, opts Options) (*Session, error) {
	if owner == "" {
		return nil, domain.ErrNotAuthenticated
	}
	opts = opts.withDefaults()
	log := opts.Logger

	storeOpts := append([]reconcile.Option{reconcile.WithLogger(log)}, opts.StoreOptions...)
	sub, err := notifier.Subscribe(ctx, owner)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to subscribe to changes: %w", err)
		}
		log.Warn("change subscription unavailable, retrying in background",
			logger.String("owner", owner),
			logger.Error(err))
		sub = nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		owner:    owner,
		store:    reconcile.New(owner, gateway, storeOpts...),
		notifier: notifier,
		opts:     opts,
		logger:   log,
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	s.connected.Store(sub != nil)
	s.Touch()

	go s.run(sub)
	return s, nil
}

// Owner returns the identity the session is scoped to.
func (s *Session) Owner() string { return s.owner }

// Store returns the session's reconciling store.
func (s *Session) Store() *reconcile.Store { return s.store }

// Connected reports whether a subscription is currently established.
func (s *Session) Connected() bool { return s.connected.Load() }

// Touch records activity for idle reaping.
func (s *Session) Touch() { s.lastActive.Store(s.now().UnixNano()) }

// LastActive returns the time of the last Touch.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// EnsureLoaded loads the store unless a load already succeeded.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	if s.store.Loaded() {
		return nil
	}
	return s.store.Load(ctx)
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears down the subscription. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Session) run(sub domain.Subscription) {
	defer close(s.done)
	defer s.connected.Store(false)

	// sub is nil when the initial subscribe failed.
	for {
		if sub != nil {
			s.consume(sub)
			_ = sub.Close()
			if s.ctx.Err() != nil {
				return
			}

			s.connected.Store(false)
			s.logger.Warn("change subscription ended, resubscribing",
				logger.String("owner", s.owner),
				logger.Error(sub.Err()))
		}

		sub = s.resubscribe()
		if sub == nil {
			return
		}
		s.connected.Store(true)
		metrics.Resubscriptions.Inc()

		// Events published while disconnected are lost; reload.
		metrics.Resyncs.WithLabelValues("resubscribe").Inc()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.LoadTimeout)
		if err := s.store.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("reload after resubscribe failed",
				logger.String("owner", s.owner),
				logger.Error(err))
		}
		cancel()
	}
}

func (s *Session) consume(sub domain.Subscription) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.store.ApplyRemoteEvent(ev); err != nil {
				s.logger.Warn("remote event rejected",
					logger.String("owner", s.owner),
					logger.String("kind", string(ev.Kind())),
					logger.Error(err))
			}
		}
	}
}

// resubscribe retries until it succeeds or the session closes (nil).
func (s *Session) resubscribe() domain.Subscription {
	wait := backoff.New(s.opts.RetryInitial, s.opts.RetryMax)
	for attempt := 1; ; attempt++ {
		if err := backoff.Sleep(s.ctx, wait.Next()); err != nil {
			return nil
		}
		sub, err := s.notifier.Subscribe(s.ctx, s.owner)
		if err == nil {
			s.logger.Info("change subscription restored",
				logger.String("owner", s.owner),
				logger.Int("attempts", attempt))
			return sub
		}
		if s.ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("resubscribe failed",
			logger.String("owner", s.owner),
			logger.Int("attempt", attempt),
			logger.Error(err))
	}
}
