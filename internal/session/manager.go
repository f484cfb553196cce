package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metrics"
)

// Manager keeps at most one session per owner.
type Manager struct {
	gateway  domain.Gateway
	notifier domain.Notifier
	opts     Options
	logger   logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// ErrClosed is returned by Acquire after CloseAll.
var ErrClosed = errors.New("session manager closed")

// NewManager creates a manager opening sessions against gateway and notifier.
func NewManager(gateway domain.Gateway, notifier domain.Notifier, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		gateway:  gateway,
		notifier: notifier,
		opts:     opts,
		logger:   opts.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns owner's session, opening it if needed.
func (m *Manager) Acquire(ctx context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[owner]; ok {
		m.mu.Unlock()
		s.Touch()
		return s, nil
	}
	m.mu.Unlock()

	// Subscribe outside the lock; a concurrent Acquire for the same owner may win.
	s, err := Open(ctx, owner, m.gateway, m.notifier, m.opts)
	if err != nil {
		return nil, err
	}
	s.now = m.now
	s.Touch()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, ErrClosed
	}
	if existing, ok := m.sessions[owner]; ok {
		m.mu.Unlock()
		s.Close()
		existing.Touch()
		return existing, nil
	}
	m.sessions[owner] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.logger.Info("session opened", logger.String("owner", owner))
	return s, nil
}

// Renew replaces owner's session with a fresh one. Called on
// re-authentication, which invalidates the previous subscription. The old
// session stays in place if the new one cannot be opened.
func (m *Manager) Renew(ctx context.Context, owner string) (*Session, error) {
	s, err := Open(ctx, owner, m.gateway, m.notifier, m.opts)
	if err != nil {
		return nil, err
	}
	s.now = m.now
	s.Touch()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, ErrClosed
	}
	old, replaced := m.sessions[owner]
	m.sessions[owner] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if replaced {
		old.Close()
	}
	m.logger.Info("session renewed",
		logger.String("owner", owner),
		logger.Bool("replaced", replaced))
	return s, nil
}

// Get returns owner's session without opening one.
func (m *Manager) Get(owner string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[owner]
	return s, ok
}

// End closes owner's session. It reports whether one was open.
func (m *Manager) End(owner string) bool {
	m.mu.Lock()
	s, ok := m.sessions[owner]
	if ok {
		delete(m.sessions, owner)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Info("session ended", logger.String("owner", owner))
	}
	return ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stats returns the number of open sessions and how many of them currently
// hold a live subscription.
func (m *Manager) Stats() (active, connected int) {
	for _, s := range m.list() {
		active++
		if s.Connected() {
			connected++
		}
	}
	return active, connected
}

func (m *Manager) list() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// ResyncAll reloads every open session and returns how many succeeded.
func (m *Manager) ResyncAll(ctx context.Context, reason string) (int, error) {
	var (
		ok   int
		errs []error
	)
	for _, s := range m.list() {
		metrics.Resyncs.WithLabelValues(reason).Inc()
		if err := s.Store().Load(ctx); err != nil {
			errs = append(errs, fmt.Errorf("owner %s: %w", s.Owner(), err))
			continue
		}
		ok++
	}
	return ok, errors.Join(errs...)
}

// Sweep closes sessions idle for longer than idle. Sessions with an open
// change stream are never idle.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	var stale []string
	for _, s := range m.list() {
		if s.Store().WatcherCount() > 0 {
			continue
		}
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s.Owner())
		}
	}

	n := 0
	for _, owner := range stale {
		if m.End(owner) {
			n++
		}
	}
	return n
}

// CloseAll closes every session and refuses new ones.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	metrics.ActiveSessions.Set(0)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
