// Package reconcile keeps one user's bookmark collection convergent while it
// is mutated by local creates, optimistic local deletes and remote change
// notifications that arrive in any order.
//
// Every merge is keyed by record id, never by content, so each input is
// idempotent and interleavings commute. Gateway failures are never retried
// silently: a failed optimistic delete triggers a full reload instead of a
// fine-grained undo.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metrics"
)

// DefaultResyncTimeout bounds the corrective reload that follows a failed delete.
const DefaultResyncTimeout = 10 * time.Second

// Snapshot is a copy of the store state.
type Snapshot struct {
	Owner   string            `json:"owner"`
	Items   []domain.Bookmark `json:"items"`
	Loaded  bool              `json:"loaded"`
	Version uint64            `json:"version"`
}

type mutationKind int

const (
	mutInsert mutationKind = iota
	mutUpdate
)

// mutation is a record-carrying change applied while a load was in flight.
type mutation struct {
	seq    uint64
	kind   mutationKind
	record domain.Bookmark
}

type pendingCreate struct {
	canceled bool
}

// Store is the reconciling bookmark collection of one owner.
type Store struct {
	owner         string
	gateway       domain.Gateway
	logger        logger.Logger
	newToken      func() string
	resyncTimeout time.Duration

	mu         sync.Mutex
	items      []domain.Bookmark
	loaded     bool
	version    uint64
	seq        uint64
	pending    map[string]*pendingCreate
	tombstones map[string]struct{}

	loading       int
	loadTicket    uint64
	appliedTicket uint64
	journal       []mutation

	watchers    map[int]chan struct{}
	nextWatcher int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for reconciliation diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTokenGenerator overrides how correlation tokens are generated.
func WithTokenGenerator(fn func() string) Option {
	return func(s *Store) { s.newToken = fn }
}

// WithResyncTimeout bounds the reload that follows a failed optimistic mutation.
func WithResyncTimeout(d time.Duration) Option {
	return func(s *Store) { s.resyncTimeout = d }
}

// New creates an empty, not yet loaded store for owner.
func New(owner string, gateway domain.Gateway, opts ...Option) *Store {
	s := &Store{
		owner:         owner,
		gateway:       gateway,
		logger:        logger.Nop(),
		newToken:      uuid.NewString,
		resyncTimeout: DefaultResyncTimeout,
		pending:       make(map[string]*pendingCreate),
		tombstones:    make(map[string]struct{}),
		watchers:      make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner returns the owner the store is scoped to.
func (s *Store) Owner() string { return s.owner }

// Load replaces the collection with the gateway's authoritative list.
//
// On failure the previous state is kept and a *domain.PersistenceError is
// returned; nothing is retried. Records confirmed or edited while the load
// was in flight are replayed on top of the result, and a load that finishes
// after a more recent one is discarded.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadTicket++
	ticket := s.loadTicket
	start := s.seq
	s.loading++
	s.mu.Unlock()

	list, err := s.gateway.List(ctx, s.owner)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading--
	defer func() {
		if s.loading == 0 {
			s.journal = nil
		}
	}()

	if err != nil {
		metrics.GatewayErrors.WithLabelValues("list").Inc()
		return domain.Persistence("list", err)
	}
	if ticket < s.appliedTicket {
		s.logger.Debug("discarding superseded load",
			logger.String("owner", s.owner))
		return nil
	}
	s.appliedTicket = ticket

	s.items = s.sanitizeLocked(list)
	s.loaded = true
	for _, m := range s.journal {
		if m.seq <= start {
			continue
		}
		switch m.kind {
		case mutInsert:
			s.insertLocked(m.record, false)
		case mutUpdate:
			s.updateLocked(m.record, false)
		}
	}
	s.changedLocked()

	s.logger.Debug("bookmarks loaded",
		logger.String("owner", s.owner),
		logger.Int("count", len(s.items)))
	return nil
}

// sanitizeLocked drops foreign, duplicate and deleted records and orders the
// rest most recent first.
func (s *Store) sanitizeLocked(list []domain.Bookmark) []domain.Bookmark {
	items := make([]domain.Bookmark, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, b := range list {
		if b.Owner != s.owner {
			s.logger.Warn("dropping listed record of another owner",
				logger.String("owner", s.owner),
				logger.String("id", b.ID))
			continue
		}
		if _, dup := seen[b.ID]; dup {
			continue
		}
		if _, gone := s.tombstones[b.ID]; gone {
			continue
		}
		seen[b.ID] = struct{}{}
		items = append(items, b)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Newer(items[j]) })
	return items
}

// Create validates the input and inserts it with a generated correlation token.
func (s *Store) Create(ctx context.Context, title, target string) (domain.Bookmark, error) {
	return s.CreateWithToken(ctx, "", title, target)
}

// CreateWithToken inserts a bookmark, tracking it under token until the
// gateway answers. An empty token is replaced by a generated one.
//
// Invalid input returns a *domain.ValidationError without contacting the
// gateway. On success the returned record is prepended unless its id is
// already present. If CancelPending(token) was called meanwhile, the record is
// kept out of the collection, removed again at the gateway, and ErrCanceled
// is returned.
func (s *Store) CreateWithToken(ctx context.Context, token, title, target string) (domain.Bookmark, error) {
	draft, err := domain.NewDraft(s.owner, title, target)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if token == "" {
		token = s.newToken()
	}

	s.mu.Lock()
	if _, busy := s.pending[token]; busy {
		s.mu.Unlock()
		return domain.Bookmark{}, &domain.ValidationError{Field: "client_token", Reason: "already in flight"}
	}
	p := &pendingCreate{}
	s.pending[token] = p
	s.mu.Unlock()

	rec, err := s.gateway.Insert(ctx, draft)

	s.mu.Lock()
	delete(s.pending, token)
	if err != nil {
		s.mu.Unlock()
		metrics.GatewayErrors.WithLabelValues("insert").Inc()
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}
	if rec.Owner != s.owner {
		s.mu.Unlock()
		return domain.Bookmark{}, domain.Persistence("insert", fmt.Errorf("%w: %q", domain.ErrForeignOwner, rec.Owner))
	}
	if !p.canceled {
		s.insertLocked(rec, true)
		s.mu.Unlock()
		return rec, nil
	}

	// Canceled before acknowledgment: make sure it never shows, then compensate.
	s.tombstones[rec.ID] = struct{}{}
	if s.removeLocked(rec.ID) {
		s.changedLocked()
	}
	s.mu.Unlock()

	s.logger.Info("compensating canceled create",
		logger.String("owner", s.owner),
		logger.String("id", rec.ID))

	if derr := s.gateway.Delete(ctx, s.owner, rec.ID); derr != nil {
		metrics.GatewayErrors.WithLabelValues("delete").Inc()
		s.mu.Lock()
		delete(s.tombstones, rec.ID)
		s.mu.Unlock()
		s.resync("compensation_failed")
		return rec, domain.Persistence("delete", derr)
	}
	return rec, domain.ErrCanceled
}

// CancelPending marks an in-flight create as to be deleted on arrival.
// It reports whether a create with that token was in flight.
func (s *Store) CancelPending(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[token]
	if !ok {
		return false
	}
	p.canceled = true
	return true
}

// PendingCount returns the number of creates awaiting the gateway.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Delete removes id from the collection immediately, then deletes it at the
// gateway. If the gateway fails, the collection is reloaded from the gateway
// and the failure is returned as a *domain.PersistenceError.
func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}

	s.mu.Lock()
	s.tombstones[id] = struct{}{}
	if s.removeLocked(id) {
		s.changedLocked()
	}
	s.mu.Unlock()

	if err := s.gateway.Delete(ctx, s.owner, id); err != nil {
		metrics.GatewayErrors.WithLabelValues("delete").Inc()
		s.mu.Lock()
		delete(s.tombstones, id)
		s.mu.Unlock()

		s.logger.Warn("optimistic delete failed, resynchronizing",
			logger.String("owner", s.owner),
			logger.String("id", id),
			logger.Error(err))
		s.resync("delete_failed")
		return domain.Persistence("delete", err)
	}
	return nil
}

// resync reloads after a failed optimistic mutation. It is detached from the
// caller's context so an abandoned request cannot leave the state diverged.
func (s *Store) resync(reason string) {
	metrics.Resyncs.WithLabelValues(reason).Inc()
	ctx, cancel := context.WithTimeout(context.Background(), s.resyncTimeout)
	defer cancel()
	if err := s.Load(ctx); err != nil {
		s.logger.Error("resync failed",
			logger.String("owner", s.owner),
			logger.String("reason", reason),
			logger.Error(err))
	}
}

// ApplyRemoteEvent merges one change notification.
//
// Events attributed to another owner are rejected with ErrForeignOwner and
// leave the state untouched. Inserts of known ids are ignored, deletes of
// unknown ids are not an error, and updates replace in place (or insert when
// the id is unknown).
func (s *Store) ApplyRemoteEvent(ev domain.Event) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	kind := string(ev.Kind())

	owner := ev.EventOwner()
	_, isDelete := ev.(domain.DeleteEvent)
	if owner != s.owner && (owner != "" || !isDelete) {
		metrics.RemoteEvents.WithLabelValues(kind, metrics.OutcomeRejected).Inc()
		return fmt.Errorf("%w: %s event owned by %q", domain.ErrForeignOwner, kind, owner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var outcome string
	switch e := ev.(type) {
	case domain.InsertEvent:
		outcome = s.insertLocked(e.Record, true)
	case domain.UpdateEvent:
		outcome = s.updateLocked(e.Record, true)
	case domain.DeleteEvent:
		s.tombstones[e.ID] = struct{}{}
		outcome = metrics.OutcomeIgnored
		if s.removeLocked(e.ID) {
			outcome = metrics.OutcomeApplied
			s.changedLocked()
		}
	default:
		return fmt.Errorf("unsupported event type %T", ev)
	}

	metrics.RemoteEvents.WithLabelValues(kind, outcome).Inc()
	return nil
}

// insertLocked prepends rec unless its id is present or deleted.
func (s *Store) insertLocked(rec domain.Bookmark, record bool) string {
	if _, gone := s.tombstones[rec.ID]; gone {
		return metrics.OutcomeIgnored
	}
	if s.indexLocked(rec.ID) >= 0 {
		return metrics.OutcomeDuplicate
	}
	s.items = append([]domain.Bookmark{rec}, s.items...)
	if record {
		s.journalLocked(mutInsert, rec)
	}
	s.changedLocked()
	return metrics.OutcomeApplied
}

// updateLocked replaces rec in place, keeping its position and creation time.
func (s *Store) updateLocked(rec domain.Bookmark, record bool) string {
	if _, gone := s.tombstones[rec.ID]; gone {
		return metrics.OutcomeIgnored
	}
	i := s.indexLocked(rec.ID)
	if i < 0 {
		s.logger.Debug("update for unknown record, inserting",
			logger.String("owner", s.owner),
			logger.String("id", rec.ID))
		return s.insertLocked(rec, record)
	}
	rec.CreatedAt = s.items[i].CreatedAt
	s.items[i] = rec
	if record {
		s.journalLocked(mutUpdate, rec)
	}
	s.changedLocked()
	return metrics.OutcomeApplied
}

func (s *Store) removeLocked(id string) bool {
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) journalLocked(kind mutationKind, rec domain.Bookmark) {
	s.seq++
	if s.loading > 0 {
		s.journal = append(s.journal, mutation{seq: s.seq, kind: kind, record: rec})
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.Bookmark, len(s.items))
	copy(items, s.items)
	return Snapshot{
		Owner:   s.owner,
		Items:   items,
		Loaded:  s.loaded,
		Version: s.version,
	}
}

// Loaded reports whether an initial load has succeeded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Watch returns a channel that receives a signal after each state change.
// Signals coalesce: a slow reader sees at most one pending signal. The
// returned function unregisters the watcher.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// WatcherCount returns the number of registered watchers.
func (s *Store) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Store) changedLocked() {
	s.version++
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
