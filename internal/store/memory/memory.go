// Package memory is an in-process gateway and notifier, used for local
// development (SHELF_BACKEND=memory) and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/notify"
	"github.com/MrSnakeDoc/shelf/internal/setup"
)

// ErrConnectionLost ends subscriptions dropped with Drop.
var ErrConnectionLost = errors.New("memory notifier: connection lost")

// Store keeps bookmarks in a map and fans change events out to subscribers.
type Store struct {
	mu        sync.RWMutex
	bookmarks map[string]domain.Bookmark // ID -> Bookmark
	subs      map[string]map[int]*notify.Stream
	nextSub   int
	now       func() time.Time
	newID     func() string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		bookmarks: make(map[string]domain.Bookmark),
		subs:      make(map[string]map[int]*notify.Stream),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock replaces the clock used for created_at. Intended for tests.
func (m *Store) WithClock(now func() time.Time) *Store {
	m.now = now
	return m
}

// Insert stores draft with a fresh id and creation time.
func (m *Store) Insert(ctx context.Context, draft domain.Draft) (domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}
	if err := draft.Validate(); err != nil {
		return domain.Bookmark{}, domain.Persistence("insert", err)
	}

	m.mu.Lock()
	b := domain.Bookmark{
		ID:        m.newID(),
		Owner:     draft.Owner,
		Title:     draft.Title,
		Target:    draft.Target,
		CreatedAt: m.now().UTC(),
	}
	m.bookmarks[b.ID] = b
	m.mu.Unlock()

	m.publish(ctx, b.Owner, domain.InsertEvent{Record: b})
	return b, nil
}

// List returns owner's bookmarks, most recent first.
func (m *Store) List(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Persistence("list", err)
	}

	m.mu.RLock()
	out := make([]domain.Bookmark, 0, len(m.bookmarks))
	for _, b := range m.bookmarks {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	m.mu.RUnlock()

	// Ties on created_at break on id, descending, as the postgres gateway does.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].Newer(out[j])
	})
	return out, nil
}

// Delete removes id if owner owns it; otherwise it fails with ErrNotFound.
func (m *Store) Delete(ctx context.Context, owner, id string) error {
	if err := ctx.Err(); err != nil {
		return domain.Persistence("delete", err)
	}

	m.mu.Lock()
	b, ok := m.bookmarks[id]
	if !ok || b.Owner != owner {
		m.mu.Unlock()
		return domain.Persistence("delete", domain.ErrNotFound)
	}
	delete(m.bookmarks, id)
	m.mu.Unlock()

	m.publish(ctx, owner, domain.DeleteEvent{ID: id, Owner: owner})
	return nil
}

// Update edits title and target of an owned record.
func (m *Store) Update(ctx context.Context, owner, id, title, target string) (domain.Bookmark, error) {
	draft, err := domain.NewDraft(owner, title, target)
	if err != nil {
		return domain.Bookmark{}, err
	}

	m.mu.Lock()
	b, ok := m.bookmarks[id]
	if !ok || b.Owner != owner {
		m.mu.Unlock()
		return domain.Bookmark{}, domain.Persistence("update", domain.ErrNotFound)
	}
	b.Title, b.Target = draft.Title, draft.Target
	m.bookmarks[id] = b
	m.mu.Unlock()

	m.publish(ctx, owner, domain.UpdateEvent{Record: b})
	return b, nil
}

// Ping always succeeds.
func (m *Store) Ping(context.Context) error { return nil }

// CheckSchema has nothing to verify beyond reporting that data is volatile.
func (m *Store) CheckSchema(context.Context) []setup.Check {
	return []setup.Check{{Name: "in-memory store", OK: true, Detail: "not persistent"}}
}

// InitSchema is a no-op.
func (m *Store) InitSchema(context.Context) error { return nil }

// Count returns the number of stored bookmarks across all owners.
func (m *Store) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bookmarks)
}

// Subscribe opens a change stream for owner.
func (m *Store) Subscribe(ctx context.Context, owner string) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	stream := notify.NewStream(notify.DefaultBuffer, cancel)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	if m.subs[owner] == nil {
		m.subs[owner] = make(map[int]*notify.Stream)
	}
	m.subs[owner][id] = stream
	m.mu.Unlock()

	go func() {
		<-subCtx.Done()
		m.mu.Lock()
		delete(m.subs[owner], id)
		m.mu.Unlock()
		stream.Finish(nil)
	}()

	return stream, nil
}

// Subscribers returns the number of open subscriptions for owner.
func (m *Store) Subscribers(owner string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[owner])
}

// Drop ends every subscription of owner as if the connection was lost.
func (m *Store) Drop(owner string) {
	m.mu.Lock()
	streams := m.subs[owner]
	delete(m.subs, owner)
	m.mu.Unlock()

	for _, s := range streams {
		s.Finish(ErrConnectionLost)
	}
}

// Publish delivers ev to owner's subscribers without touching stored data.
// Tests use it to simulate events the gateway did not originate.
func (m *Store) Publish(ctx context.Context, owner string, ev domain.Event) {
	m.publish(ctx, owner, ev)
}

func (m *Store) publish(ctx context.Context, owner string, ev domain.Event) {
	m.mu.RLock()
	streams := make([]*notify.Stream, 0, len(m.subs[owner]))
	for _, s := range m.subs[owner] {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	for _, s := range streams {
		select {
		case <-s.Done():
		default:
			s.Send(ctx, ev)
		}
	}
}
