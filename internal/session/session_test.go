package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/store/memory"
)

// countingGateway counts List calls on top of the memory store.
type countingGateway struct {
	*memory.Store
	lists atomic.Int32
}

func (g *countingGateway) List(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	g.lists.Add(1)
	return g.Store.List(ctx, owner)
}

// flakyNotifier fails the next n Subscribe calls.
type flakyNotifier struct {
	domain.Notifier
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyNotifier) Subscribe(ctx context.Context, owner string) (domain.Subscription, error) {
	f.mu.Lock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return nil, errors.New("notifier unavailable")
	}
	f.mu.Unlock()
	return f.Notifier.Subscribe(ctx, owner)
}

func fastOptions() Options {
	return Options{RetryInitial: 5 * time.Millisecond, RetryMax: 20 * time.Millisecond, LoadTimeout: time.Second}
}

func TestSessionAppliesRemoteEvents(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	s, err := Open(ctx, "u1", mem, mem, fastOptions())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureLoaded(ctx))

	// Another tab of the same user creates a bookmark.
	b, err := mem.Insert(ctx, domain.Draft{Owner: "u1", Title: "Go", Target: "https://go.dev"})
	require.NoError(t, err)
	// Another user's change must never show up.
	_, err = mem.Insert(ctx, domain.Draft{Owner: "u2", Title: "x", Target: "https://x"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := s.Store().Snapshot().Items
		return len(items) == 1 && items[0].ID == b.ID
	}, time.Second, 5*time.Millisecond)
}

func TestSessionRejectsForeignEvents(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	s, err := Open(ctx, "u1", mem, mem, fastOptions())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureLoaded(ctx))

	mem.Publish(ctx, "u1", domain.InsertEvent{Record: domain.Bookmark{ID: "x", Owner: "u2", Title: "t", Target: "u", CreatedAt: time.Now()}})
	mine := domain.Bookmark{ID: "y", Owner: "u1", Title: "t", Target: "u", CreatedAt: time.Now()}
	mem.Publish(ctx, "u1", domain.InsertEvent{Record: mine})

	require.Eventually(t, func() bool {
		return len(s.Store().Snapshot().Items) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "y", s.Store().Snapshot().Items[0].ID)
}

func TestSessionResubscribesAndReloadsAfterDrop(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	gw := &countingGateway{Store: mem}
	notifier := &flakyNotifier{Notifier: mem}

	s, err := Open(ctx, "u1", gw, notifier, fastOptions())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureLoaded(ctx))
	require.EqualValues(t, 1, gw.lists.Load())

	notifier.mu.Lock()
	notifier.fails = 2
	notifier.mu.Unlock()
	mem.Drop("u1")

	require.Eventually(t, func() bool {
		return gw.lists.Load() == 2 && s.Connected()
	}, 2*time.Second, 5*time.Millisecond)

	notifier.mu.Lock()
	calls := notifier.calls
	notifier.mu.Unlock()
	assert.Equal(t, 4, calls, "initial subscribe, two failures, one success")
	assert.Equal(t, 1, mem.Subscribers("u1"))

	// Events flow again on the new subscription.
	b, err := mem.Insert(ctx, domain.Draft{Owner: "u1", Title: "after", Target: "https://after"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items := s.Store().Snapshot().Items
		return len(items) == 1 && items[0].ID == b.ID
	}, time.Second, 5*time.Millisecond)
}

func TestSessionCloseReleasesSubscription(t *testing.T) {
	mem := memory.New()

	s, err := Open(context.Background(), "u1", mem, mem, fastOptions())
	require.NoError(t, err)
	require.Equal(t, 1, mem.Subscribers("u1"))

	s.Close()
	s.Close()

	require.Eventually(t, func() bool { return mem.Subscribers("u1") == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Connected())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Close()")
	}
}

func TestOpenSurvivesNotifierOutage(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	gw := &countingGateway{Store: mem}
	notifier := &flakyNotifier{Notifier: mem, fails: 3}

	_, err := mem.Insert(ctx, domain.Draft{Owner: "u1", Title: "Go", Target: "https://go.dev"})
	require.NoError(t, err)

	s, err := Open(ctx, "u1", gw, notifier, fastOptions())
	require.NoError(t, err)
	defer s.Close()

	// Gateway operations work while disconnected.
	require.NoError(t, s.EnsureLoaded(ctx))
	assert.Len(t, s.Store().Snapshot().Items, 1)
	_, err = s.Store().Create(ctx, "Redis", "https://redis.io")
	require.NoError(t, err)
	assert.Len(t, s.Store().Snapshot().Items, 2)

	// Once the notifier is back the session connects and reloads.
	require.Eventually(t, func() bool {
		return s.Connected() && gw.lists.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mem.Subscribers("u1"))

	other, err := mem.Insert(ctx, domain.Draft{Owner: "u1", Title: "Tab", Target: "https://tab"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items := s.Store().Snapshot().Items
		return len(items) == 3 && items[0].ID == other.ID
	}, time.Second, 5*time.Millisecond)
}

func TestOpenNeverConnectedClosesCleanly(t *testing.T) {
	mem := memory.New()
	notifier := &flakyNotifier{Notifier: mem, fails: 1 << 30}

	s, err := Open(context.Background(), "u1", mem, notifier, fastOptions())
	require.NoError(t, err)
	assert.False(t, s.Connected())

	s.Close()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Close()")
	}
	assert.Equal(t, 0, mem.Subscribers("u1"))
}

func TestOpenAbortsOnCancelledContext(t *testing.T) {
	mem := memory.New()
	notifier := &flakyNotifier{Notifier: mem, fails: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, "u1", mem, notifier, fastOptions())
	assert.Error(t, err)
}

func TestOpenRequiresOwner(t *testing.T) {
	mem := memory.New()
	_, err := Open(context.Background(), "", mem, mem, fastOptions())
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}
