package memory

import (
	"context"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

func TestInsertListDelete(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := New().WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})

	first, err := m.Insert(ctx, domain.Draft{Owner: "u1", Title: "first", Target: "https://one"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	second, err := m.Insert(ctx, domain.Draft{Owner: "u1", Title: "second", Target: "https://two"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := m.Insert(ctx, domain.Draft{Owner: "u2", Title: "other", Target: "https://three"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	list, err := m.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("List() = %+v, want [second first]", list)
	}

	if err := m.Delete(ctx, "u2", first.ID); err == nil {
		t.Error("Delete() of another owner's record should fail")
	}
	if err := m.Delete(ctx, "u1", first.ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := m.Delete(ctx, "u1", first.ID); err == nil {
		t.Error("second Delete() should fail closed")
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
}

func TestListBreaksTiesByID(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := New().WithClock(func() time.Time { return at })

	for i := 0; i < 6; i++ {
		if _, err := m.Insert(ctx, domain.Draft{Owner: "u1", Title: "same", Target: "https://same"}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	for run := 0; run < 10; run++ {
		list, err := m.List(ctx, "u1")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for i := 1; i < len(list); i++ {
			if list[i-1].ID <= list[i].ID {
				t.Fatalf("run %d: ids not descending at %d: %q then %q", run, i, list[i-1].ID, list[i].ID)
			}
		}
	}
}

func TestSubscriptionReceivesOwnEventsOnly(t *testing.T) {
	ctx := context.Background()
	m := New()

	sub, err := m.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	if _, err := m.Insert(ctx, domain.Draft{Owner: "u2", Title: "t", Target: "u"}); err != nil {
		t.Fatal(err)
	}
	mine, err := m.Insert(ctx, domain.Draft{Owner: "u1", Title: "t", Target: "u"})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-sub.Events():
		ins, ok := ev.(domain.InsertEvent)
		if !ok || ins.Record.ID != mine.ID {
			t.Fatalf("event = %#v, want insert of %s", ev, mine.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestDropEndsSubscriptionWithError(t *testing.T) {
	m := New()
	sub, err := m.Subscribe(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	m.Drop("u1")

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended")
	}
	if sub.Err() != ErrConnectionLost {
		t.Errorf("Err() = %v, want ErrConnectionLost", sub.Err())
	}
	if err := sub.Close(); err != nil {
		t.Errorf("Close() after drop error = %v", err)
	}
}

func TestCloseRemovesSubscriber(t *testing.T) {
	m := New()
	sub, err := m.Subscribe(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Subscribers("u1"); got != 1 {
		t.Fatalf("Subscribers() = %d, want 1", got)
	}

	if err := sub.Close(); err != nil {
		t.Fatal(err)
	}
	if sub.Err() != nil {
		t.Errorf("Err() after Close = %v, want nil", sub.Err())
	}
	if got := m.Subscribers("u1"); got != 0 {
		t.Errorf("Subscribers() after Close = %d, want 0", got)
	}
}
