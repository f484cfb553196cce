package domain

import "context"

// Gateway is the create/read/delete interface to the authoritative datastore.
//
// Every call is scoped to one owner and the backend enforces it: deleting an
// id that is absent or owned by someone else fails with ErrNotFound rather
// than succeeding silently. Failures are reported as *PersistenceError.
type Gateway interface {
	Insert(ctx context.Context, draft Draft) (Bookmark, error)
	List(ctx context.Context, owner string) ([]Bookmark, error)
	Delete(ctx context.Context, owner, id string) error
}

// Editor is implemented by gateways that support out-of-band edits.
// Nothing on the HTTP surface edits in place; the CLI uses it.
type Editor interface {
	Update(ctx context.Context, owner, id, title, target string) (Bookmark, error)
}

// Pinger is implemented by gateways that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Notifier opens push subscriptions filtered to one owner.
type Notifier interface {
	Subscribe(ctx context.Context, owner string) (Subscription, error)
}

// Subscription is a live change stream.
//
// Events is closed when the subscription ends. Done is closed at the same time;
// Err then tells a clean Close (nil) from a lost connection. There is no replay
// across a drop: consumers must resynchronize after resubscribing.
type Subscription interface {
	Events() <-chan Event
	Done() <-chan struct{}
	Err() error
	Close() error
}
