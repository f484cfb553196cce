package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a remote change notification.
type EventKind string

const (
	KindInsert EventKind = "INSERT"
	KindUpdate EventKind = "UPDATE"
	KindDelete EventKind = "DELETE"
)

// Event is one change notification for an owner's table.
// The concrete types are InsertEvent, UpdateEvent and DeleteEvent.
type Event interface {
	Kind() EventKind
	// EventOwner is the owner the event claims to belong to, or "" if unknown.
	EventOwner() string
	isEvent()
}

// InsertEvent carries the full inserted record.
type InsertEvent struct {
	Record Bookmark
}

// UpdateEvent carries the full record after the edit.
type UpdateEvent struct {
	Record Bookmark
}

// DeleteEvent carries only the identifier of the removed record.
// Owner is filled when the backend includes it and is empty otherwise.
type DeleteEvent struct {
	ID    string
	Owner string
}

func (InsertEvent) Kind() EventKind { return KindInsert }
func (UpdateEvent) Kind() EventKind { return KindUpdate }
func (DeleteEvent) Kind() EventKind { return KindDelete }

func (e InsertEvent) EventOwner() string { return e.Record.Owner }
func (e UpdateEvent) EventOwner() string { return e.Record.Owner }
func (e DeleteEvent) EventOwner() string { return e.Owner }

func (InsertEvent) isEvent() {}
func (UpdateEvent) isEvent() {}
func (DeleteEvent) isEvent() {}

// envelope is the JSON shape shared by every notifier backend.
type envelope struct {
	Type      EventKind `json:"type"`
	Record    *Bookmark `json:"record,omitempty"`
	OldRecord *oldKey   `json:"old_record,omitempty"`
}

type oldKey struct {
	ID    string `json:"id"`
	Owner string `json:"user_id,omitempty"`
}

// EncodeEvent serializes an event for a notification channel.
func EncodeEvent(ev Event) ([]byte, error) {
	env := envelope{Type: ev.Kind()}
	switch e := ev.(type) {
	case InsertEvent:
		rec := e.Record
		env.Record = &rec
	case UpdateEvent:
		rec := e.Record
		env.Record = &rec
	case DeleteEvent:
		env.OldRecord = &oldKey{ID: e.ID, Owner: e.Owner}
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}
	return json.Marshal(env)
}

// DecodeEvent parses a notification payload into its typed event.
// Payloads missing the fields their kind guarantees are rejected.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	switch env.Type {
	case KindInsert, KindUpdate:
		if env.Record == nil || env.Record.ID == "" {
			return nil, fmt.Errorf("%s event without record id", env.Type)
		}
		if env.Type == KindInsert {
			return InsertEvent{Record: *env.Record}, nil
		}
		return UpdateEvent{Record: *env.Record}, nil
	case KindDelete:
		if env.OldRecord == nil || env.OldRecord.ID == "" {
			return nil, fmt.Errorf("DELETE event without id")
		}
		return DeleteEvent{ID: env.OldRecord.ID, Owner: env.OldRecord.Owner}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
