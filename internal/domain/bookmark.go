package domain

import "time"

// Bookmark is one saved URL owned by exactly one user.
//
// ID and CreatedAt are assigned by the persistence gateway at insertion and
// never generated client-side. CreatedAt is immutable and is the only ordering
// key: collections are kept most recent first.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (gateway-assigned)
	// ─────────────────────────────

	// ID is the opaque unique identifier.
	ID string `json:"id"`

	// Owner is the authenticated user the record belongs to.
	Owner string `json:"user_id"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Title is the display string. Never empty.
	Title string `json:"title"`

	// Target is the bookmarked URL. Never empty.
	Target string `json:"url"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt is set once by the gateway.
	CreatedAt time.Time `json:"created_at"`
}

// Draft is a bookmark that has not been stored yet: no ID, no CreatedAt.
type Draft struct {
	Owner  string `json:"user_id" validate:"required"`
	Title  string `json:"title" validate:"required,max=512"`
	Target string `json:"url" validate:"required,max=2048"`
}

// Newer reports whether b sorts before other in a most-recent-first collection.
func (b Bookmark) Newer(other Bookmark) bool {
	return b.CreatedAt.After(other.CreatedAt)
}
