package redis

import "time"

const (
	// KeyPrefixBookmark is the prefix for bookmark record keys
	KeyPrefixBookmark = "shelf:bookmark:"
	// KeyPrefixOwner is the prefix for per-owner sorted sets of bookmark IDs
	KeyPrefixOwner = "shelf:owner:"
	// ChannelPrefixChanges is the prefix for per-owner change channels
	ChannelPrefixChanges = "shelf:changes:"
	// KeySchema holds the key layout version written by `shelfctl setup --init`
	KeySchema = "shelf:schema"
	// SchemaVersion is the key layout this package reads and writes
	SchemaVersion = "1"
)

// BookmarkKey returns the Redis key holding a bookmark record
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// OwnerKey returns the sorted set of an owner's bookmark IDs, scored by created_at
func OwnerKey(owner string) string {
	return KeyPrefixOwner + owner + ":bookmarks"
}

// ChangesChannel returns the pub/sub channel carrying an owner's change events
func ChangesChannel(owner string) string {
	return ChannelPrefixChanges + owner
}

// score orders records by creation time at microsecond precision.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
