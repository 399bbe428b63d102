package statestore

import (
	"context"
	"time"
)

// KVStore is the generic Persistence Surface contract spec.md §6.5 describes
// independently of the higher-level Store/ConversationState API above: small
// opaque values, each under its own independently-TTL'd key, with a bounded
// append-only list primitive for the two rolling collections (turns,
// entities_index). RedisStore and MemoryStore both implement it.
type KVStore interface {
	// Put stores value under key with the given TTL. ttl <= 0 means no
	// expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get retrieves the value stored under key. ok is false if the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// AppendBoundedList appends value to the list stored under key, then
	// trims the list down to cap entries, discarding the oldest first.
	// cap <= 0 means unbounded.
	AppendBoundedList(ctx context.Context, key string, value []byte, cap int) error
	// ListHead returns the n most recently appended entries for key,
	// oldest-first. n <= 0 means the whole list.
	ListHead(ctx context.Context, key string, n int) ([][]byte, error)
}

// Per-key TTLs for the persisted-state layout (spec.md §6.5). Each key in
// that layout expires independently; there is no single shared conversation
// TTL the way the legacy ConversationState blob uses.
const (
	TurnsTTL           = 24 * time.Hour
	LongTermSummaryTTL = 7 * 24 * time.Hour
	EntityTTL          = 30 * 24 * time.Hour
)

// TurnsKey is the bounded-list key holding a conversation's hot turn window
// (spec.md §6.5: "conv:<cid>:turns").
func TurnsKey(conversationID string) string {
	return "conv:" + conversationID + ":turns"
}

// LongTermSummaryKey holds a conversation's LongTermSummary record
// (spec.md §6.5: "conv:<cid>:long_term_summary").
func LongTermSummaryKey(conversationID string) string {
	return "conv:" + conversationID + ":long_term_summary"
}

// EntityKey holds a single Entity record (spec.md §6.5:
// "entities:<cid>:<key>").
func EntityKey(conversationID, entityKey string) string {
	return "entities:" + conversationID + ":" + entityKey
}

// EntitiesIndexKey holds the bounded list of entity keys seen for a
// conversation, most-recently-touched last (spec.md §6.5:
// "entities_index:<cid>").
func EntitiesIndexKey(conversationID string) string {
	return "entities_index:" + conversationID
}
