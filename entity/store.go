package entity

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/statestore"
)

// DefaultTTL is the advisory TTL applied to entity records, per spec.md §6.5
// (`entities:<cid>:<key>`, TTL 30d).
const DefaultTTL = 30 * 24 * time.Hour

// Store holds deduplicated entities per conversation. It is safe for
// concurrent use; writes are serialized per (conversationID, key) to honor
// the CAS-style locking discipline in spec.md §5.
type Store struct {
	mu    sync.RWMutex
	byCID map[string]map[string]*record
	now   func() time.Time

	// persist is the optional Persistence Surface backing (spec.md §6.5:
	// `entities:<cid>:<key>`, `entities_index:<cid>`). When nil, the Store
	// is purely in-process, matching NewStore's default.
	persist statestore.KVStore
}

type record struct {
	entity   Entity
	expireAt time.Time
}

// NewStore creates an empty, process-wide Entity Store.
func NewStore() *Store {
	return &Store{
		byCID: make(map[string]map[string]*record),
		now:   time.Now,
	}
}

// WithClock overrides the store's time source for deterministic tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithPersistence attaches a KVStore backing so entities also persist under
// the literal spec.md §6.5 keys (`entities:<cid>:<key>`, TTL 30d, plus the
// `entities_index:<cid>` bounded list of touched keys), instead of living
// only in the process-local map. The in-process map stays the read path;
// persistence is write-through and best-effort, matching StoreEntities'
// existing "storage errors are non-fatal elsewhere" contract.
func (s *Store) WithPersistence(kv statestore.KVStore) *Store {
	s.persist = kv
	return s
}

// StoreEntities upserts entities for a conversation, merging with any
// existing record sharing the same key (spec.md §4.2). Storage errors are
// non-fatal elsewhere in the system; this in-memory implementation has none,
// but the signature returns error so callers (and the Redis-backed variant)
// compose uniformly.
func (s *Store) StoreEntities(ctx context.Context, conversationID string, entities []Entity) error {
	if conversationID == "" || len(entities) == 0 {
		return nil
	}
	s.mu.Lock()
	bucket, ok := s.byCID[conversationID]
	if !ok {
		bucket = make(map[string]*record)
		s.byCID[conversationID] = bucket
	}

	now := s.now()
	merged := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if existing, ok := bucket[e.Key]; ok && existing.expireAt.After(now) {
			m := Merge(existing.entity, e)
			bucket[e.Key] = &record{entity: m, expireAt: now.Add(DefaultTTL)}
			merged = append(merged, m)
			continue
		}
		bucket[e.Key] = &record{entity: e, expireAt: now.Add(DefaultTTL)}
		merged = append(merged, e)
	}
	s.mu.Unlock()

	if s.persist != nil {
		s.persistEntities(ctx, conversationID, merged)
	}
	return nil
}

// persistEntities write-throughs merged entities to the attached KVStore
// under the literal `entities:<cid>:<key>` keys and appends their keys to
// the conversation's `entities_index:<cid>` bounded list. Failures are
// logged, not returned — entity persistence is best-effort, matching the
// package's existing "storage errors are non-fatal" contract.
func (s *Store) persistEntities(ctx context.Context, conversationID string, entities []Entity) {
	const indexCap = 500
	for _, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			logger.DefaultLogger.Warn("entity: failed to marshal entity for persistence", "key", e.Key, "error", err)
			continue
		}
		if err := s.persist.Put(ctx, statestore.EntityKey(conversationID, e.Key), data, statestore.EntityTTL); err != nil {
			logger.DefaultLogger.Warn("entity: failed to persist entity", "conversation_id", conversationID, "key", e.Key, "error", err)
			continue
		}
		if err := s.persist.AppendBoundedList(ctx, statestore.EntitiesIndexKey(conversationID), []byte(e.Key), indexCap); err != nil {
			logger.DefaultLogger.Warn("entity: failed to update entities index", "conversation_id", conversationID, "error", err)
		}
	}
}

// SearchEntities returns entities for a conversation whose value, context,
// or aliases match any of the given keywords, ordered by descending
// RelevanceScore and tie-broken by most recent LastSeen.
func (s *Store) SearchEntities(_ context.Context, conversationID string, keywords []string, limit int) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.byCID[conversationID]
	if !ok {
		return nil
	}

	now := s.now()
	lowerKeywords := make([]string, len(keywords))
	for i, k := range keywords {
		lowerKeywords[i] = strings.ToLower(k)
	}

	var matches []Entity
	for _, rec := range bucket {
		if rec.expireAt.Before(now) {
			continue
		}
		if len(keywords) == 0 || matchesAny(rec.entity, lowerKeywords) {
			matches = append(matches, rec.entity)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].RelevanceScore != matches[j].RelevanceScore {
			return matches[i].RelevanceScore > matches[j].RelevanceScore
		}
		return matches[i].LastSeen.After(matches[j].LastSeen)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func matchesAny(e Entity, lowerKeywords []string) bool {
	haystacks := []string{strings.ToLower(e.Value), strings.ToLower(e.Context)}
	for a := range e.Aliases {
		haystacks = append(haystacks, strings.ToLower(a))
	}
	for _, kw := range lowerKeywords {
		if kw == "" {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, kw) {
				return true
			}
		}
	}
	return false
}

// Summary describes the aggregate shape of a conversation's entities.
type Summary struct {
	Total      int
	ByType     map[Type]int
	RecentKeys []string
}

// ConversationSummary reports totals, a per-type breakdown, and the most
// recently seen keys for a conversation.
func (s *Store) ConversationSummary(_ context.Context, conversationID string) Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{ByType: map[Type]int{}}
	bucket, ok := s.byCID[conversationID]
	if !ok {
		return summary
	}

	now := s.now()
	type keyed struct {
		key      string
		lastSeen time.Time
	}
	var all []keyed
	for key, rec := range bucket {
		if rec.expireAt.Before(now) {
			continue
		}
		summary.Total++
		summary.ByType[rec.entity.Type]++
		all = append(all, keyed{key: key, lastSeen: rec.entity.LastSeen})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].lastSeen.After(all[j].lastSeen) })
	const recentCap = 10
	for i, k := range all {
		if i >= recentCap {
			break
		}
		summary.RecentKeys = append(summary.RecentKeys, k.key)
	}
	return summary
}
