// Package entity provides canonical, deduplicated, searchable typed facts
// extracted from conversation turns.
//
// An Entity is keyed deterministically from its type and normalized value so
// that repeated extractions of the same fact collide and merge instead of
// accumulating duplicates. The store is process-wide and shared across
// conversations; callers key all operations by conversation_id.
package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type enumerates the kinds of facts the store recognizes.
type Type string

// Recognized entity types.
const (
	TypeJiraTicket Type = "jira_ticket"
	TypeProject    Type = "project"
	TypePerson     Type = "person"
	TypeDeadline   Type = "deadline"
	TypeDocument   Type = "document"
	TypeURL        Type = "url"
	TypeMetric     Type = "metric"
	TypeTechnology Type = "technology"
	TypeOther      Type = "other"
)

// RelevanceCeiling caps the relevance score after the AI-merge boost.
// spec.md §9 leaves the exact ceiling to configuration; SPEC_FULL.md fixes
// it at 1.0 for scores that are otherwise normalized to [0, 1].
const RelevanceCeiling = 1.0

// aiBoostFactor is applied when any contributing extraction method mentions AI.
const aiBoostFactor = 1.1

// Entity is a typed fact extracted from conversation turns.
type Entity struct {
	Key              string
	Type             Type
	Value            string
	Context          string
	ConversationID   string
	RelevanceScore   float64
	Aliases          map[string]struct{} // case-insensitive alias set
	Metadata         map[string]any
	ExtractionMethod []string // sorted set of contributing extraction methods, e.g. "pattern", "ai"
	FirstSeen        time.Time
	LastSeen         time.Time
}

// NewEntity constructs an Entity with a derived key and normalized fields.
func NewEntity(typ Type, value, context, conversationID string, relevance float64, method string, now time.Time) Entity {
	e := Entity{
		Key:            Key(typ, value),
		Type:           typ,
		Value:          normalizeValue(typ, value),
		Context:        context,
		ConversationID: conversationID,
		RelevanceScore: relevance,
		Aliases:        map[string]struct{}{},
		Metadata:       map[string]any{},
		FirstSeen:      now,
		LastSeen:       now,
	}
	if method != "" {
		e.ExtractionMethod = []string{method}
	}
	return e
}

// Key derives the deterministic dedup key for a (type, value) pair.
// key = type + ":" + lower(trim(collapse_whitespace(value))), with
// type-specific normalization applied first (e.g. ticket ids uppercased,
// which round-trips to the same lowercase key but preserves Value casing).
func Key(typ Type, value string) string {
	collapsed := collapseWhitespace(strings.TrimSpace(value))
	return string(typ) + ":" + strings.ToLower(collapsed)
}

func normalizeValue(typ Type, value string) string {
	v := collapseWhitespace(strings.TrimSpace(value))
	if typ == TypeJiraTicket {
		return strings.ToUpper(v)
	}
	return v
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// AliasSet returns the aliases as a sorted slice, for deterministic output.
func (e Entity) AliasSet() []string {
	out := make([]string, 0, len(e.Aliases))
	for a := range e.Aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// AddAlias inserts an alias into the entity's alias set (case-insensitively
// deduplicated on the lowercase form, original casing of the first insertion
// wins).
func (e *Entity) AddAlias(alias string) {
	if alias == "" {
		return
	}
	if e.Aliases == nil {
		e.Aliases = map[string]struct{}{}
	}
	lower := strings.ToLower(alias)
	for existing := range e.Aliases {
		if strings.ToLower(existing) == lower {
			return
		}
	}
	e.Aliases[alias] = struct{}{}
}

// hasAIMethod reports whether any extraction method mentions "ai".
func hasAIMethod(methods []string) bool {
	for _, m := range methods {
		if strings.Contains(strings.ToLower(m), "ai") {
			return true
		}
	}
	return false
}

// Merge combines two Entity records sharing the same Key, per spec.md §4.2.
// Merge is commutative: Merge(a, b) and Merge(b, a) agree on Key, Type,
// Value, Aliases (as a set), ExtractionMethod (as a set), LastSeen, and
// RelevanceScore up to the AI boost.
func Merge(a, b Entity) Entity {
	primary, secondary := a, b
	if !isPrimary(primary, secondary) {
		primary, secondary = secondary, primary
	}

	merged := primary

	if len(secondary.Context) > len(merged.Context) {
		merged.Context = secondary.Context
	}

	merged.Aliases = unionAliases(primary.Aliases, secondary.Aliases)

	merged.Metadata = mergeMetadata(primary.Metadata, secondary.Metadata)

	merged.ExtractionMethod = unionSortedStrings(primary.ExtractionMethod, secondary.ExtractionMethod)

	if len(secondary.Value) > len(merged.Value) {
		merged.Value = secondary.Value
	}

	if secondary.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = secondary.LastSeen
	}
	if secondary.FirstSeen.Before(merged.FirstSeen) {
		merged.FirstSeen = secondary.FirstSeen
	}

	// The AI boost applies only when this merge is what introduces the AI
	// method: if both sides already carry it (re-storing the same record)
	// or neither does, the score is left alone, keeping upserts idempotent
	// (spec.md §8 property 8).
	score := primary.RelevanceScore
	if hasAIMethod(merged.ExtractionMethod) &&
		hasAIMethod(primary.ExtractionMethod) != hasAIMethod(secondary.ExtractionMethod) {
		score *= aiBoostFactor
	}
	if score > RelevanceCeiling {
		score = RelevanceCeiling
	}
	merged.RelevanceScore = score

	return merged
}

// isPrimary reports whether x should act as primary over y, using a total
// order that is independent of argument position so Merge(a, b) and
// Merge(b, a) pick the same primary regardless of call order: higher
// RelevanceScore wins; ties break on earlier FirstSeen, then on lexically
// smaller Value. This keeps the merge commutative (spec.md §4.2, §8
// property 2) even when two extractions of the same fact tie on relevance
// and length but differ in original casing.
func isPrimary(x, y Entity) bool {
	if x.RelevanceScore != y.RelevanceScore {
		return x.RelevanceScore > y.RelevanceScore
	}
	if !x.FirstSeen.Equal(y.FirstSeen) {
		return x.FirstSeen.Before(y.FirstSeen)
	}
	if x.Value != y.Value {
		return x.Value < y.Value
	}
	// Every field a caller is likely to vary on is tied; fall back to a
	// full structural comparison so the choice is still independent of
	// argument order rather than defaulting to "x always wins".
	return fmt.Sprint(x) <= fmt.Sprint(y)
}

func unionAliases(a, b map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	seen := map[string]string{} // lowercase -> original casing kept
	add := func(set map[string]struct{}) {
		for alias := range set {
			lower := strings.ToLower(alias)
			if _, ok := seen[lower]; !ok {
				seen[lower] = alias
				out[alias] = struct{}{}
			}
		}
	}
	add(a)
	add(b)
	return out
}

func unionSortedStrings(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func mergeMetadata(primary, secondary map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range secondary {
		out[k] = v
	}
	for k, v := range primary {
		out[k] = v
	}
	return out
}
