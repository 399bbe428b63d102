// Package memory implements the Hybrid Conversation Memory (spec.md §4.3):
// a rolling abstractive summary, a token-budgeted live window, and a
// structured entity set, composed into the HybridHistory the Orchestration
// Engine plans against.
package memory

import (
	"time"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/types"
)

// Default budgets from spec.md §6 (the environment configuration surface).
const (
	MaxLiveTurns            = 10
	MaxLiveTokens           = 2000
	PreserveRecent          = 2
	MaxEntitySearchKeywords = 10
)

// interimStubLen is how many leading characters of an evicted turn are kept
// as a stub for the interim summary, per spec.md §4.3 step 4.
const interimStubLen = 100

// LongTermSummary is the dense narrative covering turns no longer in the
// live window. CoveredTurnCount strictly increases.
type LongTermSummary struct {
	Text             string
	CoveredTurnCount int
	LastUpdated      time.Time
}

// HybridHistory is the context handed to the Orchestration Engine's
// planning step.
type HybridHistory struct {
	SummaryText      string
	SummaryTurnCount int
	LiveWindowText   string
	LiveTurnCount    int
	LiveTokenCount   int
	RelevantEntities []entity.Entity
}

// Turn is the domain view of a single chat message, per spec.md §3. It maps
// onto types.Message: Role "user"/"assistant" becomes Speaker, Content
// becomes Text, Timestamp becomes CreatedAt, and Meta carries author
// metadata (is_bot, author name).
type Turn struct {
	TurnID         string
	ConversationID string
	Speaker        string // "user" | "assistant"
	Text           string
	CreatedAt      time.Time
	AuthorName     string
	IsBot          bool
}

// ToMessage converts a Turn to the wire-level types.Message the rest of the
// codebase (statestore, providers) already speaks.
func (t Turn) ToMessage() types.Message {
	role := "user"
	if t.Speaker == "assistant" {
		role = "assistant"
	}
	meta := map[string]interface{}{}
	if t.AuthorName != "" {
		meta["author_name"] = t.AuthorName
	}
	if t.IsBot {
		meta["is_bot"] = true
	}
	return types.Message{
		Role:      role,
		Content:   t.Text,
		Timestamp: t.CreatedAt,
		Meta:      meta,
	}
}

// TurnFromMessage converts a stored types.Message back into a Turn.
func TurnFromMessage(conversationID string, m types.Message) Turn {
	t := Turn{
		ConversationID: conversationID,
		Speaker:        "user",
		Text:           m.Content,
		CreatedAt:      m.Timestamp,
	}
	if m.Role == "assistant" {
		t.Speaker = "assistant"
	}
	if m.Meta != nil {
		if name, ok := m.Meta["author_name"].(string); ok {
			t.AuthorName = name
		}
		if isBot, ok := m.Meta["is_bot"].(bool); ok {
			t.IsBot = isBot
		}
	}
	return t
}

func truncateStub(text string) string {
	runes := []rune(text)
	if len(runes) <= interimStubLen {
		return text
	}
	return string(runes[:interimStubLen]) + "..."
}
