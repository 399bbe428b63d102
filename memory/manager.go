package memory

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/statestore"
	"github.com/relaychat/conductor/tokenizer"
	"github.com/relaychat/conductor/types"
)

// Manager composes the Token Accountant, Entity Store, and a key-value
// conversation store into the Hybrid Conversation Memory (spec.md §4.3).
// It holds a handle to the Entity Store; the store never references the
// Manager back (spec.md §9, avoiding reference cycles).
type Manager struct {
	store    statestore.Store
	entities *entity.Store
	counter  tokenizer.TokenCounter
	botNames tokenizer.BotNameSet

	background *BackgroundPool
	bus        *events.EventBus

	maxLiveTurns   int
	maxLiveTokens  int
	preserveRecent int
	maxKeywords    int

	indexSeq atomic.Int64

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithBotNames registers author names that should be treated as assistant
// turns even when author_metadata.is_bot is unset.
func WithBotNames(names []string) Option {
	return func(m *Manager) { m.botNames = tokenizer.NewBotNameSet(names) }
}

// WithBudgets overrides the live-window budgets (defaults per spec.md §6).
func WithBudgets(maxLiveTurns, maxLiveTokens, preserveRecent int) Option {
	return func(m *Manager) {
		m.maxLiveTurns = maxLiveTurns
		m.maxLiveTokens = maxLiveTokens
		m.preserveRecent = preserveRecent
	}
}

// WithClock overrides the manager's time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEvents attaches an event bus; the manager publishes context.built,
// token-budget, and turn-commit events through it.
func WithEvents(bus *events.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// emitter builds a conversation-scoped event emitter, nil-safe when no bus
// is attached.
func (m *Manager) emitter(conversationID string) *events.Emitter {
	if m.bus == nil {
		return nil
	}
	return events.NewEmitter(m.bus, "", conversationID, conversationID)
}

// NewManager builds a Memory Manager over the given conversation store,
// entity store, token counter, and background worker pool.
func NewManager(store statestore.Store, entities *entity.Store, counter tokenizer.TokenCounter, background *BackgroundPool, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		entities:       entities,
		counter:        counter,
		background:     background,
		maxLiveTurns:   MaxLiveTurns,
		maxLiveTokens:  MaxLiveTokens,
		preserveRecent: PreserveRecent,
		maxKeywords:    MaxEntitySearchKeywords,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppendTurn is an O(1) append into the hot conversation store. It does not
// itself trigger summarization; HybridHistory does that as evictions
// surface.
func (m *Manager) AppendTurn(ctx context.Context, t Turn) error {
	msg := t.ToMessage()
	defer m.indexTurn(msg)

	if appender, ok := m.store.(statestore.MessageAppender); ok {
		return appender.AppendMessages(ctx, t.ConversationID, []types.Message{msg})
	}

	state, err := m.store.Load(ctx, t.ConversationID)
	if err != nil {
		if err != statestore.ErrNotFound {
			return err
		}
		state = &statestore.ConversationState{ID: t.ConversationID}
	}
	state.Messages = append(state.Messages, msg)
	if len(state.Messages) > m.maxLiveTurns*4 {
		state.Messages = state.Messages[len(state.Messages)-m.maxLiveTurns*4:]
	}
	return m.store.Save(ctx, state)
}

// indexTurn best-effort enqueues a committed message into the attached
// semantic message index (spec.md §6.3 supplement; see BackgroundPool.
// WithMessageIndex). turnIndex is a process-wide monotonic sequence rather
// than a per-conversation position, since the index is corpus-scoped, not
// conversation-scoped.
func (m *Manager) indexTurn(msg types.Message) {
	if m.background == nil {
		return
	}
	seq := int(m.indexSeq.Add(1))
	m.background.EnqueueIndex(seq, msg)
}

// HybridHistory builds the context handed to the Orchestration Engine,
// per spec.md §4.3's five-step algorithm.
func (m *Manager) HybridHistory(ctx context.Context, conversationID, currentUserText string) HybridHistory {
	turns, existingSummary := m.loadRecentTurns(ctx, conversationID)

	tokenized := make([]tokenizer.TokenizedTurn, len(turns))
	for i, t := range turns {
		isBot := t.IsBot || m.botNames.Contains(t.AuthorName) || t.Speaker == "assistant"
		tokenized[i] = tokenizer.TokenizeTurn(m.counter, tokenizer.Turn{IsBot: isBot, Text: t.Text})
	}

	kept, evicted, _ := tokenizer.BuildWindow(tokenized, m.maxLiveTokens, m.preserveRecent)

	summaryText := existingSummary.Text
	if len(evicted) >= 2 && m.background != nil {
		evictedTurns := turns[:len(evicted)]
		m.background.EnqueueSummarize(conversationID, evictedTurns, existingSummary)
	}
	if len(evicted) > 0 {
		summaryText = interimSummary(existingSummary.Text, turns[:len(evicted)])
	}

	keywords := entity.ExtractSearchKeywords(currentUserText, m.maxKeywords)
	var relevant []entity.Entity
	if m.entities != nil {
		relevant = m.entities.SearchEntities(ctx, conversationID, keywords, m.maxKeywords)
	}

	liveText := tokenizer.FormatWindow(kept)
	if liveText == "" {
		liveText = "User: " + currentUserText
	}
	liveTokens := 0
	for _, kt := range kept {
		liveTokens += kt.TokenCount
	}
	if len(kept) == 0 {
		liveTokens = tokenizer.CountTokensSafe(m.counter, "User: "+currentUserText)
	}

	liveTurnCount := len(kept)
	if liveTurnCount == 0 {
		liveTurnCount = 1
	}

	if em := m.emitter(conversationID); em != nil {
		em.ContextBuilt(liveTurnCount, liveTokens, m.maxLiveTokens, len(evicted) > 0)
		if liveTokens > m.maxLiveTokens {
			em.TokenBudgetExceeded(liveTokens, m.maxLiveTokens, liveTokens-m.maxLiveTokens)
		}
	}

	return HybridHistory{
		SummaryText:      summaryText,
		SummaryTurnCount: existingSummary.CoveredTurnCount + len(evicted),
		LiveWindowText:   liveText,
		LiveTurnCount:    liveTurnCount,
		LiveTokenCount:   liveTokens,
		RelevantEntities: relevant,
	}
}

// CommitExchange records the user and assistant turns for a request, then
// enqueues best-effort entity extraction over the (query, answer) pair.
// The engine does not await either write.
func (m *Manager) CommitExchange(ctx context.Context, conversationID string, userTurn, assistantTurn Turn) error {
	if err := m.AppendTurn(ctx, userTurn); err != nil {
		logger.DefaultLogger.Warn("memory: failed to append user turn", "conversation_id", conversationID, "error", err)
		return err
	}
	if err := m.AppendTurn(ctx, assistantTurn); err != nil {
		logger.DefaultLogger.Warn("memory: failed to append assistant turn", "conversation_id", conversationID, "error", err)
		return err
	}
	if em := m.emitter(conversationID); em != nil {
		em.TurnCommitted(userTurn.Speaker, 0, tokenizer.CountTokensSafe(m.counter, userTurn.Text))
		em.TurnCommitted(assistantTurn.Speaker, 1, tokenizer.CountTokensSafe(m.counter, assistantTurn.Text))
	}
	if m.background != nil {
		m.background.EnqueueExtract(conversationID, userTurn.Text, assistantTurn.Text, userTurn.AuthorName)
	}
	return nil
}

// Branch forks a conversation's stored state under a new ID without
// mutating the source, exercising statestore.Store.Fork (spec.md §9
// supplemented feature: conversation forking for "what if" sub-requests).
func (m *Manager) Branch(ctx context.Context, sourceConversationID, newConversationID string) error {
	return m.store.Fork(ctx, sourceConversationID, newConversationID)
}

func (m *Manager) loadRecentTurns(ctx context.Context, conversationID string) ([]Turn, LongTermSummary) {
	var messages []types.Message
	if reader, ok := m.store.(statestore.MessageReader); ok {
		if msgs, err := reader.LoadRecentMessages(ctx, conversationID, m.maxLiveTurns); err == nil {
			messages = msgs
		} else if err != statestore.ErrNotFound {
			logger.DefaultLogger.Warn("memory: LoadRecentMessages failed", "conversation_id", conversationID, "error", err)
		}
	} else if state, err := m.store.Load(ctx, conversationID); err == nil {
		messages = state.Messages
		if len(messages) > m.maxLiveTurns {
			messages = messages[len(messages)-m.maxLiveTurns:]
		}
	} else if err != statestore.ErrNotFound {
		logger.DefaultLogger.Warn("memory: Load failed", "conversation_id", conversationID, "error", err)
	}

	turns := make([]Turn, len(messages))
	for i, msg := range messages {
		turns[i] = TurnFromMessage(conversationID, msg)
	}

	summary := m.loadSummary(ctx, conversationID)
	return turns, summary
}

func (m *Manager) loadSummary(ctx context.Context, conversationID string) LongTermSummary {
	if accessor, ok := m.store.(statestore.SummaryAccessor); ok {
		summaries, err := accessor.LoadSummaries(ctx, conversationID)
		if err == nil && len(summaries) > 0 {
			last := summaries[len(summaries)-1]
			return LongTermSummary{Text: last.Content, CoveredTurnCount: last.EndTurn + 1, LastUpdated: last.CreatedAt}
		}
	}
	return LongTermSummary{}
}

// interimSummary appends short stubs of evicted turns to the existing
// summary text, per spec.md §4.3 step 4, so the engine still has coverage
// until the asynchronous abstractive summary replaces it.
func interimSummary(existing string, evicted []Turn) string {
	var sb strings.Builder
	sb.WriteString(existing)
	for _, t := range evicted {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(t.Speaker)
		sb.WriteString(": ")
		sb.WriteString(truncateStub(t.Text))
	}
	return sb.String()
}
