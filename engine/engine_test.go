package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/memory"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/statestore"
	"github.com/relaychat/conductor/tokenizer"
	"github.com/relaychat/conductor/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory() *memory.Manager {
	store := statestore.NewMemoryStore()
	entities := entity.NewStore()
	counter := tokenizer.NewHeuristicTokenCounter(tokenizer.ModelFamilyDefault)
	pool := memory.NewBackgroundPool(store, entities, nil, nil, 2)
	return memory.NewManager(store, entities, counter, pool)
}

// TestScenarioAGreeting covers spec.md §8 scenario A.
func TestScenarioAGreeting(t *testing.T) {
	registry := buildTestRegistry(&fakeSemanticBackend{}, &fakeWebBackend{}, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
	})

	sub, err := eng.Subscribe("conv-a")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-a", UserText: "Hey buddy"})
	require.NoError(t, err)

	assert.NotEmpty(t, answer.Text)
	assert.Contains(t, []Confidence{ConfidenceMedium, ConfidenceHigh}, answer.Confidence)
	assert.Empty(t, answer.SourceLinks)
}

// TestScenarioBProjectStatus covers spec.md §8 scenario B.
func TestScenarioBProjectStatus(t *testing.T) {
	ticketsBackend := &fakeTicketsBackend{payload: tools.TicketsAndDocsPayload{
		Status: "ok",
		Data: []tools.TicketDocItem{
			{Title: "AUTOPILOT-123", URL: "https://example.atlassian.net/AUTOPILOT-123", Type: tools.DocTypeJira, Summary: "in progress"},
		},
		ExecutionMethod: "mock",
	}}
	registry := buildTestRegistry(&fakeSemanticBackend{}, &fakeWebBackend{}, ticketsBackend)
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
	})

	sub, err := eng.Subscribe("conv-b")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-b", UserText: "What's the status of AUTOPILOT-123?"})
	require.NoError(t, err)

	require.NotEmpty(t, answer.SourceLinks)
	assert.Equal(t, "jira", answer.SourceLinks[0].Type)
	assert.NotEmpty(t, answer.KeyFindings)
	assert.Equal(t, ConfidenceHigh, answer.Confidence)
}

// TestScenarioCCurrentEvents covers spec.md §8 scenario C.
func TestScenarioCCurrentEvents(t *testing.T) {
	citations := make([]tools.Citation, 0, 6)
	for i := 0; i < 6; i++ {
		citations = append(citations, tools.Citation{Title: "source", URL: "https://example.com/" + string(rune('a'+i))})
	}
	webBackend := &fakeWebBackend{payload: tools.WebSearchPayload{Content: "AI automation is accelerating.", Citations: citations}}
	registry := buildTestRegistry(&fakeSemanticBackend{}, webBackend, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
	})

	sub, err := eng.Subscribe("conv-c")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-c", UserText: "What are the latest AI automation trends in 2025?"})
	require.NoError(t, err)

	assert.Len(t, answer.SourceLinks, maxSourceLinks)
	assert.NotEmpty(t, answer.SuggestedFollowups)
}

// TestScenarioDQuotaExhaustion covers spec.md §8 scenario D.
func TestScenarioDQuotaExhaustion(t *testing.T) {
	registry := buildTestRegistry(&fakeSemanticBackend{items: []tools.SemanticSearchItem{{Content: "doc", Score: 0.5}}}, &fakeWebBackend{}, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: providers.ErrQuotaExhausted}}},
	})

	sub, err := eng.Subscribe("conv-d")
	require.NoError(t, err)
	var events []string
	done := make(chan struct{})
	go func() {
		for display := range sub {
			events = append(events, display)
		}
		close(done)
	}()

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-d", UserText: "What's new?"})
	require.NoError(t, err)
	<-done

	assert.NotEmpty(t, answer.Text)
	found := false
	for _, e := range events {
		if strings.Contains(e, "Switching to a faster reasoning path") {
			found = true
		}
	}
	assert.True(t, found, "expected a warning event about tier fallback")
}

// TestScenarioERecursiveReplan covers spec.md §8 scenario E.
func TestScenarioERecursiveReplan(t *testing.T) {
	semanticBackend := &fakeSemanticBackend{err: errors.New("index unavailable")}
	webBackend := &fakeWebBackend{payload: tools.WebSearchPayload{Content: "fallback content", Citations: []tools.Citation{{Title: "x", URL: "https://example.com/x"}}}}
	registry := buildTestRegistry(semanticBackend, webBackend, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
	})

	sub, err := eng.Subscribe("conv-e")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-e", UserText: "please help me in general"})
	require.NoError(t, err)

	if answer.Confidence == ConfidenceLow {
		assert.True(t, answer.RequiresHumanInput)
	}
	assert.NotEmpty(t, answer.Text)
}

// TestScenarioFCancellation covers spec.md §8 scenario F.
func TestScenarioFCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	semanticBackend := &fakeSemanticBackend{items: []tools.SemanticSearchItem{{Content: "doc", Score: 0.9}}}
	cancelingBackend := &cancelAfterSearch{inner: semanticBackend, cancel: cancel}
	registry := buildTestRegistry2(cancelingBackend, &fakeWebBackend{}, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
	})

	sub, err := eng.Subscribe("conv-f")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(ctx, Request{ConversationID: "conv-f", UserText: "search for something please"})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, answer.Text)
}

type cancelAfterSearch struct {
	inner  *fakeSemanticBackend
	cancel context.CancelFunc
}

func (c *cancelAfterSearch) Search(ctx context.Context, query string, topK int) ([]tools.SemanticSearchItem, error) {
	items, err := c.inner.Search(ctx, query, topK)
	c.cancel()
	return items, err
}

func buildTestRegistry2(semantic tools.SemanticSearchBackend, web *fakeWebBackend, ticketsDocs *fakeTicketsBackend) *tools.DomainRegistry {
	return tools.NewDomainRegistry(nil,
		tools.NewSemanticSearchAdapter(semantic),
		tools.NewWebSearchAdapter(web),
		tools.NewTicketsAndDocsAdapter(ticketsDocs),
		tools.NewCalendarAdapter(&fakeCalendarBackend{}),
	)
}

func drain(sub <-chan string) {
	for range sub {
	}
}
