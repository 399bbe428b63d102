package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/tools"
)

// countingSemanticBackend succeeds on every call and counts invocations,
// so tests can bound how many Execute phases actually ran.
type countingSemanticBackend struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSemanticBackend) Search(ctx context.Context, query string, topK int) ([]tools.SemanticSearchItem, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return []tools.SemanticSearchItem{{Content: "doc", Score: 0.9}}, nil
}

func (c *countingSemanticBackend) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// TestReplanningHardCap verifies spec.md §8 property 5: even with an
// evaluator that always demands more work, a request never produces more
// than four Execute phases.
func TestReplanningHardCap(t *testing.T) {
	semantic := &countingSemanticBackend{}
	registry := tools.NewDomainRegistry(nil,
		tools.NewSemanticSearchAdapter(semantic),
		tools.NewWebSearchAdapter(&fakeWebBackend{}),
		tools.NewTicketsAndDocsAdapter(&fakeTicketsBackend{}),
		tools.NewCalendarAdapter(&fakeCalendarBackend{}),
	)
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
		Evaluator:      newRepeatingProvider("eval", `{"needs_more_tools": true, "reasoning": "never satisfied"}`),
	})

	sub, err := eng.Subscribe("conv-cap")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-cap", UserText: "look this up for me"})
	require.NoError(t, err)

	assert.NotEmpty(t, answer.Text)
	assert.LessOrEqual(t, semantic.count(), 1+MaxReplanningIterations,
		"total Execute phases must be capped at 4")
	assert.Equal(t, 1+MaxReplanningIterations, semantic.count(),
		"an insatiable evaluator should exhaust every replanning iteration")
}

// TestSanitizationReplacesLeakedJSON verifies spec.md §8 property 6: a
// candidate answer carrying planner-JSON substrings never reaches the
// caller verbatim.
func TestSanitizationReplacesLeakedJSON(t *testing.T) {
	leaky := newRepeatingProvider("leaky", `{"limit": 5, "arguments": "semantic_search"}`)
	registry := buildTestRegistry(
		&fakeSemanticBackend{items: []tools.SemanticSearchItem{{Content: "doc", Score: 0.9}}},
		&fakeWebBackend{}, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: leaky}},
	})

	sub, err := eng.Subscribe("conv-leak")
	require.NoError(t, err)
	go drain(sub)

	answer, err := eng.Process(context.Background(), Request{ConversationID: "conv-leak", UserText: "tell me about the project"})
	require.NoError(t, err)

	assert.NotContains(t, answer.Text, `"limit":`)
	assert.NotContains(t, answer.Text, `"arguments"`)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(answer.Text), "{"))
	assert.NotEmpty(t, answer.Text)
	assert.True(t, answer.RequiresHumanInput)
}

// TestProcessPublishesRuntimeEvents verifies the engine's event-bus wiring:
// one request produces request, workflow, tool, and provider events in the
// adapted vocabulary.
func TestProcessPublishesRuntimeEvents(t *testing.T) {
	bus := events.NewEventBus()

	var mu sync.Mutex
	seen := map[events.EventType]int{}
	bus.SubscribeAll(func(e *events.Event) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
	})

	registry := buildTestRegistry(
		&fakeSemanticBackend{items: []tools.SemanticSearchItem{{Content: "doc", Score: 0.9}}},
		&fakeWebBackend{}, &fakeTicketsBackend{})
	eng := New(Dependencies{
		Memory:         newTestMemory(),
		Tools:          registry,
		ReasoningTiers: []ModelTier{{Name: "primary", Provider: &failingProvider{id: "p1", err: errors.New("down")}}},
		Events:         bus,
	})

	sub, err := eng.Subscribe("conv-ev")
	require.NoError(t, err)
	go drain(sub)

	_, err = eng.Process(context.Background(), Request{ConversationID: "conv-ev", UserText: "look this up"})
	require.NoError(t, err)

	bus.Close() // drains queued events before we assert

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[events.EventRequestStarted])
	assert.Equal(t, 1, seen[events.EventRequestCompleted])
	assert.Positive(t, seen[events.EventWorkflowTransitioned])
	assert.Positive(t, seen[events.EventStateEntered])
	assert.Positive(t, seen[events.EventToolCallStarted])
	assert.Positive(t, seen[events.EventToolCallCompleted])
	assert.Positive(t, seen[events.EventProviderCallFailed], "failing reasoning tier should surface as provider failures")
	assert.Equal(t, 1, seen[events.EventWorkflowCompleted])
	assert.Zero(t, seen[events.EventRequestFailed])
}
