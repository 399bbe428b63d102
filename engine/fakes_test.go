package engine

import (
	"context"
	"errors"

	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/tools"
	"github.com/relaychat/conductor/types"
)

// scriptedProvider is a minimal providers.Provider whose Chat responses are
// scripted per-call, used to drive the engine through deterministic
// scenarios (quota exhaustion, parse failures, etc.) without touching the
// repository-backed MockProvider.
type scriptedProvider struct {
	id        string
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	content string
	err     error
}

func newScriptedProvider(id string, responses ...scriptedResponse) *scriptedProvider {
	return &scriptedProvider{id: id, responses: responses}
}

func (p *scriptedProvider) ID() string { return p.id }

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if p.calls >= len(p.responses) {
		return providers.ChatResponse{}, errors.New("scriptedProvider: no more scripted responses")
	}
	r := p.responses[p.calls]
	p.calls++
	if r.err != nil {
		return providers.ChatResponse{}, r.err
	}
	return providers.ChatResponse{Content: r.content}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan providers.StreamChunk, error) {
	out := make(chan providers.StreamChunk)
	close(out)
	return out, nil
}

func (p *scriptedProvider) SupportsStreaming() bool      { return false }
func (p *scriptedProvider) ShouldIncludeRawOutput() bool { return false }
func (p *scriptedProvider) Close() error                 { return nil }
func (p *scriptedProvider) CalculateCost(in, out, cached int) types.CostInfo {
	return types.CostInfo{}
}

var _ providers.Provider = (*scriptedProvider)(nil)

// repeatingProvider answers every call with the same content, for tests
// that exercise the happy path across several sequential model calls
// (reasoning, plan extraction, synthesis) without scripting each one.
type repeatingProvider struct {
	id      string
	content string
}

func newRepeatingProvider(id, content string) *repeatingProvider {
	return &repeatingProvider{id: id, content: content}
}

func (p *repeatingProvider) ID() string { return p.id }

func (p *repeatingProvider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return providers.ChatResponse{Content: p.content}, nil
}

func (p *repeatingProvider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan providers.StreamChunk, error) {
	out := make(chan providers.StreamChunk)
	close(out)
	return out, nil
}

func (p *repeatingProvider) SupportsStreaming() bool      { return false }
func (p *repeatingProvider) ShouldIncludeRawOutput() bool { return false }
func (p *repeatingProvider) Close() error                 { return nil }
func (p *repeatingProvider) CalculateCost(in, out, cached int) types.CostInfo {
	return types.CostInfo{}
}

var _ providers.Provider = (*repeatingProvider)(nil)

// failingProvider always returns err, for tests that exercise total
// reasoning-tier failure.
type failingProvider struct {
	id  string
	err error
}

func (p *failingProvider) ID() string { return p.id }
func (p *failingProvider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return providers.ChatResponse{}, p.err
}
func (p *failingProvider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan providers.StreamChunk, error) {
	out := make(chan providers.StreamChunk)
	close(out)
	return out, nil
}
func (p *failingProvider) SupportsStreaming() bool      { return false }
func (p *failingProvider) ShouldIncludeRawOutput() bool { return false }
func (p *failingProvider) Close() error                 { return nil }
func (p *failingProvider) CalculateCost(in, out, cached int) types.CostInfo {
	return types.CostInfo{}
}

var _ providers.Provider = (*failingProvider)(nil)

// fakeSemanticBackend, fakeWebBackend, fakeTicketsBackend, fakeCalendarBackend
// are scripted tools.DomainAdapter backends standing in for real retrieval
// systems, so engine tests can drive Execute deterministically.

type fakeSemanticBackend struct {
	items []tools.SemanticSearchItem
	err   error
}

func (f *fakeSemanticBackend) Search(ctx context.Context, query string, topK int) ([]tools.SemanticSearchItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeWebBackend struct {
	payload tools.WebSearchPayload
	err     error
}

func (f *fakeWebBackend) Search(ctx context.Context, in tools.WebSearchInput) (tools.WebSearchPayload, error) {
	if f.err != nil {
		return tools.WebSearchPayload{}, f.err
	}
	return f.payload, nil
}

type fakeTicketsBackend struct {
	payload tools.TicketsAndDocsPayload
	err     error
}

func (f *fakeTicketsBackend) Run(ctx context.Context, task string) (tools.TicketsAndDocsPayload, error) {
	if f.err != nil {
		return tools.TicketsAndDocsPayload{}, f.err
	}
	return f.payload, nil
}

type fakeCalendarBackend struct{}

func (f *fakeCalendarBackend) Do(ctx context.Context, action tools.CalendarAction, args map[string]any) (any, error) {
	return map[string]any{"action": string(action)}, nil
}

// buildTestRegistry wires the four fake backends into a tools.DomainRegistry
// with pacing disabled, for deterministic tests.
func buildTestRegistry(semantic *fakeSemanticBackend, web *fakeWebBackend, ticketsDocs *fakeTicketsBackend) *tools.DomainRegistry {
	return tools.NewDomainRegistry(nil,
		tools.NewSemanticSearchAdapter(semantic),
		tools.NewWebSearchAdapter(web),
		tools.NewTicketsAndDocsAdapter(ticketsDocs),
		tools.NewCalendarAdapter(&fakeCalendarBackend{}),
	)
}
