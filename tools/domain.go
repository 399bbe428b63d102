package tools

import (
	"context"
	"fmt"
	"time"
)

// ToolID enumerates the closed set of tool families the Orchestration
// Engine can plan against (spec.md §4.4). New tools are added by extending
// this sum type, not by open subclassing (spec.md §9).
type ToolID string

// Tool families.
const (
	ToolSemanticSearch ToolID = "semantic_search"
	ToolWebSearch      ToolID = "web_search"
	ToolTicketsAndDocs ToolID = "tickets_and_docs"
	ToolCalendarOp     ToolID = "calendar_op"
)

// CalendarAction enumerates the calendar_op sub-actions.
type CalendarAction string

// Calendar sub-actions.
const (
	CalendarSchedule          CalendarAction = "schedule"
	CalendarCheckAvailability CalendarAction = "check_availability"
	CalendarFindTimes         CalendarAction = "find_times"
	CalendarGetCalendar       CalendarAction = "get_calendar"
)

// SemanticSearchInput is the input shape for the semantic_search family.
type SemanticSearchInput struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SemanticSearchItem is one ranked result from the semantic index.
type SemanticSearchItem struct {
	Content        string         `json:"content"`
	Score          float64        `json:"score"`
	SourceMetadata map[string]any `json:"source_metadata"`
}

// WebSearchInput is the input shape for the web_search family.
type WebSearchInput struct {
	Query     string   `json:"query"`
	MaxTokens int      `json:"max_tokens"`
	Recency   string   `json:"recency,omitempty"`
	Domains   []string `json:"domains,omitempty"`
}

// Citation backs a web_search claim.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchPayload is the output payload for web_search.
type WebSearchPayload struct {
	Content    string     `json:"content"`
	Citations  []Citation `json:"citations"`
	UsageUnits int        `json:"usage"`
}

// TicketsAndDocsInput is the input shape for the tickets_and_docs family.
type TicketsAndDocsInput struct {
	Task string `json:"task"`
}

// TicketDocType distinguishes the two source systems tickets_and_docs can
// surface.
type TicketDocType string

// Source document types.
const (
	DocTypeConfluence TicketDocType = "confluence"
	DocTypeJira       TicketDocType = "jira"
)

// TicketDocItem is one normalized ticket/doc result.
type TicketDocItem struct {
	Title   string        `json:"title"`
	URL     string        `json:"url"`
	Type    TicketDocType `json:"type"`
	Summary string        `json:"summary"`
}

// TicketsAndDocsPayload is the output payload for tickets_and_docs.
type TicketsAndDocsPayload struct {
	Status          string          `json:"status"`
	Data            []TicketDocItem `json:"data"`
	ExecutionMethod string          `json:"execution_method"`
}

// CalendarOpInput is the input shape for the calendar_op family.
type CalendarOpInput struct {
	Action CalendarAction `json:"action"`
	Args   map[string]any `json:"args"`
}

// DomainResult is the uniform result shape every tool family returns
// (spec.md §3 ToolResult, §4.4).
type DomainResult struct {
	ToolID    ToolID        `json:"tool_id"`
	InputEcho any           `json:"input_echo"`
	Success   bool          `json:"success"`
	Payload   any           `json:"payload"`
	Error     string        `json:"error,omitempty"`
	Citations []Citation    `json:"citations,omitempty"`
	Latency   time.Duration `json:"latency"`
	// Cause carries the underlying typed error for failed results, so the
	// registry's retry policy can classify it against the ErrTransient/
	// ErrAuth/ErrNotFound sentinels with errors.Is. Never serialized.
	Cause error `json:"-"`
}

// DomainAdapter is the uniform async contract each tool family implements
// (spec.md §6.3): call(inputs, deadline) -> ToolResult.
type DomainAdapter interface {
	ID() ToolID
	Call(ctx context.Context, deadline time.Time, input any) DomainResult
	// Idempotent reports whether retries are safe for this adapter
	// (spec.md §4.4: idempotent reads are retried, non-idempotent
	// operations are not).
	Idempotent() bool
}

// SemanticSearchBackend is the thing a semantic_search adapter wraps: a
// vector store search call.
type SemanticSearchBackend interface {
	Search(ctx context.Context, query string, topK int) ([]SemanticSearchItem, error)
}

// SemanticSearchAdapter wraps a vector store (spec.md §6.3).
type SemanticSearchAdapter struct {
	backend SemanticSearchBackend
}

// NewSemanticSearchAdapter builds the semantic_search tool family adapter.
func NewSemanticSearchAdapter(backend SemanticSearchBackend) *SemanticSearchAdapter {
	return &SemanticSearchAdapter{backend: backend}
}

// ID implements DomainAdapter.
func (a *SemanticSearchAdapter) ID() ToolID { return ToolSemanticSearch }

// Idempotent implements DomainAdapter: semantic search is a pure read.
func (a *SemanticSearchAdapter) Idempotent() bool { return true }

// Call implements DomainAdapter.
func (a *SemanticSearchAdapter) Call(ctx context.Context, deadline time.Time, input any) DomainResult {
	in, ok := input.(SemanticSearchInput)
	if !ok {
		return DomainResult{ToolID: ToolSemanticSearch, Success: false, Error: "invalid input type"}
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	items, err := a.backend.Search(ctx, in.Query, in.TopK)
	latency := time.Since(start)

	if err != nil {
		return DomainResult{ToolID: ToolSemanticSearch, InputEcho: in, Success: false, Error: err.Error(), Cause: err, Latency: latency}
	}

	// Empty results with no partial metadata is a failure for
	// semantic_search specifically (spec.md §8 property 12).
	if len(items) == 0 {
		return DomainResult{ToolID: ToolSemanticSearch, InputEcho: in, Success: false, Error: "no results", Cause: ErrNotFound, Payload: items, Latency: latency}
	}

	return DomainResult{ToolID: ToolSemanticSearch, InputEcho: in, Success: true, Payload: items, Latency: latency}
}

// WebSearchBackend is the thing a web_search adapter wraps: an external
// search API.
type WebSearchBackend interface {
	Search(ctx context.Context, in WebSearchInput) (WebSearchPayload, error)
}

// WebSearchAdapter wraps an external web search API (spec.md §6.3).
type WebSearchAdapter struct {
	backend WebSearchBackend
}

// NewWebSearchAdapter builds the web_search tool family adapter.
func NewWebSearchAdapter(backend WebSearchBackend) *WebSearchAdapter {
	return &WebSearchAdapter{backend: backend}
}

// ID implements DomainAdapter.
func (a *WebSearchAdapter) ID() ToolID { return ToolWebSearch }

// Idempotent implements DomainAdapter: search queries are safe to retry.
func (a *WebSearchAdapter) Idempotent() bool { return true }

// Call implements DomainAdapter.
func (a *WebSearchAdapter) Call(ctx context.Context, deadline time.Time, input any) DomainResult {
	in, ok := input.(WebSearchInput)
	if !ok {
		return DomainResult{ToolID: ToolWebSearch, Success: false, Error: "invalid input type"}
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	payload, err := a.backend.Search(ctx, in)
	latency := time.Since(start)

	if err != nil {
		return DomainResult{ToolID: ToolWebSearch, InputEcho: in, Success: false, Error: err.Error(), Cause: err, Latency: latency}
	}

	// web_search with empty content is always a failure (spec.md §8 property 12),
	// even if citations came back.
	success := payload.Content != ""
	result := DomainResult{ToolID: ToolWebSearch, InputEcho: in, Success: success, Payload: payload, Citations: payload.Citations, Latency: latency}
	if !success {
		result.Error = "empty content"
		result.Cause = ErrNotFound
	}
	return result
}

// TicketsAndDocsBackend is the thing a tickets_and_docs adapter wraps: a
// ticket-system/wiki backend.
type TicketsAndDocsBackend interface {
	Run(ctx context.Context, task string) (TicketsAndDocsPayload, error)
}

// TicketsAndDocsAdapter wraps a ticket+wiki system (spec.md §6.3).
type TicketsAndDocsAdapter struct {
	backend TicketsAndDocsBackend
}

// NewTicketsAndDocsAdapter builds the tickets_and_docs tool family adapter.
func NewTicketsAndDocsAdapter(backend TicketsAndDocsBackend) *TicketsAndDocsAdapter {
	return &TicketsAndDocsAdapter{backend: backend}
}

// ID implements DomainAdapter.
func (a *TicketsAndDocsAdapter) ID() ToolID { return ToolTicketsAndDocs }

// Idempotent implements DomainAdapter: natural-language task lookups are
// read-only.
func (a *TicketsAndDocsAdapter) Idempotent() bool { return true }

// Call implements DomainAdapter.
func (a *TicketsAndDocsAdapter) Call(ctx context.Context, deadline time.Time, input any) DomainResult {
	in, ok := input.(TicketsAndDocsInput)
	if !ok {
		return DomainResult{ToolID: ToolTicketsAndDocs, Success: false, Error: "invalid input type"}
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	payload, err := a.backend.Run(ctx, in.Task)
	latency := time.Since(start)

	if err != nil {
		return DomainResult{ToolID: ToolTicketsAndDocs, InputEcho: in, Success: false, Error: err.Error(), Cause: err, Latency: latency}
	}

	success := len(payload.Data) > 0
	result := DomainResult{ToolID: ToolTicketsAndDocs, InputEcho: in, Success: success, Payload: payload, Latency: latency}
	if !success {
		result.Error = "no tickets or documents found"
		result.Cause = ErrNotFound
	}
	return result
}

// CalendarBackend is the thing a calendar_op adapter wraps: a calendar API.
type CalendarBackend interface {
	Do(ctx context.Context, action CalendarAction, args map[string]any) (any, error)
}

// CalendarAdapter wraps a calendar API (spec.md §6.3).
type CalendarAdapter struct {
	backend CalendarBackend
}

// NewCalendarAdapter builds the calendar_op tool family adapter.
func NewCalendarAdapter(backend CalendarBackend) *CalendarAdapter {
	return &CalendarAdapter{backend: backend}
}

// ID implements DomainAdapter.
func (a *CalendarAdapter) ID() ToolID { return ToolCalendarOp }

// Idempotent implements DomainAdapter: only the read-only actions are
// idempotent; schedule mutates state and must not be retried.
func (a *CalendarAdapter) Idempotent() bool { return false }

// Call implements DomainAdapter.
func (a *CalendarAdapter) Call(ctx context.Context, deadline time.Time, input any) DomainResult {
	in, ok := input.(CalendarOpInput)
	if !ok {
		return DomainResult{ToolID: ToolCalendarOp, Success: false, Error: "invalid input type"}
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	result, err := a.backend.Do(ctx, in.Action, in.Args)
	latency := time.Since(start)

	if err != nil {
		return DomainResult{ToolID: ToolCalendarOp, InputEcho: in, Success: false, Error: err.Error(), Cause: err, Latency: latency}
	}
	return DomainResult{ToolID: ToolCalendarOp, InputEcho: in, Success: true, Payload: result, Latency: latency}
}

// DomainRegistry is the uniform façade over the four tool families
// (spec.md §4.4). It is a closed lookup, not an open plugin system.
type DomainRegistry struct {
	adapters map[ToolID]DomainAdapter
	gate     *RateGate
}

// NewDomainRegistry builds a registry from the given adapters, rate-gated
// per spec.md §5 (successive calls to the same model/tool spaced by a
// minimum interval).
func NewDomainRegistry(gate *RateGate, adapters ...DomainAdapter) *DomainRegistry {
	r := &DomainRegistry{adapters: make(map[ToolID]DomainAdapter, len(adapters)), gate: gate}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// Get returns the adapter for a tool family, or nil if unregistered.
func (r *DomainRegistry) Get(id ToolID) DomainAdapter {
	return r.adapters[id]
}

// Invoke calls the given tool family with retry/backoff for idempotent
// adapters (spec.md §4.4: base 1s, cap 10s, up to 3 attempts).
func (r *DomainRegistry) Invoke(ctx context.Context, id ToolID, deadline time.Time, input any) DomainResult {
	adapter := r.adapters[id]
	if adapter == nil {
		return DomainResult{ToolID: id, Success: false, Error: fmt.Sprintf("unknown tool: %s", id)}
	}

	if r.gate != nil {
		if err := r.gate.Wait(ctx); err != nil {
			return DomainResult{ToolID: id, Success: false, Error: err.Error()}
		}
	}

	if !adapter.Idempotent() {
		return adapter.Call(ctx, deadline, input)
	}

	return WithRetry(ctx, func(ctx context.Context) DomainResult {
		return adapter.Call(ctx, deadline, input)
	})
}
