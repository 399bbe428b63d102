package events

import "time"

// EventType identifies the type of event emitted by the runtime.
type EventType string

const (
	// EventRequestStarted marks the start of one orchestration request.
	EventRequestStarted EventType = "request.started"
	// EventRequestCompleted marks a request that resolved with an answer.
	EventRequestCompleted EventType = "request.completed"
	// EventRequestFailed marks a request that ended without an answer.
	EventRequestFailed EventType = "request.failed"

	// EventStateEntered marks entry into an engine state.
	EventStateEntered EventType = "state.entered"
	// EventStateCompleted marks an engine state finishing normally.
	EventStateCompleted EventType = "state.completed"
	// EventStateFailed marks an engine state ending in failure.
	EventStateFailed EventType = "state.failed"

	// EventWorkflowTransitioned marks one state-machine transition.
	EventWorkflowTransitioned EventType = "workflow.transitioned"
	// EventWorkflowCompleted marks the state machine reaching a terminal state.
	EventWorkflowCompleted EventType = "workflow.completed"

	// EventProviderCallStarted marks provider call start.
	EventProviderCallStarted EventType = "provider.call.started"
	// EventProviderCallCompleted marks provider call completion.
	EventProviderCallCompleted EventType = "provider.call.completed"
	// EventProviderCallFailed marks provider call failure.
	EventProviderCallFailed EventType = "provider.call.failed"

	// EventToolCallStarted marks tool call start.
	EventToolCallStarted EventType = "tool.call.started"
	// EventToolCallCompleted marks tool call completion.
	EventToolCallCompleted EventType = "tool.call.completed"
	// EventToolCallFailed marks tool call failure.
	EventToolCallFailed EventType = "tool.call.failed"

	// EventReplanTriggered marks a replanning iteration being started.
	EventReplanTriggered EventType = "replan.triggered"

	// EventGuardrailPassed marks an output guardrail check that passed.
	EventGuardrailPassed EventType = "guardrail.passed"
	// EventGuardrailFailed marks an output guardrail check that rewrote or
	// rejected the candidate answer.
	EventGuardrailFailed EventType = "guardrail.failed"

	// EventContextBuilt marks hybrid-history construction.
	EventContextBuilt EventType = "context.built"
	// EventTokenBudgetExceeded marks a live window that could not fit its
	// token budget.
	EventTokenBudgetExceeded EventType = "context.token_budget_exceeded"

	// EventTurnCommitted marks a turn being committed to conversation memory.
	EventTurnCommitted EventType = "turn.committed"
	// EventSummaryUpdated marks the long-term summary being replaced.
	EventSummaryUpdated EventType = "summary.updated"
	// EventEntitiesStored marks a batch of entities being upserted.
	EventEntitiesStored EventType = "entities.stored"

	// EventConversationLoaded marks conversation state load.
	EventConversationLoaded EventType = "conversation.loaded"
	// EventConversationSaved marks conversation state save.
	EventConversationSaved EventType = "conversation.saved"

	// EventStreamInterrupted marks a stream interruption.
	EventStreamInterrupted EventType = "stream.interrupted"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a runtime event delivered to listeners.
type Event struct {
	Type           EventType
	Timestamp      time.Time
	RunID          string
	SessionID      string
	ConversationID string
	Data           EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {
	// marker method to satisfy EventData
}

// RequestStartedData contains data for request start events.
type RequestStartedData struct {
	baseEventData
	LiveTurns int
}

// RequestCompletedData contains data for request completion events.
type RequestCompletedData struct {
	baseEventData
	Duration     time.Duration
	Confidence   string
	ToolCalls    int
	ReplanCount  int
	TotalCost    float64
	InputTokens  int
	OutputTokens int
}

// RequestFailedData contains data for request failure events.
type RequestFailedData struct {
	baseEventData
	Error    error
	Duration time.Duration
}

// StateEnteredData contains data for engine state entry events.
type StateEnteredData struct {
	baseEventData
	State string
	Seq   int
}

// StateCompletedData contains data for engine state completion events.
type StateCompletedData struct {
	baseEventData
	State    string
	Seq      int
	Duration time.Duration
}

// StateFailedData contains data for engine state failure events.
type StateFailedData struct {
	baseEventData
	State    string
	Seq      int
	Error    error
	Duration time.Duration
}

// WorkflowTransitionedData contains data for state-machine transition events.
type WorkflowTransitionedData struct {
	baseEventData
	FromState  string
	ToState    string
	Event      string
	PromptTask string
}

// WorkflowCompletedData contains data for state-machine completion events.
type WorkflowCompletedData struct {
	baseEventData
	FinalState      string
	TransitionCount int
}

// ProviderCallStartedData contains data for provider call start events.
type ProviderCallStartedData struct {
	baseEventData
	Provider     string
	Model        string
	MessageCount int
	ToolCount    int
}

// ProviderCallCompletedData contains data for provider call completion events.
type ProviderCallCompletedData struct {
	baseEventData
	Provider      string
	Model         string
	Duration      time.Duration
	InputTokens   int
	OutputTokens  int
	CachedTokens  int
	Cost          float64
	FinishReason  string
	ToolCallCount int
}

// ProviderCallFailedData contains data for provider call failure events.
type ProviderCallFailedData struct {
	baseEventData
	Provider string
	Model    string
	Error    error
	Duration time.Duration
}

// ToolCallStartedData contains data for tool call start events.
type ToolCallStartedData struct {
	baseEventData
	ToolName string
	CallID   string
	Args     map[string]interface{}
}

// ToolCallCompletedData contains data for tool call completion events.
type ToolCallCompletedData struct {
	baseEventData
	ToolName string
	CallID   string
	Duration time.Duration
	Status   string // e.g. "success", "error", "pending"
}

// ToolCallFailedData contains data for tool call failure events.
type ToolCallFailedData struct {
	baseEventData
	ToolName string
	CallID   string
	Error    error
	Duration time.Duration
}

// ReplanTriggeredData contains data for replanning events.
type ReplanTriggeredData struct {
	baseEventData
	Iteration       int
	Reason          string
	SubstitutedTool string
}

// GuardrailPassedData contains data for guardrail success events.
type GuardrailPassedData struct {
	baseEventData
	GuardrailName string
	Duration      time.Duration
}

// GuardrailFailedData contains data for guardrail rejection events.
type GuardrailFailedData struct {
	baseEventData
	GuardrailName string
	Duration      time.Duration
	Violations    []string
}

// ContextBuiltData contains data for hybrid-history construction events.
type ContextBuiltData struct {
	baseEventData
	TurnCount   int
	TokenCount  int
	TokenBudget int
	Truncated   bool
}

// TokenBudgetExceededData contains data for token budget exceeded events.
type TokenBudgetExceededData struct {
	baseEventData
	RequiredTokens int
	Budget         int
	Excess         int
}

// TurnCommittedData contains data for turn commit events.
type TurnCommittedData struct {
	baseEventData
	Speaker    string
	Index      int
	TokenCount int
}

// SummaryUpdatedData contains data for long-term summary replacement events.
type SummaryUpdatedData struct {
	baseEventData
	CoveredTurnCount int
	Length           int
	Degraded         bool
}

// EntitiesStoredData contains data for entity upsert batch events.
type EntitiesStoredData struct {
	baseEventData
	Extracted int
	Stored    int
	Merged    int
}

// ConversationLoadedData contains data for conversation load events.
type ConversationLoadedData struct {
	baseEventData
	ConversationID string
	TurnCount      int
}

// ConversationSavedData contains data for conversation save events.
type ConversationSavedData struct {
	baseEventData
	ConversationID string
	TurnCount      int
}

// StreamInterruptedData contains data for stream interruption events.
type StreamInterruptedData struct {
	baseEventData
	Reason string
}

// CustomEventData allows any component to emit arbitrary structured events.
type CustomEventData struct {
	baseEventData
	Source    string
	EventName string
	Data      map[string]interface{}
	Message   string
}
