package events

import "time"

// Emitter provides helpers for publishing runtime events with shared metadata.
type Emitter struct {
	bus            *EventBus
	runID          string
	sessionID      string
	conversationID string
}

// NewEmitter creates a new event emitter.
func NewEmitter(bus *EventBus, runID, sessionID, conversationID string) *Emitter {
	return &Emitter{
		bus:            bus,
		runID:          runID,
		sessionID:      sessionID,
		conversationID: conversationID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	event := &Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		RunID:          e.runID,
		SessionID:      e.sessionID,
		ConversationID: e.conversationID,
		Data:           data,
	}

	e.bus.Publish(event)
}

// RequestStarted emits the request.started event.
func (e *Emitter) RequestStarted(liveTurns int) {
	e.emit(EventRequestStarted, &RequestStartedData{
		LiveTurns: liveTurns,
	})
}

// RequestCompleted emits the request.completed event.
func (e *Emitter) RequestCompleted(data *RequestCompletedData) {
	if data == nil {
		return
	}
	e.emit(EventRequestCompleted, data)
}

// RequestFailed emits the request.failed event.
func (e *Emitter) RequestFailed(err error, duration time.Duration) {
	e.emit(EventRequestFailed, &RequestFailedData{
		Error:    err,
		Duration: duration,
	})
}

// StateEntered emits the state.entered event.
func (e *Emitter) StateEntered(state string, seq int) {
	e.emit(EventStateEntered, &StateEnteredData{
		State: state,
		Seq:   seq,
	})
}

// StateCompleted emits the state.completed event.
func (e *Emitter) StateCompleted(state string, seq int, duration time.Duration) {
	e.emit(EventStateCompleted, &StateCompletedData{
		State:    state,
		Seq:      seq,
		Duration: duration,
	})
}

// StateFailed emits the state.failed event.
func (e *Emitter) StateFailed(state string, seq int, err error, duration time.Duration) {
	e.emit(EventStateFailed, &StateFailedData{
		State:    state,
		Seq:      seq,
		Error:    err,
		Duration: duration,
	})
}

// WorkflowTransitioned emits the workflow.transitioned event.
func (e *Emitter) WorkflowTransitioned(fromState, toState, event, promptTask string) {
	e.emit(EventWorkflowTransitioned, &WorkflowTransitionedData{
		FromState:  fromState,
		ToState:    toState,
		Event:      event,
		PromptTask: promptTask,
	})
}

// WorkflowCompleted emits the workflow.completed event.
func (e *Emitter) WorkflowCompleted(finalState string, transitionCount int) {
	e.emit(EventWorkflowCompleted, &WorkflowCompletedData{
		FinalState:      finalState,
		TransitionCount: transitionCount,
	})
}

// ProviderCallStarted emits the provider.call.started event.
func (e *Emitter) ProviderCallStarted(provider, model string, messageCount, toolCount int) {
	e.emit(EventProviderCallStarted, &ProviderCallStartedData{
		Provider:     provider,
		Model:        model,
		MessageCount: messageCount,
		ToolCount:    toolCount,
	})
}

// ProviderCallCompleted emits the provider.call.completed event.
func (e *Emitter) ProviderCallCompleted(data *ProviderCallCompletedData) {
	if data == nil {
		return
	}
	e.emit(EventProviderCallCompleted, data)
}

// ProviderCallFailed emits the provider.call.failed event.
func (e *Emitter) ProviderCallFailed(provider, model string, err error, duration time.Duration) {
	e.emit(EventProviderCallFailed, &ProviderCallFailedData{
		Provider: provider,
		Model:    model,
		Error:    err,
		Duration: duration,
	})
}

// ToolCallStarted emits the tool.call.started event.
func (e *Emitter) ToolCallStarted(toolName, callID string, args map[string]interface{}) {
	e.emit(EventToolCallStarted, &ToolCallStartedData{
		ToolName: toolName,
		CallID:   callID,
		Args:     args,
	})
}

// ToolCallCompleted emits the tool.call.completed event.
func (e *Emitter) ToolCallCompleted(toolName, callID string, duration time.Duration, status string) {
	e.emit(EventToolCallCompleted, &ToolCallCompletedData{
		ToolName: toolName,
		CallID:   callID,
		Duration: duration,
		Status:   status,
	})
}

// ToolCallFailed emits the tool.call.failed event.
func (e *Emitter) ToolCallFailed(toolName, callID string, err error, duration time.Duration) {
	e.emit(EventToolCallFailed, &ToolCallFailedData{
		ToolName: toolName,
		CallID:   callID,
		Error:    err,
		Duration: duration,
	})
}

// ReplanTriggered emits the replan.triggered event.
func (e *Emitter) ReplanTriggered(iteration int, reason, substitutedTool string) {
	e.emit(EventReplanTriggered, &ReplanTriggeredData{
		Iteration:       iteration,
		Reason:          reason,
		SubstitutedTool: substitutedTool,
	})
}

// GuardrailPassed emits the guardrail.passed event.
func (e *Emitter) GuardrailPassed(name string, duration time.Duration) {
	e.emit(EventGuardrailPassed, &GuardrailPassedData{
		GuardrailName: name,
		Duration:      duration,
	})
}

// GuardrailFailed emits the guardrail.failed event.
func (e *Emitter) GuardrailFailed(name string, duration time.Duration, violations []string) {
	e.emit(EventGuardrailFailed, &GuardrailFailedData{
		GuardrailName: name,
		Duration:      duration,
		Violations:    violations,
	})
}

// ContextBuilt emits the context.built event.
func (e *Emitter) ContextBuilt(turnCount, tokenCount, tokenBudget int, truncated bool) {
	e.emit(EventContextBuilt, &ContextBuiltData{
		TurnCount:   turnCount,
		TokenCount:  tokenCount,
		TokenBudget: tokenBudget,
		Truncated:   truncated,
	})
}

// TokenBudgetExceeded emits the context.token_budget_exceeded event.
func (e *Emitter) TokenBudgetExceeded(required, budget, excess int) {
	e.emit(EventTokenBudgetExceeded, &TokenBudgetExceededData{
		RequiredTokens: required,
		Budget:         budget,
		Excess:         excess,
	})
}

// TurnCommitted emits the turn.committed event.
func (e *Emitter) TurnCommitted(speaker string, index, tokenCount int) {
	e.emit(EventTurnCommitted, &TurnCommittedData{
		Speaker:    speaker,
		Index:      index,
		TokenCount: tokenCount,
	})
}

// SummaryUpdated emits the summary.updated event.
func (e *Emitter) SummaryUpdated(coveredTurnCount, length int, degraded bool) {
	e.emit(EventSummaryUpdated, &SummaryUpdatedData{
		CoveredTurnCount: coveredTurnCount,
		Length:           length,
		Degraded:         degraded,
	})
}

// EntitiesStored emits the entities.stored event.
func (e *Emitter) EntitiesStored(extracted, stored, merged int) {
	e.emit(EventEntitiesStored, &EntitiesStoredData{
		Extracted: extracted,
		Stored:    stored,
		Merged:    merged,
	})
}

// ConversationLoaded emits the conversation.loaded event.
func (e *Emitter) ConversationLoaded(conversationID string, turnCount int) {
	e.emit(EventConversationLoaded, &ConversationLoadedData{
		ConversationID: conversationID,
		TurnCount:      turnCount,
	})
}

// ConversationSaved emits the conversation.saved event.
func (e *Emitter) ConversationSaved(conversationID string, turnCount int) {
	e.emit(EventConversationSaved, &ConversationSavedData{
		ConversationID: conversationID,
		TurnCount:      turnCount,
	})
}

// StreamInterrupted emits the stream.interrupted event.
func (e *Emitter) StreamInterrupted(reason string) {
	e.emit(EventStreamInterrupted, &StreamInterruptedData{
		Reason: reason,
	})
}

// EmitCustom allows any component to emit arbitrary event types with
// structured payloads.
func (e *Emitter) EmitCustom(
	eventType EventType,
	source, eventName string,
	data map[string]interface{},
	message string,
) {
	e.emit(eventType, &CustomEventData{
		Source:    source,
		EventName: eventName,
		Data:      data,
		Message:   message,
	})
}
