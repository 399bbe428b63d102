package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/relaychat/conductor/events"
)

// newTestListener returns a listener, in-memory exporter, and TracerProvider for tests.
func newTestListener(t *testing.T) (*OTelEventListener, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tracer := tp.Tracer(InstrumentationName)
	listener := NewOTelEventListener(tracer)
	return listener, exp, tp
}

// flushAndGetSpans forces span export and returns spans.
// ForceFlush ensures all ended spans are exported; we read them before Shutdown
// because InMemoryExporter.Shutdown resets the buffer.
func flushAndGetSpans(t *testing.T, tp *sdktrace.TracerProvider, exp *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exp.GetSpans()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	return spans
}

// findSpan finds a span by name in the stubs or fails.
func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not found in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

// hasAttr checks if a span has an attribute with the given key and string value.
func hasAttr(span tracetest.SpanStub, key, want string) bool {
	for _, a := range span.Attributes {
		if string(a.Key) == key && a.Value.AsString() == want {
			return true
		}
	}
	return false
}

func TestOTelEventListener_SessionLifecycle(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.StartSession(context.Background(), "sess-1")
	listener.EndSession("sess-1")

	spans := flushAndGetSpans(t, tp, exp)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != "conductor.session" {
		t.Errorf("expected span name 'conductor.session', got %q", s.Name)
	}
	if !hasAttr(s, "session.id", "sess-1") {
		t.Error("expected session.id attribute")
	}
}

func TestOTelEventListener_RequestSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventRequestStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.RequestStartedData{LiveTurns: 2},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventRequestCompleted, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.RequestCompletedData{
			Duration: time.Second, TotalCost: 0.01,
			InputTokens: 100, OutputTokens: 50,
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	requestSpan := findSpan(t, spans, "conductor.request")
	if requestSpan.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", requestSpan.Status.Code)
	}

	// Verify parent relationship.
	sessionSpan := findSpan(t, spans, "conductor.session")
	if requestSpan.Parent.SpanID() != sessionSpan.SpanContext.SpanID() {
		t.Error("request span should be child of session span")
	}
}

func TestOTelEventListener_RequestFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventRequestStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.RequestStartedData{},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventRequestFailed, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.RequestFailedData{
			Duration: time.Second, Error: errors.New("boom"),
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	requestSpan := findSpan(t, spans, "conductor.request")
	if requestSpan.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", requestSpan.Status.Code)
	}
	if requestSpan.Status.Description != "boom" {
		t.Errorf("expected error description 'boom', got %q", requestSpan.Status.Description)
	}
}

func TestOTelEventListener_ProviderSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ProviderCallStartedData{
			Provider: "openai", Model: "gpt-4",
			MessageCount: 5, ToolCount: 2,
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallCompleted, Timestamp: now.Add(500 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ProviderCallCompletedData{
			Provider: "openai", Model: "gpt-4",
			Duration:    500 * time.Millisecond,
			InputTokens: 100, OutputTokens: 50,
			Cost: 0.01, FinishReason: "stop",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	providerSpan := findSpan(t, spans, "conductor.provider.openai")
	if !hasAttr(providerSpan, "gen_ai.system", "openai") {
		t.Error("expected gen_ai.system attribute")
	}
	if !hasAttr(providerSpan, "gen_ai.request.model", "gpt-4") {
		t.Error("expected gen_ai.request.model attribute")
	}
	if providerSpan.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", providerSpan.Status.Code)
	}
}

func TestOTelEventListener_ProviderFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ProviderCallStartedData{Provider: "openai", Model: "gpt-4"},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallFailed, Timestamp: now.Add(100 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ProviderCallFailedData{
			Provider: "openai", Model: "gpt-4",
			Duration: 100 * time.Millisecond, Error: errors.New("rate limited"),
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	providerSpan := findSpan(t, spans, "conductor.provider.openai")
	if providerSpan.Status.Code != codes.Error {
		t.Error("expected Error status")
	}
	if providerSpan.Status.Description != "rate limited" {
		t.Errorf("expected 'rate limited', got %q", providerSpan.Status.Description)
	}
}

func TestOTelEventListener_ToolSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventToolCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ToolCallStartedData{
			ToolName: "search", CallID: "call-123",
			Args: map[string]interface{}{"query": "test"},
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventToolCallCompleted, Timestamp: now.Add(100 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ToolCallCompletedData{
			ToolName: "search", CallID: "call-123",
			Duration: 100 * time.Millisecond, Status: "success",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	toolSpan := findSpan(t, spans, "conductor.tool.search")
	if !hasAttr(toolSpan, "tool.call_id", "call-123") {
		t.Error("expected tool.call_id attribute")
	}
	if !hasAttr(toolSpan, "tool.status", "success") {
		t.Error("expected tool.status attribute")
	}
}

func TestOTelEventListener_ToolFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventToolCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ToolCallStartedData{ToolName: "search", CallID: "call-1"},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventToolCallFailed, Timestamp: now.Add(100 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ToolCallFailedData{
			ToolName: "search", CallID: "call-1",
			Duration: 100 * time.Millisecond, Error: errors.New("tool failed"),
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	toolSpan := findSpan(t, spans, "conductor.tool.search")
	if toolSpan.Status.Code != codes.Error {
		t.Error("expected Error status")
	}
}

func TestOTelEventListener_StateSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventStateEntered, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.StateEnteredData{State: "analyzing", Seq: 0},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventStateCompleted, Timestamp: now.Add(50 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.StateCompletedData{
			State: "analyzing", Seq: 0, Duration: 50 * time.Millisecond,
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	stSpan := findSpan(t, spans, "conductor.state.analyzing")
	if stSpan.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", stSpan.Status.Code)
	}
}

func TestOTelEventListener_StateFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventStateEntered, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.StateEnteredData{State: "analyzing", Seq: 0},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventStateFailed, Timestamp: now.Add(50 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.StateFailedData{
			State: "analyzing", Seq: 0,
			Duration: 50 * time.Millisecond, Error: errors.New("analysis failed"),
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	stSpan := findSpan(t, spans, "conductor.state.analyzing")
	if stSpan.Status.Code != codes.Error {
		t.Error("expected Error status")
	}
}

func TestOTelEventListener_TurnCommitted_OnRequest(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventRequestStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.RequestStartedData{},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventTurnCommitted, Timestamp: now.Add(100 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.TurnCommittedData{Speaker: "user", Index: 0, TokenCount: 3},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventRequestCompleted, Timestamp: now.Add(500 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.RequestCompletedData{
			Duration: 500 * time.Millisecond, Confidence: "high",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	requestSpan := findSpan(t, spans, "conductor.request")
	if len(requestSpan.Events) != 1 {
		t.Fatalf("expected 1 span event, got %d", len(requestSpan.Events))
	}
	if requestSpan.Events[0].Name != "conversation.user.turn" {
		t.Errorf("expected conversation.user.turn, got %q", requestSpan.Events[0].Name)
	}

	// Check token_count attribute is present.
	found := false
	for _, a := range requestSpan.Events[0].Attributes {
		if string(a.Key) == "conversation.token_count" && a.Value.AsInt64() == 3 {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected conversation.token_count=3 attribute on turn event")
	}
}

func TestOTelEventListener_TurnCommitted_FallsBackToSession(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	// Turn without active request span falls back to session root.
	listener.OnEvent(&events.Event{
		Type: events.EventTurnCommitted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.TurnCommittedData{Speaker: "user", Index: 0, TokenCount: 4},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	sessionSpan := findSpan(t, spans, "conductor.session")
	if len(sessionSpan.Events) != 1 {
		t.Fatalf("expected 1 event on session span, got %d", len(sessionSpan.Events))
	}
	if sessionSpan.Events[0].Name != "conversation.user.turn" {
		t.Errorf("expected conversation.user.turn, got %q", sessionSpan.Events[0].Name)
	}
}

func TestOTelEventListener_WorkflowTransition(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventWorkflowTransitioned, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.WorkflowTransitionedData{
			FromState: "greeting", ToState: "issue_triage",
			Event: "issue_reported", PromptTask: "triage the issue",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	wfSpan := findSpan(t, spans, "conductor.workflow.transition")
	if !hasAttr(wfSpan, "workflow.from_state", "greeting") {
		t.Error("expected workflow.from_state attribute")
	}
	if !hasAttr(wfSpan, "workflow.to_state", "issue_triage") {
		t.Error("expected workflow.to_state attribute")
	}
}

func TestOTelEventListener_WorkflowCompleted(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventWorkflowCompleted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.WorkflowCompletedData{FinalState: "resolved", TransitionCount: 5},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	wfSpan := findSpan(t, spans, "conductor.workflow.completed")
	if wfSpan.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", wfSpan.Status.Code)
	}
	if !hasAttr(wfSpan, "workflow.final_state", "resolved") {
		t.Error("expected workflow.final_state attribute")
	}

	// Check transition_count int attribute.
	found := false
	for _, a := range wfSpan.Attributes {
		if string(a.Key) == "workflow.transition_count" && a.Value.AsInt64() == 5 {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected workflow.transition_count=5")
	}
}

func TestOTelEventListener_ToolNilArgs(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventToolCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ToolCallStartedData{ToolName: "noop", CallID: "call-nil"},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventToolCallCompleted, Timestamp: now.Add(10 * time.Millisecond),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ToolCallCompletedData{
			ToolName: "noop", CallID: "call-nil",
			Duration: 10 * time.Millisecond, Status: "success",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	toolSpan := findSpan(t, spans, "conductor.tool.noop")
	for _, a := range toolSpan.Attributes {
		if string(a.Key) == "tool.args" {
			t.Error("expected no tool.args attribute when Args is nil")
		}
	}
}

func TestOTelEventListener_ParentTraceContext(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	// Create a parent span to verify nesting.
	tracer := tp.Tracer("test")
	parentCtx, parentSpan := tracer.Start(context.Background(), "parent-operation")

	listener.StartSession(parentCtx, "sess-1")
	listener.EndSession("sess-1")
	parentSpan.End()

	spans := flushAndGetSpans(t, tp, exp)
	sessionSpan := findSpan(t, spans, "conductor.session")
	parent := findSpan(t, spans, "parent-operation")

	if sessionSpan.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("session span should be child of parent span")
	}
	if sessionSpan.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("session span should share trace ID with parent")
	}
}

func TestOTelEventListener_EndSession_Idempotent(t *testing.T) {
	listener, _, tp := newTestListener(t)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	listener.StartSession(context.Background(), "sess-1")
	listener.EndSession("sess-1")
	// Second call should not panic.
	listener.EndSession("sess-1")
}

func TestOTelEventListener_UnknownEventType(t *testing.T) {
	listener, _, tp := newTestListener(t)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	listener.StartSession(context.Background(), "sess-1")

	// Should not panic on unhandled event types.
	listener.OnEvent(&events.Event{
		Type:      events.EventContextBuilt,
		SessionID: "sess-1", RunID: "run-1",
	})

	listener.EndSession("sess-1")
}

func TestOTelEventListener_SpanAttributes(t *testing.T) {
	// Verify specific attribute values on completed provider span.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ProviderCallStartedData{
			Provider: "anthropic", Model: "claude-3",
			MessageCount: 3, ToolCount: 1,
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallCompleted, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", RunID: "run-1",
		Data: &events.ProviderCallCompletedData{
			Provider: "anthropic", Model: "claude-3",
			Duration:     time.Second,
			InputTokens:  200,
			OutputTokens: 100,
			Cost:         0.005,
			FinishReason: "end_turn",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	provSpan := findSpan(t, spans, "conductor.provider.anthropic")

	// Check numeric attributes.
	attrMap := make(map[string]attribute.Value)
	for _, a := range provSpan.Attributes {
		attrMap[string(a.Key)] = a.Value
	}

	if v, ok := attrMap["gen_ai.usage.input_tokens"]; !ok || v.AsInt64() != 200 {
		t.Errorf("expected gen_ai.usage.input_tokens=200, got %v", attrMap["gen_ai.usage.input_tokens"])
	}
	if v, ok := attrMap["gen_ai.usage.output_tokens"]; !ok || v.AsInt64() != 100 {
		t.Errorf("expected gen_ai.usage.output_tokens=100, got %v", attrMap["gen_ai.usage.output_tokens"])
	}
	if v, ok := attrMap["gen_ai.response.finish_reason"]; !ok || v.AsString() != "end_turn" {
		t.Errorf("expected gen_ai.response.finish_reason=end_turn, got %v", attrMap["gen_ai.response.finish_reason"])
	}
	if v, ok := attrMap["provider.cost"]; !ok || v.AsFloat64() != 0.005 {
		t.Errorf("expected provider.cost=0.005, got %v", attrMap["provider.cost"])
	}
}

func TestOTelEventListener_OutOfOrderDelivery(t *testing.T) {
	// Verify that a "completed" event arriving before "started" still produces a valid span.
	// This happens because EventBus dispatches each Publish() in a separate goroutine.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	// Send completed BEFORE started (simulates async race).
	listener.OnEvent(&events.Event{
		Type: events.EventRequestCompleted, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", RunID: "run-1",
		Data: events.RequestCompletedData{
			Duration: time.Second, TotalCost: 0.01,
			InputTokens: 100, OutputTokens: 50,
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventRequestStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	reqSpan := findSpan(t, spans, "conductor.request")
	if reqSpan.Status.Code != codes.Ok {
		t.Errorf("expected OK status, got %v", reqSpan.Status.Code)
	}

	// Verify completion attributes were applied.
	attrMap := make(map[string]attribute.Value)
	for _, a := range reqSpan.Attributes {
		attrMap[string(a.Key)] = a.Value
	}
	if v, ok := attrMap["request.total_cost"]; !ok || v.AsFloat64() != 0.01 {
		t.Errorf("expected request.total_cost=0.01, got %v", attrMap["request.total_cost"])
	}
}

func TestOTelEventListener_OutOfOrderFailed(t *testing.T) {
	// Verify that a "failed" event arriving before "started" produces a span with error status.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.StartSession(context.Background(), "sess-1")

	// Send failed BEFORE started.
	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallFailed, Timestamp: now.Add(time.Second),
		SessionID: "sess-1", RunID: "run-1",
		Data: events.ProviderCallFailedData{
			Provider: "test", Model: "test-model",
			Error: errors.New("timeout"), Duration: time.Second,
		},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventProviderCallStarted, Timestamp: now,
		SessionID: "sess-1", RunID: "run-1",
		Data: events.ProviderCallStartedData{
			Provider: "test", Model: "test-model",
		},
	})

	listener.EndSession("sess-1")
	spans := flushAndGetSpans(t, tp, exp)

	provSpan := findSpan(t, spans, "conductor.provider.test")
	if provSpan.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", provSpan.Status.Code)
	}
	if provSpan.Status.Description != "timeout" {
		t.Errorf("expected error message 'timeout', got %q", provSpan.Status.Description)
	}
}
