package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/relaychat/conductor/events"
)

func TestRecordStateDuration(t *testing.T) {
	// Reset metrics for test isolation
	stateDuration.Reset()

	RecordStateDuration("analyzing", "success", 0.5)
	RecordStateDuration("analyzing", "success", 1.0)
	RecordStateDuration("executing", "error", 0.2)

	// Verify histogram count using CollectAndCount
	count := testutil.CollectAndCount(stateDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}
}

func TestRecordRequestStartEnd(t *testing.T) {
	requestsActive.Set(0)
	requestDuration.Reset()

	RecordRequestStart()
	active := testutil.ToFloat64(requestsActive)
	if active != 1 {
		t.Errorf("Expected 1 active request, got %f", active)
	}

	RecordRequestStart()
	active = testutil.ToFloat64(requestsActive)
	if active != 2 {
		t.Errorf("Expected 2 active requests, got %f", active)
	}

	RecordRequestEnd("success", 5.0)
	active = testutil.ToFloat64(requestsActive)
	if active != 1 {
		t.Errorf("Expected 1 active request after end, got %f", active)
	}

	RecordRequestEnd("error", 2.0)
	active = testutil.ToFloat64(requestsActive)
	if active != 0 {
		t.Errorf("Expected 0 active requests after end, got %f", active)
	}
}

func TestRecordConfidence(t *testing.T) {
	requestConfidenceTotal.Reset()

	RecordConfidence("high")
	RecordConfidence("high")
	RecordConfidence("low")
	RecordConfidence("") // ignored

	highCount := testutil.ToFloat64(requestConfidenceTotal.WithLabelValues("high"))
	lowCount := testutil.ToFloat64(requestConfidenceTotal.WithLabelValues("low"))

	if highCount != 2 {
		t.Errorf("Expected 2 high-confidence answers, got %f", highCount)
	}
	if lowCount != 1 {
		t.Errorf("Expected 1 low-confidence answer, got %f", lowCount)
	}
}

func TestRecordReplanIteration(t *testing.T) {
	before := testutil.ToFloat64(replanIterationsTotal)

	RecordReplanIteration()
	RecordReplanIteration()

	after := testutil.ToFloat64(replanIterationsTotal)
	if after-before != 2 {
		t.Errorf("Expected 2 replan iterations recorded, got %f", after-before)
	}
}

func TestRecordProviderRequest(t *testing.T) {
	providerRequestDuration.Reset()
	providerRequestsTotal.Reset()

	RecordProviderRequest("azure-openai", "gpt-4o", "success", 1.5)
	RecordProviderRequest("bedrock", "claude-3-haiku", "error", 0.5)

	successCount := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("azure-openai", "gpt-4o", "success"))
	errorCount := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("bedrock", "claude-3-haiku", "error"))

	if successCount != 1 {
		t.Errorf("Expected 1 success request, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error request, got %f", errorCount)
	}
}

func TestRecordProviderTokens(t *testing.T) {
	providerTokensTotal.Reset()

	RecordProviderTokens("azure-openai", "gpt-4o", 100, 50, 20)
	RecordProviderTokens("azure-openai", "gpt-4o", 200, 100, 0)

	inputTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("azure-openai", "gpt-4o", "input"))
	outputTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("azure-openai", "gpt-4o", "output"))
	cachedTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("azure-openai", "gpt-4o", "cached"))

	if inputTokens != 300 {
		t.Errorf("Expected 300 input tokens, got %f", inputTokens)
	}
	if outputTokens != 150 {
		t.Errorf("Expected 150 output tokens, got %f", outputTokens)
	}
	if cachedTokens != 20 {
		t.Errorf("Expected 20 cached tokens, got %f", cachedTokens)
	}
}

func TestRecordProviderTokensZeroValues(t *testing.T) {
	providerTokensTotal.Reset()

	// Should not record zero values
	RecordProviderTokens("test", "model", 0, 0, 0)

	inputTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("test", "model", "input"))
	outputTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("test", "model", "output"))
	cachedTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("test", "model", "cached"))

	if inputTokens != 0 {
		t.Errorf("Expected 0 input tokens for zero value, got %f", inputTokens)
	}
	if outputTokens != 0 {
		t.Errorf("Expected 0 output tokens for zero value, got %f", outputTokens)
	}
	if cachedTokens != 0 {
		t.Errorf("Expected 0 cached tokens for zero value, got %f", cachedTokens)
	}
}

func TestRecordProviderCost(t *testing.T) {
	providerCostTotal.Reset()

	RecordProviderCost("azure-openai", "gpt-4o", 0.05)
	RecordProviderCost("azure-openai", "gpt-4o", 0.03)
	RecordProviderCost("bedrock", "claude-3-haiku", 0.10)

	azureCost := testutil.ToFloat64(providerCostTotal.WithLabelValues("azure-openai", "gpt-4o"))
	bedrockCost := testutil.ToFloat64(providerCostTotal.WithLabelValues("bedrock", "claude-3-haiku"))

	if azureCost != 0.08 {
		t.Errorf("Expected 0.08 azure cost, got %f", azureCost)
	}
	if bedrockCost != 0.10 {
		t.Errorf("Expected 0.10 bedrock cost, got %f", bedrockCost)
	}
}

func TestRecordProviderCostZero(t *testing.T) {
	providerCostTotal.Reset()

	// Should not record zero cost
	RecordProviderCost("test", "model", 0)
	RecordProviderCost("test", "model", -0.01) // Negative should also be ignored

	cost := testutil.ToFloat64(providerCostTotal.WithLabelValues("test", "model"))
	if cost != 0 {
		t.Errorf("Expected 0 cost for zero/negative value, got %f", cost)
	}
}

func TestRecordToolCall(t *testing.T) {
	toolCallDuration.Reset()
	toolCallsTotal.Reset()

	RecordToolCall("web_search", "success", 2.5)
	RecordToolCall("tickets_and_docs", "error", 1.0)
	RecordToolCall("web_search", "success", 1.5)

	successCount := testutil.ToFloat64(toolCallsTotal.WithLabelValues("web_search", "success"))
	errorCount := testutil.ToFloat64(toolCallsTotal.WithLabelValues("tickets_and_docs", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 success tool calls, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error tool call, got %f", errorCount)
	}
}

func TestRecordGuardrail(t *testing.T) {
	guardrailDuration.Reset()
	guardrailChecksTotal.Reset()

	RecordGuardrail("raw_json_leak", "passed", 0.01)
	RecordGuardrail("banned_words", "failed", 0.005)
	RecordGuardrail("raw_json_leak", "passed", 0.02)

	passedCount := testutil.ToFloat64(guardrailChecksTotal.WithLabelValues("raw_json_leak", "passed"))
	failedCount := testutil.ToFloat64(guardrailChecksTotal.WithLabelValues("banned_words", "failed"))

	if passedCount != 2 {
		t.Errorf("Expected 2 passed guardrail checks, got %f", passedCount)
	}
	if failedCount != 1 {
		t.Errorf("Expected 1 failed guardrail check, got %f", failedCount)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterWriteSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_counter",
		Help: "Snapshot counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9096", reg)

	var sb strings.Builder
	err := exporter.WriteSnapshot(&sb)
	if err != nil {
		t.Fatalf("Expected no error writing snapshot, got %v", err)
	}

	if !strings.Contains(sb.String(), "snapshot_counter 1") {
		t.Errorf("Expected snapshot to contain snapshot_counter, got %q", sb.String())
	}
}

func TestExporterGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gather_counter",
		Help: "Gather counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9097", reg)

	families, err := exporter.Gather()
	if err != nil {
		t.Fatalf("Expected no error gathering, got %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("Expected 1 metric family, got %d", len(families))
	}
	if families[0].GetName() != "gather_counter" {
		t.Errorf("Expected gather_counter family, got %s", families[0].GetName())
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	err := exporter.Register(counter)
	if err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	// Registering again should fail
	err = exporter.Register(counter)
	if err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9095", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "must_register_counter",
		Help: "Must register counter",
	})

	// Should not panic
	exporter.MustRegister(counter)
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	// Start in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := exporter.Shutdown(ctx)
	if err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	// Start should have returned with ErrServerClosed
	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	// Second start should return nil immediately
	err := exporter.Start()
	if err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}

func TestMetricsListener(t *testing.T) {
	// Reset all metrics
	requestsActive.Set(0)
	requestDuration.Reset()
	requestConfidenceTotal.Reset()
	stateDuration.Reset()
	providerRequestDuration.Reset()
	providerRequestsTotal.Reset()
	providerTokensTotal.Reset()
	providerCostTotal.Reset()
	toolCallDuration.Reset()
	toolCallsTotal.Reset()
	guardrailDuration.Reset()
	guardrailChecksTotal.Reset()

	listener := NewMetricsListener()

	// Test request started
	listener.Handle(&events.Event{
		Type: events.EventRequestStarted,
		Data: &events.RequestStartedData{},
	})
	active := testutil.ToFloat64(requestsActive)
	if active != 1 {
		t.Errorf("Expected 1 active request after start event, got %f", active)
	}

	// Test request completed
	listener.Handle(&events.Event{
		Type: events.EventRequestCompleted,
		Data: &events.RequestCompletedData{
			Duration:   5 * time.Second,
			Confidence: "high",
		},
	})
	active = testutil.ToFloat64(requestsActive)
	if active != 0 {
		t.Errorf("Expected 0 active requests after completed event, got %f", active)
	}
	highConfidence := testutil.ToFloat64(requestConfidenceTotal.WithLabelValues("high"))
	if highConfidence != 1 {
		t.Errorf("Expected 1 high-confidence answer, got %f", highConfidence)
	}

	// Test request failed
	requestsActive.Inc() // Simulate another request start
	listener.Handle(&events.Event{
		Type: events.EventRequestFailed,
		Data: &events.RequestFailedData{
			Duration: 2 * time.Second,
		},
	})
	active = testutil.ToFloat64(requestsActive)
	if active != 0 {
		t.Errorf("Expected 0 active requests after failed event, got %f", active)
	}

	// Test state completed
	listener.Handle(&events.Event{
		Type: events.EventStateCompleted,
		Data: &events.StateCompletedData{
			State:    "executing",
			Seq:      2,
			Duration: 500 * time.Millisecond,
		},
	})
	stateCount := testutil.CollectAndCount(stateDuration)
	if stateCount == 0 {
		t.Error("Expected state duration observation after completed event")
	}

	// Test replan triggered
	replanBefore := testutil.ToFloat64(replanIterationsTotal)
	listener.Handle(&events.Event{
		Type: events.EventReplanTriggered,
		Data: &events.ReplanTriggeredData{Iteration: 1, Reason: "all calls failed"},
	})
	replanAfter := testutil.ToFloat64(replanIterationsTotal)
	if replanAfter-replanBefore != 1 {
		t.Errorf("Expected 1 replan iteration, got %f", replanAfter-replanBefore)
	}

	// Test provider call completed
	listener.Handle(&events.Event{
		Type: events.EventProviderCallCompleted,
		Data: &events.ProviderCallCompletedData{
			Provider:     "azure-openai",
			Model:        "gpt-4o",
			Duration:     2 * time.Second,
			InputTokens:  100,
			OutputTokens: 50,
			CachedTokens: 10,
			Cost:         0.05,
		},
	})
	providerSuccess := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("azure-openai", "gpt-4o", "success"))
	if providerSuccess != 1 {
		t.Errorf("Expected 1 provider success, got %f", providerSuccess)
	}
	inputTokens := testutil.ToFloat64(providerTokensTotal.WithLabelValues("azure-openai", "gpt-4o", "input"))
	if inputTokens != 100 {
		t.Errorf("Expected 100 input tokens, got %f", inputTokens)
	}

	// Test provider call failed
	listener.Handle(&events.Event{
		Type: events.EventProviderCallFailed,
		Data: &events.ProviderCallFailedData{
			Provider: "bedrock",
			Model:    "claude-3-haiku",
			Duration: 1 * time.Second,
		},
	})
	providerError := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("bedrock", "claude-3-haiku", "error"))
	if providerError != 1 {
		t.Errorf("Expected 1 provider error, got %f", providerError)
	}

	// Test tool call completed
	listener.Handle(&events.Event{
		Type: events.EventToolCallCompleted,
		Data: &events.ToolCallCompletedData{
			ToolName: "web_search",
			Duration: 500 * time.Millisecond,
			Status:   "success",
		},
	})
	toolSuccess := testutil.ToFloat64(toolCallsTotal.WithLabelValues("web_search", "success"))
	if toolSuccess != 1 {
		t.Errorf("Expected 1 tool success, got %f", toolSuccess)
	}

	// Test tool call failed
	listener.Handle(&events.Event{
		Type: events.EventToolCallFailed,
		Data: &events.ToolCallFailedData{
			ToolName: "tickets_and_docs",
			Duration: 1 * time.Second,
		},
	})
	toolError := testutil.ToFloat64(toolCallsTotal.WithLabelValues("tickets_and_docs", "error"))
	if toolError != 1 {
		t.Errorf("Expected 1 tool error, got %f", toolError)
	}

	// Test guardrail passed
	listener.Handle(&events.Event{
		Type: events.EventGuardrailPassed,
		Data: &events.GuardrailPassedData{
			GuardrailName: "raw_json_leak",
			Duration:      10 * time.Millisecond,
		},
	})
	guardrailPassed := testutil.ToFloat64(guardrailChecksTotal.WithLabelValues("raw_json_leak", "passed"))
	if guardrailPassed != 1 {
		t.Errorf("Expected 1 guardrail passed, got %f", guardrailPassed)
	}

	// Test guardrail failed
	listener.Handle(&events.Event{
		Type: events.EventGuardrailFailed,
		Data: &events.GuardrailFailedData{
			GuardrailName: "raw_json_leak",
			Duration:      5 * time.Millisecond,
			Violations:    []string{"leading brace"},
		},
	})
	guardrailFailed := testutil.ToFloat64(guardrailChecksTotal.WithLabelValues("raw_json_leak", "failed"))
	if guardrailFailed != 1 {
		t.Errorf("Expected 1 guardrail failed, got %f", guardrailFailed)
	}
}

func TestMetricsListenerFunction(t *testing.T) {
	listener := NewMetricsListener()
	fn := listener.Listener()

	if fn == nil {
		t.Error("Expected non-nil listener function")
	}

	// Verify it's callable
	requestsActive.Set(0)
	fn(&events.Event{
		Type: events.EventRequestStarted,
		Data: &events.RequestStartedData{},
	})

	active := testutil.ToFloat64(requestsActive)
	if active != 1 {
		t.Errorf("Expected 1 active request via listener function, got %f", active)
	}
}

func TestMetricsListenerToolCallCompletedWithError(t *testing.T) {
	toolCallsTotal.Reset()

	listener := NewMetricsListener()

	// Tool call completed with error status
	listener.Handle(&events.Event{
		Type: events.EventToolCallCompleted,
		Data: &events.ToolCallCompletedData{
			ToolName: "failing_tool",
			Duration: 100 * time.Millisecond,
			Status:   "error",
		},
	})

	errorCount := testutil.ToFloat64(toolCallsTotal.WithLabelValues("failing_tool", "error"))
	if errorCount != 1 {
		t.Errorf("Expected 1 tool error for completed with error status, got %f", errorCount)
	}
}

func TestMetricsListenerIgnoresUnknownEvents(t *testing.T) {
	listener := NewMetricsListener()

	// These should not panic
	listener.Handle(&events.Event{
		Type: events.EventContextBuilt,
		Data: &events.ContextBuiltData{},
	})

	listener.Handle(&events.Event{
		Type: events.EventTurnCommitted,
		Data: &events.TurnCommittedData{},
	})

	listener.Handle(&events.Event{
		Type: events.EventStateEntered,
		Data: &events.StateEnteredData{},
	})
}

func TestMetricsListenerNilData(t *testing.T) {
	listener := NewMetricsListener()

	// These should not panic even with nil data
	listener.Handle(&events.Event{
		Type: events.EventRequestCompleted,
		Data: nil,
	})

	listener.Handle(&events.Event{
		Type: events.EventStateCompleted,
		Data: nil,
	})
}
