// Package prometheus provides Prometheus metrics exporters for Conductor's
// orchestration engine.
package prometheus

import (
	"github.com/relaychat/conductor/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
	statusPassed  = "passed"
	statusFailed  = "failed"
)

// MetricsListener records engine events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventRequestStarted:
		RecordRequestStart()
	case events.EventRequestCompleted:
		l.handleRequestCompleted(event)
	case events.EventRequestFailed:
		l.handleRequestFailed(event)
	case events.EventStateCompleted:
		l.handleStateCompleted(event)
	case events.EventStateFailed:
		l.handleStateFailed(event)
	case events.EventReplanTriggered:
		RecordReplanIteration()
	case events.EventProviderCallCompleted:
		l.handleProviderCallCompleted(event)
	case events.EventProviderCallFailed:
		l.handleProviderCallFailed(event)
	case events.EventToolCallCompleted:
		l.handleToolCallCompleted(event)
	case events.EventToolCallFailed:
		l.handleToolCallFailed(event)
	case events.EventGuardrailPassed:
		l.handleGuardrailPassed(event)
	case events.EventGuardrailFailed:
		l.handleGuardrailFailed(event)
	default:
		// Ignore events that don't have metrics
	}
}

// dataAs unwraps an event payload that may arrive by value or by pointer.
func dataAs[T events.EventData](data events.EventData) (T, bool) {
	if v, ok := data.(T); ok {
		return v, true
	}
	var zero T
	return zero, false
}

func (l *MetricsListener) handleRequestCompleted(event *events.Event) {
	if data, ok := dataAs[*events.RequestCompletedData](event.Data); ok {
		RecordRequestEnd(statusSuccess, data.Duration.Seconds())
		RecordConfidence(data.Confidence)
	}
}

func (l *MetricsListener) handleRequestFailed(event *events.Event) {
	if data, ok := dataAs[*events.RequestFailedData](event.Data); ok {
		RecordRequestEnd(statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleStateCompleted(event *events.Event) {
	if data, ok := dataAs[*events.StateCompletedData](event.Data); ok {
		RecordStateDuration(data.State, statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleStateFailed(event *events.Event) {
	if data, ok := dataAs[*events.StateFailedData](event.Data); ok {
		RecordStateDuration(data.State, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleProviderCallCompleted(event *events.Event) {
	if data, ok := dataAs[*events.ProviderCallCompletedData](event.Data); ok {
		RecordProviderRequest(data.Provider, data.Model, statusSuccess, data.Duration.Seconds())
		RecordProviderTokens(data.Provider, data.Model, data.InputTokens, data.OutputTokens, data.CachedTokens)
		RecordProviderCost(data.Provider, data.Model, data.Cost)
	}
}

func (l *MetricsListener) handleProviderCallFailed(event *events.Event) {
	if data, ok := dataAs[*events.ProviderCallFailedData](event.Data); ok {
		RecordProviderRequest(data.Provider, data.Model, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleToolCallCompleted(event *events.Event) {
	if data, ok := dataAs[*events.ToolCallCompletedData](event.Data); ok {
		status := statusSuccess
		if data.Status == statusError {
			status = statusError
		}
		RecordToolCall(data.ToolName, status, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleToolCallFailed(event *events.Event) {
	if data, ok := dataAs[*events.ToolCallFailedData](event.Data); ok {
		RecordToolCall(data.ToolName, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleGuardrailPassed(event *events.Event) {
	if data, ok := dataAs[*events.GuardrailPassedData](event.Data); ok {
		RecordGuardrail(data.GuardrailName, statusPassed, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleGuardrailFailed(event *events.Event) {
	if data, ok := dataAs[*events.GuardrailFailedData](event.Data); ok {
		RecordGuardrail(data.GuardrailName, statusFailed, data.Duration.Seconds())
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
