package engine

import "github.com/relaychat/conductor/workflow"

// Event names driving the engine's workflow.StateMachine (spec.md §4.5
// State machine). Replanning re-enters "planning" rather than a distinct
// state: the spec's "(replanning -> executing)*" loop is the same planning
// logic invoked again with failure context, so it reuses the planning
// state and its transition out to executing.
const (
	eventStart           = "start"
	eventAnalyzed        = "analyzed"
	eventAnalysisFailed  = "analysis_failed"
	eventPlanned         = "planned"
	eventPlanningFailed  = "planning_failed"
	eventExecuted        = "executed"
	eventObservedSuccess = "observed_success"
	eventObservedFailure = "observed_failure"
	eventReplanExhausted = "replan_exhausted"
	eventSynthesized     = "synthesized"
	eventFallbackDone    = "fallback_rendered"
	eventPanicked        = "panicked"
)

// States, named exactly as spec.md §4.5 enumerates them.
const (
	stateReceived     = "received"
	stateAnalyzing    = "analyzing"
	statePlanning     = "planning"
	stateExecuting    = "executing"
	stateObserving    = "observing"
	stateSynthesizing = "synthesizing"
	stateDone         = "done"
	stateFallback     = "fallback"
)

// buildSpec constructs the workflow.Spec for a single engine request,
// adapted from the PromptPack workflow state machine (workflow.Spec):
// here "prompt_task" carries the ProgressEvent kind emitted on entry to
// that state rather than a prompt name, since the engine's state loop has
// no per-state prompt of its own beyond the reasoning/plan/evaluator calls
// already modeled explicitly in analyze.go/plan.go/observe.go.
func buildSpec() *workflow.Spec {
	return &workflow.Spec{
		Version: 1,
		Entry:   stateReceived,
		States: map[string]*workflow.State{
			stateReceived: {
				PromptTask: "received",
				OnEvent:    map[string]string{eventStart: stateAnalyzing},
			},
			stateAnalyzing: {
				PromptTask: "reasoning",
				OnEvent: map[string]string{
					eventAnalyzed:       statePlanning,
					eventAnalysisFailed: statePlanning, // heuristic fallback still produces a Plan
				},
			},
			statePlanning: {
				PromptTask: "reasoning",
				OnEvent: map[string]string{
					eventPlanned:        stateExecuting,
					eventPlanningFailed: stateFallback,
				},
			},
			stateExecuting: {
				PromptTask: "processing",
				OnEvent:    map[string]string{eventExecuted: stateObserving},
			},
			stateObserving: {
				PromptTask: "observing",
				OnEvent: map[string]string{
					eventObservedSuccess: stateSynthesizing,
					eventObservedFailure: statePlanning,
					eventReplanExhausted: stateSynthesizing,
				},
			},
			stateSynthesizing: {
				PromptTask: "synthesizing",
				OnEvent:    map[string]string{eventSynthesized: stateDone},
			},
			stateFallback: {
				PromptTask: "generating",
				OnEvent:    map[string]string{eventFallbackDone: stateDone},
			},
			stateDone: {
				PromptTask: "done",
			},
		},
	}
}
