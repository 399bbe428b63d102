package engine

import (
	"context"
	"time"

	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/internal/strictjson"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/progress"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/tools"
	"github.com/relaychat/conductor/types"
)

// evaluatorDeadline bounds the Observe evaluator call (spec.md §5: "≈10s").
const evaluatorDeadline = 10 * time.Second

// failureSubstitutionOrder is the fixed tool-family substitution chain
// used when every call in a plan failed (spec.md §4.5 Step 4: "semantic ->
// web -> tickets_and_docs, in that fixed order").
var failureSubstitutionOrder = []tools.ToolID{
	tools.ToolSemanticSearch, tools.ToolWebSearch, tools.ToolTicketsAndDocs,
}

const evaluatorSystemPrompt = `You evaluate whether a chat-assistant orchestration engine needs another
round of tool calls. You are given a query and brief outcome summaries only, never raw tool output.
Respond with ONLY a JSON object: {"needs_more_tools": true|false, "reasoning": "..."}`

type evaluatorJSON struct {
	NeedsMoreTools bool   `json:"needs_more_tools"`
	Reasoning      string `json:"reasoning"`
}

// Observation is Observe's verdict on a completed Execute phase.
type Observation struct {
	Success        bool
	NeedsMoreTools bool
	Narrative      string
	// SubstitutePlan is set when every call failed and a deterministic
	// tool-family substitution is available.
	SubstitutePlan *Plan
}

// observe asks the evaluator whether more work is needed, applying the
// deterministic failure-replan rule first (spec.md §4.5 Step 4).
func (e *Engine) observe(ctx context.Context, req Request, plan Plan, steps []ExecutionStep, pch *progress.Channel, em *events.Emitter) Observation {
	pch.Emit(progress.Event{Kind: progress.KindObserving, Action: "Reviewing what came back…"})

	if allFailed(steps) {
		if sub := substitutePlan(plan); sub != nil {
			return Observation{
				Success:        false,
				NeedsMoreTools: true,
				Narrative:      "every tool call failed; substituting a different tool family",
				SubstitutePlan: sub,
			}
		}
		pch.Emit(progress.Event{Kind: progress.KindError, Action: "Every available tool came back empty"})
		return Observation{
			Success:   false,
			Narrative: "every tool call failed and no substitute tool family remains",
		}
	}

	evalCtx, cancel := context.WithTimeout(ctx, evaluatorDeadline)
	defer cancel()

	verdict, ok := e.runEvaluator(evalCtx, req, steps, em)
	if !ok {
		// Evaluator unavailable or unparseable: proceed to synthesize with
		// what exists (spec.md §4.5 Step 4 "otherwise proceed to
		// Synthesize").
		return Observation{Success: true, Narrative: "evaluator unavailable, proceeding with current results"}
	}

	return Observation{
		Success:        !verdict.NeedsMoreTools,
		NeedsMoreTools: verdict.NeedsMoreTools,
		Narrative:      verdict.Reasoning,
	}
}

func (e *Engine) runEvaluator(ctx context.Context, req Request, steps []ExecutionStep, em *events.Emitter) (evaluatorJSON, bool) {
	if e.deps.Evaluator == nil {
		return evaluatorJSON{}, false
	}

	summary := summarizeSteps(steps)
	resp, err := e.chat(ctx, em, "evaluator", e.deps.Evaluator, providers.ChatRequest{
		System:      evaluatorSystemPrompt,
		Messages:    []types.Message{{Role: "user", Content: "Query: " + req.UserText + "\nOutcomes: " + summary}},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		logger.DefaultLogger.Warn("engine: evaluator call failed", "error", err)
		return evaluatorJSON{}, false
	}

	block := jsonBlockPattern.FindString(resp.Content)
	if block == "" {
		return evaluatorJSON{}, false
	}
	var verdict evaluatorJSON
	if err := strictjson.Decode([]byte(block), &verdict); err != nil {
		return evaluatorJSON{}, false
	}
	return verdict, true
}

func summarizeSteps(steps []ExecutionStep) string {
	out := ""
	for _, s := range steps {
		if out != "" {
			out += "; "
		}
		out += s.ActionID + ": " + string(s.Status) + " (" + s.ResultSummary + ")"
	}
	return out
}

func allFailed(steps []ExecutionStep) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if s.Status != StepFailed {
			return false
		}
	}
	return true
}

// substitutePlan builds a replacement Plan by advancing every failed
// call's tool to the next family in failureSubstitutionOrder. Returns nil
// if no call's tool has a remaining substitute.
func substitutePlan(plan Plan) *Plan {
	var calls []PlannedCall
	for _, call := range plan.Calls {
		next, ok := nextSubstitute(call.ToolID)
		if !ok {
			continue
		}
		calls = append(calls, PlannedCall{ToolID: next, Input: retargetInput(next, call.Input)})
	}
	if len(calls) == 0 {
		return nil
	}
	sub := plan
	sub.Calls = calls
	sub.Source = "failure-replan"
	return &sub
}

func nextSubstitute(id tools.ToolID) (tools.ToolID, bool) {
	for i, t := range failureSubstitutionOrder {
		if t == id && i+1 < len(failureSubstitutionOrder) {
			return failureSubstitutionOrder[i+1], true
		}
	}
	return "", false
}

func retargetInput(id tools.ToolID, original any) any {
	query := ""
	switch in := original.(type) {
	case tools.SemanticSearchInput:
		query = in.Query
	case tools.WebSearchInput:
		query = in.Query
	case tools.TicketsAndDocsInput:
		query = in.Task
	}
	return toolInputFor(id, query)
}
