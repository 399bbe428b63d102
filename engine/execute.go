package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/progress"
	"github.com/relaychat/conductor/tools"
)

// perToolTimeout bounds a single tool invocation (spec.md §4.5 Step 3:
// "default 30s").
const perToolTimeout = 30 * time.Second

// execute walks a Plan's tool calls according to its Strategy, emitting
// "searching" and preview ProgressEvents, and returns the ExecutionSteps
// produced (spec.md §4.5 Step 3).
func (e *Engine) execute(ctx context.Context, plan Plan, startIndex int, pch *progress.Channel, em *events.Emitter) []ExecutionStep {
	switch plan.Strategy {
	case StrategyParallel:
		return e.executeParallel(ctx, plan.Calls, startIndex, pch, em)
	case StrategyHybrid:
		return e.executeHybrid(ctx, plan.Calls, startIndex, pch, em)
	default:
		return e.executeSequential(ctx, plan.Calls, startIndex, pch, em)
	}
}

func (e *Engine) executeSequential(ctx context.Context, calls []PlannedCall, startIndex int, pch *progress.Channel, em *events.Emitter) []ExecutionStep {
	steps := make([]ExecutionStep, len(calls))
	for i, call := range calls {
		steps[i] = e.runCall(ctx, call, startIndex+i, pch, em)
	}
	return steps
}

// executeParallel fans out every call concurrently and awaits all of them,
// bounded by ctx (spec.md §4.5: "parallel fans out all planned calls
// concurrently and awaits all").
func (e *Engine) executeParallel(ctx context.Context, calls []PlannedCall, startIndex int, pch *progress.Channel, em *events.Emitter) []ExecutionStep {
	steps := make([]ExecutionStep, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			steps[i] = e.runCall(gctx, call, startIndex+i, pch, em)
			return nil
		})
	}
	_ = g.Wait() // runCall never returns an error; failures live in the DomainResult
	return steps
}

// executeHybrid fans same-tool calls out in parallel and chains across
// distinct tools (spec.md §4.5: "hybrid fans out same-tool calls in
// parallel and chains across tools").
func (e *Engine) executeHybrid(ctx context.Context, calls []PlannedCall, startIndex int, pch *progress.Channel, em *events.Emitter) []ExecutionStep {
	groups := groupByTool(calls)
	steps := make([]ExecutionStep, 0, len(calls))
	index := startIndex
	for _, group := range groups {
		g, gctx := errgroup.WithContext(ctx)
		groupSteps := make([]ExecutionStep, len(group))
		for i, call := range group {
			i, call, stepIdx := i, call, index+i
			g.Go(func() error {
				groupSteps[i] = e.runCall(gctx, call, stepIdx, pch, em)
				return nil
			})
		}
		_ = g.Wait()
		steps = append(steps, groupSteps...)
		index += len(group)
	}
	return steps
}

// groupByTool partitions calls into contiguous runs of the same ToolID,
// preserving plan order across groups so "chains across tools" stays
// faithful to the plan's intended sequencing.
func groupByTool(calls []PlannedCall) [][]PlannedCall {
	var groups [][]PlannedCall
	for _, call := range calls {
		if len(groups) > 0 && groups[len(groups)-1][0].ToolID == call.ToolID {
			groups[len(groups)-1] = append(groups[len(groups)-1], call)
			continue
		}
		groups = append(groups, []PlannedCall{call})
	}
	return groups
}

// runCall invokes a single planned tool call end to end: searching event,
// invocation with a per-tool deadline, preview event, and the resulting
// ExecutionStep.
func (e *Engine) runCall(ctx context.Context, call PlannedCall, stepIndex int, pch *progress.Channel, em *events.Emitter) ExecutionStep {
	started := e.now()
	stepID := uuid.New().String()
	pch.Emit(progress.Event{
		Kind:   progress.KindSearching,
		Action: searchPhrase(call),
	})
	em.ToolCallStarted(string(call.ToolID), stepID, nil)

	deadline := started.Add(perToolTimeout)
	logger.ToolDispatch(string(call.ToolID), 1, 1)
	result := e.deps.Tools.Invoke(ctx, call.ToolID, deadline, call.Input)
	completed := e.now()
	logger.ToolOutcome(string(call.ToolID), result.Success, completed.Sub(started).Milliseconds())

	status := StepCompleted
	if !result.Success {
		status = StepFailed
		em.ToolCallFailed(string(call.ToolID), stepID, errors.New(result.Error), completed.Sub(started))
	} else {
		em.ToolCallCompleted(string(call.ToolID), stepID, completed.Sub(started), "success")
	}

	pch.Emit(progress.Event{
		Kind:    progress.KindDiscovery,
		Action:  fmt.Sprintf("Found results from %s", call.ToolID),
		Details: previewDetails(result),
	})

	return ExecutionStep{
		StepIndex:     stepIndex,
		StepID:        stepID,
		ActionID:      string(call.ToolID),
		Description:   searchPhrase(call),
		Status:        status,
		StartedAt:     started,
		CompletedAt:   completed,
		ResultSummary: previewDetails(result),
		Result:        result,
	}
}

func searchPhrase(call PlannedCall) string {
	switch in := call.Input.(type) {
	case tools.SemanticSearchInput:
		return "Searching team knowledge for \"" + in.Query + "\""
	case tools.WebSearchInput:
		return "Searching the web for \"" + in.Query + "\""
	case tools.TicketsAndDocsInput:
		return "Looking up tickets and docs for \"" + in.Task + "\""
	case tools.CalendarOpInput:
		return "Checking the calendar"
	default:
		return "Running " + string(call.ToolID)
	}
}

// previewDetails renders up to 3 compact, non-raw fields from a result,
// never the raw JSON payload (spec.md §4.5 Step 3).
func previewDetails(result tools.DomainResult) string {
	if !result.Success {
		if result.Error != "" {
			return "no usable result (" + result.Error + ")"
		}
		return "no usable result"
	}
	switch payload := result.Payload.(type) {
	case []tools.SemanticSearchItem:
		return previewItems(len(payload), "matches")
	case tools.WebSearchPayload:
		return previewItems(len(payload.Citations), "sources")
	case tools.TicketsAndDocsPayload:
		return previewItems(len(payload.Data), "items")
	default:
		return "completed"
	}
}

func previewItems(n int, noun string) string {
	if n == 0 {
		return "no " + noun + " found"
	}
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %s", n, noun)
}
