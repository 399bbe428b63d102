// Package engine implements the Orchestration Engine (spec.md §4.5): the
// Analyze/Plan/Execute/Observe/Replan/Synthesize loop that turns a user
// request into a SynthesizedAnswer, fanning out tool calls and narrating
// progress as it goes.
package engine

import (
	"time"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/tools"
)

// Request is the engine's single public input (spec.md §6.1). RequestID
// correlates a request's ExecutionSteps and ProgressEvents; callers may
// leave it empty and Process will stamp a generated one (spec.md's
// "ProgressEvent correlation IDs").
type Request struct {
	RequestID      string
	ConversationID string
	UserText       string
	UserProfile    map[string]any
	ChannelContext map[string]any
}

// Complexity is the engine's self-assessed sizing of a request.
type Complexity string

// Complexity levels, per spec.md §3 Plan.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityResearch Complexity = "research"
)

// Strategy controls how Execute fans out a Plan's tool calls.
type Strategy string

// Execution strategies, per spec.md §4.5 Step 3.
const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyHybrid     Strategy = "hybrid"
)

// PlannedCall is one planned tool invocation.
type PlannedCall struct {
	ToolID tools.ToolID
	Input  any
	// DependsOn names the ToolID this call must wait behind under the
	// hybrid strategy (same-tool calls run in parallel, calls across
	// distinct tools chain). Empty means no dependency.
	DependsOn tools.ToolID
}

// Plan is the engine's structured intent for a single request (spec.md §3).
type Plan struct {
	ReasoningSummary  string
	Complexity        Complexity
	Calls             []PlannedCall
	Strategy          Strategy
	ObservationPlan   string
	SynthesisApproach string
	// Source records how the plan was produced, for observability and for
	// the "heuristic fallback" properties tests assert on.
	Source string // "reasoning" | "heuristic"
}

// StepStatus is an ExecutionStep's lifecycle state.
type StepStatus string

// Step statuses, per spec.md §3 ExecutionStep.
const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ExecutionStep records one tool call's outcome within a request. The list
// is append-only within a request (spec.md §3).
type ExecutionStep struct {
	StepIndex int
	// StepID is a generated correlation ID for this step instance
	// (github.com/google/uuid), distinct from ActionID, which carries the
	// tool family name that synthesize/observe key their logic on.
	StepID        string
	ActionID      string
	Description   string
	Status        StepStatus
	StartedAt     time.Time
	CompletedAt   time.Time
	ResultSummary string
	Result        tools.DomainResult
}

// Confidence is the engine's self-assessed trust in a SynthesizedAnswer.
type Confidence string

// Confidence levels, per spec.md §4.5 Step 5.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SourceLink cites one attributed source backing the answer.
type SourceLink struct {
	Title string
	URL   string
	Type  string
}

// SynthesizedAnswer is the engine's single public output (spec.md §3).
type SynthesizedAnswer struct {
	Text               string
	KeyFindings        []string
	SourceLinks        []SourceLink
	Confidence         Confidence
	SuggestedFollowups []string
	RequiresHumanInput bool
	ExecutionSummary   string
}

// maxKeyFindings, maxSourceLinks, maxFollowups bound SynthesizedAnswer
// fields, per spec.md §3.
const (
	maxKeyFindings = 5
	maxSourceLinks = 5
	maxFollowups   = 4
)

// runState accumulates a single request's working state across loop
// iterations: the plan history, every ExecutionStep produced so far, and
// the relevant entities fetched once at the start (spec.md §9: the Engine
// owns one Plan and one ExecutionStep list per request, passed by value to
// helpers; it does not share mutable state across concurrent requests).
type runState struct {
	req              Request
	relevantEntities []entity.Entity
	steps            []ExecutionStep
	replanCount      int
	executePhases    int
}
