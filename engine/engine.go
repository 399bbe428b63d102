package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/hooks/guardrails"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/memory"
	"github.com/relaychat/conductor/progress"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/tools"
	"github.com/relaychat/conductor/workflow"
)

// MaxReplanningIterations is the hard cap on recursive replanning per
// request (spec.md §4.5: "replanning may occur at most MAX_REPLANNING_
// ITERATIONS (=3) times per request"), bounding total Execute phases to 4.
const MaxReplanningIterations = 3

// requestSoftBudget is the entire request's soft deadline (spec.md §5:
// "≈90s; after that the engine forces synthesis with whatever is
// available").
const requestSoftBudget = 90 * time.Second

// ModelTier pairs a named reasoning tier with its provider, tried in order
// (preferred first) so the engine can fall back on quota exhaustion
// (spec.md §6.4, §7).
type ModelTier struct {
	Name     string
	Provider providers.Provider
}

// Dependencies bundles everything the Engine needs, injected at
// construction rather than referenced as ambient singletons (spec.md §9).
type Dependencies struct {
	Memory         *memory.Manager
	Entities       *entity.Store
	Tools          *tools.DomainRegistry
	ReasoningTiers []ModelTier
	Evaluator      providers.Provider
	// Events is an optional bus for runtime observability; the engine
	// publishes request, state, provider, tool, replan, and guardrail
	// events through it. Listeners (Prometheus, OTel, a recording store)
	// subscribe on the bus side.
	Events *events.EventBus
	// Guardrails is the output guardrail chain Synthesize runs over every
	// candidate answer. When nil, New installs the default chain, which
	// carries only the mandatory raw-JSON-leak scan; callers wanting
	// banned-word/length/sentence/field guards build one from
	// config.GuardrailsConfig via guardrails.NewAnswerGuard.
	Guardrails *guardrails.AnswerGuard
	Clock      func() time.Time
}

// Engine drives the Analyze/Plan/Execute/Observe/Replan/Synthesize loop.
// A single request's state is never observed concurrently by two workers
// (spec.md §4.5): each call to Process owns its own runState and
// workflow.StateMachine.
type Engine struct {
	deps Dependencies

	mu       sync.Mutex
	channels map[string]*progress.Channel
}

// New builds an Engine over the given Dependencies.
func New(deps Dependencies) *Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Guardrails == nil {
		deps.Guardrails = guardrails.NewAnswerGuard(guardrails.AnswerConfig{})
	}
	return &Engine{deps: deps, channels: make(map[string]*progress.Channel)}
}

func (e *Engine) now() time.Time { return e.deps.Clock() }

// Subscribe attaches the single allowed Progress Channel subscriber for a
// request, creating the channel on first use (spec.md §4.6).
func (e *Engine) Subscribe(conversationID string) (<-chan string, error) {
	return e.channelFor(conversationID).Subscribe()
}

func (e *Engine) channelFor(conversationID string) *progress.Channel {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[conversationID]
	if !ok {
		ch = progress.New()
		e.channels[conversationID] = ch
	}
	return ch
}

// releaseChannel closes and forgets a request's Progress Channel once
// Process has returned (spec.md §4.6: "closing the channel cancels any
// downstream edit callbacks; the engine must stop emitting after close").
func (e *Engine) releaseChannel(conversationID string) {
	e.mu.Lock()
	ch, ok := e.channels[conversationID]
	delete(e.channels, conversationID)
	e.mu.Unlock()
	if ok {
		ch.Close()
	}
}

// Process drives the full state loop for one request and returns exactly
// one SynthesizedAnswer, unless ctx is cancelled before synthesis — in
// that case Process returns ctx.Err() and emits no SynthesizedAnswer
// (spec.md §4.5, §8 property 13). An unrecoverable panic at any step
// (ErrInvariantViolated territory) is caught and converted into the
// short-circuit `fallback` state instead of crashing the caller, per
// spec.md §4.5's "fallback reachable from any state on unrecoverable
// failure" and §7's invariant_violated handling.
func (e *Engine) Process(ctx context.Context, req Request) (answer SynthesizedAnswer, err error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, requestSoftBudget)
	defer cancel()
	defer e.releaseChannel(req.ConversationID)

	pch := e.channelFor(req.ConversationID)
	pch.SetCorrelationID(req.RequestID)
	em := events.NewEmitter(e.deps.Events, req.RequestID, req.ConversationID, req.ConversationID)
	sm := workflow.NewStateMachine(buildSpec()).WithTimeFunc(e.now)
	run := &stateTracker{engine: e, sm: sm, em: em, stateStart: e.now()}
	started := e.now()

	defer func() {
		if r := recover(); r != nil {
			logger.DefaultLogger.Error("engine: recovered from panic, rendering fallback", "panic", r, "state", sm.CurrentState())
			sm.Force(stateFallback, eventPanicked)
			answer = e.renderFallback(pch)
			sm.Force(stateDone, eventFallbackDone)
			em.RequestCompleted(&events.RequestCompletedData{
				Duration:   e.now().Sub(started),
				Confidence: string(answer.Confidence),
			})
			err = nil
		}
	}()

	em.RequestStarted(0)
	run.advance(eventStart)

	hist := e.deps.Memory.HybridHistory(ctx, req.ConversationID, req.UserText)

	if ctx.Err() != nil {
		return e.cancelled(pch, em, started)
	}

	reasoning, ok := e.analyze(ctx, req, hist, pch, em)
	if ok {
		run.advance(eventAnalyzed)
	} else {
		run.advance(eventAnalysisFailed)
	}

	if ctx.Err() != nil {
		return e.cancelled(pch, em, started)
	}

	state := &runState{req: req, relevantEntities: hist.RelevantEntities}
	currentPlan := e.plan(ctx, req, hist, reasoning, nil, em)
	run.advance(eventPlanned)

	for {
		if ctx.Err() != nil {
			return e.cancelled(pch, em, started)
		}

		pch.Emit(progress.Event{Kind: progress.KindProcessing, Action: "Running the plan…"})
		steps := e.execute(ctx, currentPlan, len(state.steps), pch, em)
		state.steps = append(state.steps, steps...)
		state.executePhases++
		run.advance(eventExecuted)

		if ctx.Err() != nil {
			return e.cancelled(pch, em, started)
		}

		obs := e.observe(ctx, req, currentPlan, steps, pch, em)
		if obs.Success {
			run.advance(eventObservedSuccess)
			break
		}

		if obs.SubstitutePlan != nil && state.replanCount < MaxReplanningIterations {
			state.replanCount++
			substituted := ""
			if len(obs.SubstitutePlan.Calls) > 0 {
				substituted = string(obs.SubstitutePlan.Calls[0].ToolID)
			}
			em.ReplanTriggered(state.replanCount, obs.Narrative, substituted)
			currentPlan = *obs.SubstitutePlan
			run.advance(eventObservedFailure)
			continue
		}

		if obs.NeedsMoreTools && state.replanCount < MaxReplanningIterations {
			state.replanCount++
			em.ReplanTriggered(state.replanCount, obs.Narrative, "")
			currentPlan = e.plan(ctx, req, hist, reasoning, &obs, em)
			run.advance(eventObservedFailure)
			continue
		}

		run.advance(eventReplanExhausted)
		break
	}

	answer = e.synthesize(ctx, req, state.steps, em)
	run.advance(eventSynthesized)

	em.RequestCompleted(&events.RequestCompletedData{
		Duration:    e.now().Sub(started),
		Confidence:  string(answer.Confidence),
		ToolCalls:   len(state.steps),
		ReplanCount: state.replanCount,
	})

	e.commitBestEffort(req, answer)

	return answer, nil
}

// stateTracker drives the workflow state machine while publishing
// transition and per-state timing events to the bus.
type stateTracker struct {
	engine      *Engine
	sm          *workflow.StateMachine
	em          *events.Emitter
	seq         int
	transitions int
	stateStart  time.Time
}

func (t *stateTracker) advance(event string) {
	from := t.sm.CurrentState()
	if err := t.sm.ProcessEvent(event); err != nil {
		logger.DefaultLogger.Error("engine: state machine rejected event", "event", event, "state", from, "error", err)
		return
	}
	to := t.sm.CurrentState()
	now := t.engine.now()
	t.transitions++
	t.em.WorkflowTransitioned(from, to, event, t.sm.CurrentPromptTask())
	if to != from {
		t.em.StateCompleted(from, t.seq, now.Sub(t.stateStart))
		t.seq++
		t.em.StateEntered(to, t.seq)
		t.stateStart = now
	}
	if t.sm.IsTerminal() {
		t.em.WorkflowCompleted(to, t.transitions)
	}
}

// cancelled emits the terminal warning ProgressEvent and returns without a
// SynthesizedAnswer (spec.md §4.5 Failure semantics, §8 property 13).
func (e *Engine) cancelled(pch *progress.Channel, em *events.Emitter, started time.Time) (SynthesizedAnswer, error) {
	pch.Emit(progress.Event{Kind: progress.KindWarning, Action: "Request cancelled before completion"})
	em.RequestFailed(ErrCancelled, e.now().Sub(started))
	return SynthesizedAnswer{}, ErrCancelled
}

// chat performs one provider call and publishes provider call events for
// it, labeled with the tier name as the model dimension.
func (e *Engine) chat(ctx context.Context, em *events.Emitter, tierName string, p providers.Provider, req providers.ChatRequest) (providers.ChatResponse, error) {
	start := e.now()
	em.ProviderCallStarted(p.ID(), tierName, len(req.Messages), 0)
	resp, err := p.Chat(ctx, req)
	elapsed := e.now().Sub(start)
	if err != nil {
		em.ProviderCallFailed(p.ID(), tierName, err, elapsed)
		return resp, err
	}
	data := &events.ProviderCallCompletedData{Provider: p.ID(), Model: tierName, Duration: elapsed}
	if resp.CostInfo != nil {
		data.InputTokens = resp.CostInfo.InputTokens
		data.OutputTokens = resp.CostInfo.OutputTokens
		data.CachedTokens = resp.CostInfo.CachedTokens
		data.Cost = resp.CostInfo.TotalCost
	}
	em.ProviderCallCompleted(data)
	return resp, nil
}

// renderFallback produces the degraded, low-confidence SynthesizedAnswer
// the engine must still return after an unrecoverable step failure
// (spec.md §4.5 Failure semantics: "a fallback SynthesizedAnswer is
// produced with confidence=low and requires_human_input=true, and the
// request still resolves normally"). Unlike cancelled, this always yields
// an answer rather than an error — the request has failed internally, not
// been aborted by the caller.
func (e *Engine) renderFallback(pch *progress.Channel) SynthesizedAnswer {
	pch.Emit(progress.Event{Kind: progress.KindWarning, Action: "Hit an internal error, answering with what's available"})
	return SynthesizedAnswer{
		Text:               "Something went wrong while putting this answer together, so I can't give you a complete response right now.",
		Confidence:         ConfidenceLow,
		RequiresHumanInput: true,
	}
}

// commitBestEffort records the exchange into conversation memory without
// blocking the response; entity extraction runs in the background pool
// (spec.md §4.3 commit_exchange).
func (e *Engine) commitBestEffort(req Request, answer SynthesizedAnswer) {
	if e.deps.Memory == nil {
		return
	}
	now := e.now()
	userTurn := memory.Turn{TurnID: uuid.New().String(), ConversationID: req.ConversationID, Speaker: "user", Text: req.UserText, CreatedAt: now}
	assistantTurn := memory.Turn{TurnID: uuid.New().String(), ConversationID: req.ConversationID, Speaker: "assistant", Text: answer.Text, CreatedAt: now}
	if err := e.deps.Memory.CommitExchange(context.Background(), req.ConversationID, userTurn, assistantTurn); err != nil {
		logger.DefaultLogger.Warn("engine: failed to commit exchange", "conversation_id", req.ConversationID, "error", err)
	}
}
