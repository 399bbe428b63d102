package engine

import (
	"context"
	"strings"
	"time"

	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/memory"
	"github.com/relaychat/conductor/progress"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/types"
)

// reasoningDeadline bounds the fluid-reasoning pass (spec.md §5: "≈15s, not
// 25s; empirical prior experience shows 15s gives a better cancel-vs-
// success ratio").
const reasoningDeadline = 15 * time.Second

// stageRotation is the fixed set of human-readable stage messages the
// reasoning pass cycles through while the model call is in flight. Per
// spec.md §9's Open Question decision, stages rotate on a timer rather
// than being derived by keyword-sniffing streamed model tokens, so raw
// model output never reaches the progress channel.
var stageRotation = []string{
	"Understanding your request…",
	"Considering approach…",
	"Weighing which tools would help…",
	"Thinking through the details…",
}

const stageRotationInterval = 3 * time.Second

const reasoningSystemPrompt = `You are the reasoning stage of a chat-assistant orchestration engine.
Given the user's message and prior conversation context, restate the user's intent in one sentence,
then briefly consider which of these tool families would help: semantic_search, web_search,
tickets_and_docs, calendar_op. Consider whether the needed calls can run in parallel. Respond in
prose; a later step will ask you to extract a structured plan from this reasoning.`

// reasoningResult is the fluid-reasoning pass's output: prose the plan
// extraction step conditions on.
type reasoningResult struct {
	summary string
}

// analyze runs the fluid-reasoning pass against the preferred reasoning
// tier, falling through tiers on quota exhaustion, and degrading to a
// direct heuristic summary on timeout or exhaustion of every tier
// (spec.md §4.5 Steps 1-2).
func (e *Engine) analyze(ctx context.Context, req Request, hist memory.HybridHistory, pch *progress.Channel, em *events.Emitter) (reasoningResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, reasoningDeadline)
	defer cancel()

	stopStages := e.rotateStages(ctx, pch)
	defer stopStages()

	userPrompt := buildReasoningUserPrompt(req, hist)

	for _, tier := range e.deps.ReasoningTiers {
		resp, err := e.chat(ctx, em, tier.Name, tier.Provider, providers.ChatRequest{
			System:      reasoningSystemPrompt,
			Messages:    []types.Message{{Role: "user", Content: userPrompt}},
			MaxTokens:   600,
			Temperature: 0.4,
		})
		if err != nil {
			if providers.IsQuotaExhausted(err) {
				logger.DefaultLogger.Warn("engine: reasoning tier exhausted, falling back", "tier", tier.Name)
				pch.Emit(progress.Event{Kind: progress.KindWarning, Action: "Switching to a faster reasoning path…"})
				continue
			}
			logger.DefaultLogger.Warn("engine: reasoning call failed", "tier", tier.Name, "error", err)
			break
		}
		return reasoningResult{summary: resp.Content}, true
	}

	// Every tier failed or timed out: deterministic heuristic summary
	// (spec.md §4.5: "falls through to a deterministic keyword-heuristic
	// plan").
	return reasoningResult{summary: heuristicIntentSummary(req.UserText)}, false
}

// rotateStages starts a ticker that emits the next stage message on each
// tick until the returned stop function is called or ctx is done.
func (e *Engine) rotateStages(ctx context.Context, pch *progress.Channel) func() {
	done := make(chan struct{})
	go func() {
		idx := 0
		pch.Emit(progress.Event{Kind: progress.KindReasoning, Action: stageRotation[idx]})
		ticker := time.NewTicker(stageRotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				idx = (idx + 1) % len(stageRotation)
				pch.Emit(progress.Event{Kind: progress.KindReasoning, Action: stageRotation[idx]})
			}
		}
	}()
	return func() { close(done) }
}

func buildReasoningUserPrompt(req Request, hist memory.HybridHistory) string {
	var sb strings.Builder
	if hist.SummaryText != "" {
		sb.WriteString("Conversation summary so far: ")
		sb.WriteString(hist.SummaryText)
		sb.WriteString("\n\n")
	}
	if hist.LiveWindowText != "" {
		sb.WriteString("Recent turns:\n")
		sb.WriteString(hist.LiveWindowText)
		sb.WriteString("\n\n")
	}
	if len(hist.RelevantEntities) > 0 {
		sb.WriteString("Known relevant facts: ")
		for i, ent := range hist.RelevantEntities {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(string(ent.Type))
			sb.WriteString("=")
			sb.WriteString(ent.Value)
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString("Current message: ")
	sb.WriteString(req.UserText)
	return sb.String()
}

// heuristicIntentSummary produces a one-line restatement of intent without
// any model call, used both as the reasoning fallback and as the seed for
// the heuristic plan.
func heuristicIntentSummary(userText string) string {
	trimmed := strings.TrimSpace(userText)
	if trimmed == "" {
		return "empty request"
	}
	return "user asked: " + trimmed
}
