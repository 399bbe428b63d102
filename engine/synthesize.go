package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/progress"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/tools"
	"github.com/relaychat/conductor/types"
)

// synthesisDeadline bounds the preferred-tier synthesis call (spec.md §5:
// "≈12s on the preferred model, retried on the cheaper model within the
// same budget").
const synthesisDeadline = 12 * time.Second

// followupsDeadline bounds the small dedicated followup-suggestion call;
// followups are nice-to-have, so this stays well under the synthesis
// budget.
const followupsDeadline = 4 * time.Second

const synthesisSystemPrompt = `You write the final answer for a chat-assistant orchestration engine.
Given the user's question and summaries of what tools found, write a clear, conversational prose
answer. Never include raw JSON or mention internal tool names verbatim.`

const followupsSystemPrompt = `Given a user's question and the answer they received, suggest up to 4
short follow-up questions the user might ask next. Respond with one question per line, no numbering,
no bullets, no other text.`

// maxFindingLen bounds one key finding so payload content never dumps a
// whole document into the answer envelope.
const maxFindingLen = 160

// synthesize builds the final SynthesizedAnswer from accumulated steps,
// narrating progress and applying the mandatory output guardrail chain
// (spec.md §4.5 Step 5).
func (e *Engine) synthesize(ctx context.Context, req Request, steps []ExecutionStep, em *events.Emitter) SynthesizedAnswer {
	pch := e.channelFor(req.ConversationID)
	pch.Emit(progress.Event{Kind: progress.KindSynthesizing, Action: narrateCoverage(steps)})

	text, degraded := e.generateAnswerText(ctx, req, steps, em)
	checkStart := e.now()
	if name, decision := e.deps.Guardrails.CheckAnswer(ctx, text); !decision.Allow {
		em.GuardrailFailed(name, e.now().Sub(checkStart), []string{decision.Reason})
		text = sanitizedFallback(steps)
		degraded = true
	} else {
		em.GuardrailPassed(answerGuardLabel, e.now().Sub(checkStart))
	}

	var modelFollowups []string
	if !degraded {
		modelFollowups = e.generateModelFollowups(ctx, req, text, em)
	}

	answer := SynthesizedAnswer{
		Text:               text,
		KeyFindings:        extractKeyFindings(steps),
		SourceLinks:        extractSourceLinks(steps),
		SuggestedFollowups: extractFollowups(req, steps, modelFollowups),
	}
	answer.Confidence = assessConfidence(steps)
	answer.RequiresHumanInput = degraded || answer.Confidence == ConfidenceLow
	answer.ExecutionSummary = summarizeSteps(steps)

	return answer
}

// answerGuardLabel labels guardrail-passed events for the whole answer
// chain, since no single hook name applies.
const answerGuardLabel = "answer_chain"

func (e *Engine) generateAnswerText(ctx context.Context, req Request, steps []ExecutionStep, em *events.Emitter) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, synthesisDeadline)
	defer cancel()

	prompt := "Question: " + req.UserText + "\nFindings: " + summarizeSteps(steps)

	for _, tier := range e.deps.ReasoningTiers {
		resp, err := e.chat(ctx, em, tier.Name, tier.Provider, providers.ChatRequest{
			System:      synthesisSystemPrompt,
			Messages:    []types.Message{{Role: "user", Content: prompt}},
			MaxTokens:   700,
			Temperature: 0.5,
		})
		if err != nil {
			if providers.IsQuotaExhausted(err) {
				continue
			}
			break
		}
		return resp.Content, false
	}

	return templateAnswer(req, steps), true
}

// generateModelFollowups asks for model-generated follow-up questions to
// merge with the orchestrator's own suggestions (spec.md §4.5 Step 5).
// Any failure contributes nothing; followups are best-effort.
func (e *Engine) generateModelFollowups(ctx context.Context, req Request, answerText string, em *events.Emitter) []string {
	ctx, cancel := context.WithTimeout(ctx, followupsDeadline)
	defer cancel()

	prompt := "Question: " + req.UserText + "\nAnswer: " + answerText

	for _, tier := range e.deps.ReasoningTiers {
		resp, err := e.chat(ctx, em, tier.Name, tier.Provider, providers.ChatRequest{
			System:      followupsSystemPrompt,
			Messages:    []types.Message{{Role: "user", Content: prompt}},
			MaxTokens:   150,
			Temperature: 0.7,
		})
		if err != nil {
			if providers.IsQuotaExhausted(err) {
				continue
			}
			return nil
		}
		return parseFollowupLines(resp.Content)
	}

	return nil
}

// parseFollowupLines turns the model's line-per-question output into clean
// followup strings, tolerating stray bullets/numbering and dropping
// anything that looks like leaked structure.
func parseFollowupLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" || len(line) > 200 || strings.ContainsAny(line, "{}") {
			continue
		}
		out = append(out, line)
		if len(out) >= maxFollowups {
			break
		}
	}
	return out
}

// templateAnswer is the last-resort answer composed directly from per-tool
// summaries when every model tier fails (spec.md §4.5 Step 5).
func templateAnswer(req Request, steps []ExecutionStep) string {
	var sb strings.Builder
	sb.WriteString("I wasn't able to fully process that, but here's what I found: ")
	wroteAny := false
	for _, s := range steps {
		if s.Status != StepCompleted {
			continue
		}
		if wroteAny {
			sb.WriteString(" ")
		}
		sb.WriteString(s.ResultSummary)
		wroteAny = true
	}
	if !wroteAny {
		sb.WriteString("nothing usable came back from the available tools. Sorry about that.")
	}
	return sb.String()
}

func sanitizedFallback(steps []ExecutionStep) string {
	findings := extractKeyFindings(steps)
	if len(findings) == 0 {
		return "I put together an answer but it didn't come out right, so here's a short summary instead: I wasn't able to find anything conclusive."
	}
	return "I put together an answer but it didn't come out right, so here's a short summary instead: " + strings.Join(findings, "; ")
}

func narrateCoverage(steps []ExecutionStep) string {
	counts := map[tools.ToolID]int{}
	for _, s := range steps {
		counts[tools.ToolID(s.ActionID)]++
	}
	if len(counts) == 0 {
		return "Putting together a response…"
	}
	var parts []string
	for id, n := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", n, id))
	}
	sort.Strings(parts)
	return "Combining insights from " + strings.Join(parts, ", ") + "…"
}

// extractKeyFindings scans successful ToolResults per tool family (spec.md
// §4.5 Step 5): web content and citation snippets, ticket/doc summaries,
// and semantic-search hits — never the progress-preview count strings.
func extractKeyFindings(steps []ExecutionStep) []string {
	var findings []string
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f == "" || len(findings) >= maxKeyFindings {
			return
		}
		findings = append(findings, truncateFinding(f))
	}

	for _, s := range steps {
		if s.Status != StepCompleted {
			continue
		}
		switch payload := s.Result.Payload.(type) {
		case []tools.SemanticSearchItem:
			for _, item := range payload {
				add(item.Content)
			}
		case tools.WebSearchPayload:
			add(payload.Content)
			for _, c := range payload.Citations {
				add(c.Snippet)
			}
		case tools.TicketsAndDocsPayload:
			for _, item := range payload.Data {
				if item.Summary != "" {
					add(item.Title + ": " + item.Summary)
				} else {
					add(item.Title)
				}
			}
		}
	}
	return findings
}

func truncateFinding(s string) string {
	runes := []rune(s)
	if len(runes) <= maxFindingLen {
		return s
	}
	return string(runes[:maxFindingLen]) + "…"
}

func extractSourceLinks(steps []ExecutionStep) []SourceLink {
	seen := map[string]bool{}
	var links []SourceLink
	add := func(title, url, typ string) {
		if url == "" || seen[url] || len(links) >= maxSourceLinks {
			return
		}
		seen[url] = true
		links = append(links, SourceLink{Title: title, URL: url, Type: typ})
	}
	for _, s := range steps {
		if s.Status != StepCompleted {
			continue
		}
		switch payload := s.Result.Payload.(type) {
		case tools.WebSearchPayload:
			for _, c := range payload.Citations {
				add(c.Title, c.URL, "web")
			}
		case tools.TicketsAndDocsPayload:
			for _, item := range payload.Data {
				add(item.Title, item.URL, string(item.Type))
			}
		}
	}
	return links
}

// confidenceTable implements spec.md §4.5 Step 5: "success >=0.8 and
// substantive ⇒ high; success >=0.5 or substantive ⇒ medium; else low".
func assessConfidence(steps []ExecutionStep) Confidence {
	if len(steps) == 0 {
		return ConfidenceMedium
	}
	var succeeded int
	for _, s := range steps {
		if s.Status == StepCompleted {
			succeeded++
		}
	}
	successRate := float64(succeeded) / float64(len(steps))
	substantive := succeeded > 0 && len(extractKeyFindings(steps)) > 0

	if successRate >= 0.8 && substantive {
		return ConfidenceHigh
	}
	if successRate >= 0.5 || substantive {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// extractFollowups merges orchestrator-suggested followups with the
// model-generated ones, deduplicated case-insensitively and truncated to
// maxFollowups (spec.md §4.5 Step 5).
func extractFollowups(req Request, steps []ExecutionStep, modelGenerated []string) []string {
	suggested := orchestratorFollowups(req, steps)
	suggested = append(suggested, modelGenerated...)
	return dedupeFoldCaseLimit(suggested, maxFollowups)
}

func orchestratorFollowups(req Request, steps []ExecutionStep) []string {
	var out []string
	for _, s := range steps {
		switch tools.ToolID(s.ActionID) {
		case tools.ToolWebSearch:
			out = append(out, "Want me to look further into recent developments on this?")
		case tools.ToolTicketsAndDocs:
			out = append(out, "Should I check for related tickets or docs?")
		case tools.ToolCalendarOp:
			out = append(out, "Want me to go ahead and schedule that?")
		}
	}
	return out
}

func dedupeFoldCaseLimit(items []string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out
}
