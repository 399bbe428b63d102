package engine

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/internal/strictjson"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/memory"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/tools"
	"github.com/relaychat/conductor/types"
)

// planExtractionDeadline bounds the cheap structured-plan extraction call
// (spec.md §5: "≈8s").
const planExtractionDeadline = 8 * time.Second

const planExtractionSystemPrompt = `Extract a structured tool-use plan as JSON from the reasoning below.
Respond with ONLY a JSON object of this exact shape, no prose:
{"complexity":"simple|moderate|complex|research","strategy":"sequential|parallel|hybrid",
"calls":[{"tool":"semantic_search|web_search|tickets_and_docs|calendar_op","query":"..."}],
"observation_plan":"...","synthesis_approach":"..."}`

// planJSON is the wire shape the plan-extraction model call must conform
// to (spec.md §9: dynamic JSON parsing is treated as untrusted, with
// explicit validation).
type planJSON struct {
	Complexity        string         `json:"complexity"`
	Strategy          string         `json:"strategy"`
	Calls             []planCallJSON `json:"calls"`
	ObservationPlan   string         `json:"observation_plan"`
	SynthesisApproach string         `json:"synthesis_approach"`
}

type planCallJSON struct {
	Tool  string `json:"tool"`
	Query string `json:"query"`
}

var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

// plan extracts a structured Plan from the reasoning summary via a cheap
// model call; on any parse or model failure it falls back to the
// deterministic keyword-heuristic plan (spec.md §4.5 Steps 1-2).
func (e *Engine) plan(ctx context.Context, req Request, hist memory.HybridHistory, reasoning reasoningResult, priorFailure *Observation, em *events.Emitter) Plan {
	ctx, cancel := context.WithTimeout(ctx, planExtractionDeadline)
	defer cancel()

	userPrompt := reasoning.summary
	if priorFailure != nil {
		userPrompt += "\n\nPrevious attempt failed: " + priorFailure.Narrative + ". Propose a different approach."
	}

	for _, tier := range e.deps.ReasoningTiers {
		resp, err := e.chat(ctx, em, tier.Name, tier.Provider, providers.ChatRequest{
			System:      planExtractionSystemPrompt,
			Messages:    []types.Message{{Role: "user", Content: userPrompt}},
			MaxTokens:   400,
			Temperature: 0.1,
		})
		if err != nil {
			if providers.IsQuotaExhausted(err) {
				continue
			}
			break
		}
		parsed, ok := parsePlanJSON(resp.Content)
		if !ok {
			logger.DefaultLogger.Warn("engine: plan extraction produced invalid JSON, falling back to heuristic")
			break
		}
		p := parsed
		p.ReasoningSummary = reasoning.summary
		p.Source = "reasoning"
		return p
	}

	return heuristicPlan(req.UserText, reasoning.summary, priorFailure)
}

func parsePlanJSON(content string) (Plan, bool) {
	block := jsonBlockPattern.FindString(content)
	if block == "" {
		return Plan{}, false
	}
	var wire planJSON
	if err := strictjson.Decode([]byte(block), &wire); err != nil {
		return Plan{}, false
	}
	if len(wire.Calls) == 0 {
		return Plan{}, false
	}

	calls := make([]PlannedCall, 0, len(wire.Calls))
	for _, c := range wire.Calls {
		toolID := tools.ToolID(c.Tool)
		if !isKnownTool(toolID) {
			continue
		}
		calls = append(calls, PlannedCall{ToolID: toolID, Input: toolInputFor(toolID, c.Query)})
	}
	if len(calls) == 0 {
		return Plan{}, false
	}

	return Plan{
		Complexity:        Complexity(orDefault(wire.Complexity, string(ComplexityModerate))),
		Calls:             calls,
		Strategy:          Strategy(orDefault(wire.Strategy, string(StrategySequential))),
		ObservationPlan:   wire.ObservationPlan,
		SynthesisApproach: wire.SynthesisApproach,
	}, true
}

func isKnownTool(id tools.ToolID) bool {
	switch id {
	case tools.ToolSemanticSearch, tools.ToolWebSearch, tools.ToolTicketsAndDocs, tools.ToolCalendarOp:
		return true
	default:
		return false
	}
}

func toolInputFor(id tools.ToolID, query string) any {
	switch id {
	case tools.ToolSemanticSearch:
		return tools.SemanticSearchInput{Query: query, TopK: 5}
	case tools.ToolWebSearch:
		return tools.WebSearchInput{Query: query, MaxTokens: 800}
	case tools.ToolTicketsAndDocs:
		return tools.TicketsAndDocsInput{Task: query}
	case tools.ToolCalendarOp:
		return tools.CalendarOpInput{Action: tools.CalendarFindTimes, Args: map[string]any{"query": query}}
	default:
		return nil
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// heuristicVocabulary maps query keywords to the tool family they imply,
// per spec.md §4.5: "meeting -> calendar_op; latest/news -> web_search;
// project/ticket-system names -> tickets_and_docs; default -> semantic_search".
var heuristicVocabulary = []struct {
	keywords []string
	tool     tools.ToolID
}{
	{keywords: []string{"meeting", "schedule", "calendar", "availability", "book time"}, tool: tools.ToolCalendarOp},
	{keywords: []string{"latest", "news", "trend", "trends", "recent", "2024", "2025", "2026"}, tool: tools.ToolWebSearch},
	{keywords: []string{"ticket", "jira", "confluence", "doc", "docs", "issue", "epic"}, tool: tools.ToolTicketsAndDocs},
}

var ticketIDPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// heuristicPlan deterministically selects a tool by keyword match,
// skipping the tool family named in priorFailure.Narrative as already
// tried (spec.md §4.5's failure-replan substitution order is applied by
// the caller via Observe; this heuristic only handles the Analyze/Plan
// fallback path).
func heuristicPlan(userText, reasoningSummary string, priorFailure *Observation) Plan {
	lower := strings.ToLower(userText)

	chosen := tools.ToolSemanticSearch
	if ticketIDPattern.MatchString(userText) {
		chosen = tools.ToolTicketsAndDocs
	} else {
	match:
		for _, entry := range heuristicVocabulary {
			for _, kw := range entry.keywords {
				if strings.Contains(lower, kw) {
					chosen = entry.tool
					break match
				}
			}
		}
	}

	complexity := ComplexitySimple
	calls := []PlannedCall{}
	if strings.TrimSpace(userText) != "" && !isPureGreeting(lower) {
		calls = []PlannedCall{{ToolID: chosen, Input: toolInputFor(chosen, userText)}}
		complexity = ComplexityModerate
	}

	return Plan{
		ReasoningSummary:  reasoningSummary,
		Complexity:        complexity,
		Calls:             calls,
		Strategy:          StrategySequential,
		ObservationPlan:   "check whether the selected tool returned usable content",
		SynthesisApproach: "summarize tool output directly",
		Source:            "heuristic",
	}
}

var greetingWords = map[string]bool{
	"hey": true, "hi": true, "hello": true, "yo": true, "sup": true, "howdy": true,
}

func isPureGreeting(lower string) bool {
	fields := strings.Fields(strings.Trim(lower, "!.? "))
	if len(fields) == 0 || len(fields) > 3 {
		return false
	}
	for _, f := range fields {
		if greetingWords[strings.Trim(f, "!.?,")] {
			return true
		}
	}
	return false
}
