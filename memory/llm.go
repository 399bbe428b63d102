package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/internal/strictjson"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/providers"
	"github.com/relaychat/conductor/statestore"
	"github.com/relaychat/conductor/types"
)

// maxExtractionSelfCorrections bounds the re-prompt loop when the
// entity-extraction model returns invalid JSON (spec.md §4.3, §7).
const maxExtractionSelfCorrections = 2

// NewLLMSummarizeFunc adapts a statestore.Summarizer (e.g. LLMSummarizer)
// into the SummarizeFunc contract, degrading to a stub-concatenation
// fallback on model failure (spec.md §4.3's Background Summarizer contract
// is otherwise implemented by BackgroundPool itself).
func NewLLMSummarizeFunc(summarizer statestore.Summarizer) SummarizeFunc {
	return func(ctx context.Context, conversationID string, evicted []Turn, existing LongTermSummary) (LongTermSummary, error) {
		messages := make([]types.Message, len(evicted))
		for i, t := range evicted {
			messages[i] = t.ToMessage()
		}

		text, err := summarizer.Summarize(ctx, messages)
		if err != nil {
			return LongTermSummary{}, err
		}

		combined := text
		if existing.Text != "" {
			combined = existing.Text + " " + text
		}

		return LongTermSummary{
			Text:             combined,
			CoveredTurnCount: existing.CoveredTurnCount + len(evicted),
			LastUpdated:      time.Now(),
		}, nil
	}
}

// extractedEntity is the wire shape the entity-extraction model is asked to
// emit: a flat JSON array of typed facts.
type extractedEntity struct {
	Type      string  `json:"type"`
	Value     string  `json:"value"`
	Context   string  `json:"context"`
	Relevance float64 `json:"relevance"`
}

// NewLLMExtractFunc builds an ExtractFunc that augments pattern extraction
// with an LLM JSON pass. Invalid JSON triggers up to
// maxExtractionSelfCorrections re-prompts with the parser error; after that
// the LLM pass contributes nothing (spec.md §4.3, §7 parse_error handling).
func NewLLMExtractFunc(provider providers.Provider, now func() time.Time) ExtractFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, conversationID, query, answer, userName string) ([]entity.Entity, error) {
		prompt := extractionPrompt(query, answer)
		var lastErr error

		for attempt := 0; attempt <= maxExtractionSelfCorrections; attempt++ {
			resp, err := provider.Chat(ctx, providers.ChatRequest{
				System: "Extract structured facts from the conversation as a JSON array of " +
					`objects: [{"type":"jira_ticket|project|person|deadline|document|url|metric|technology|other",` +
					`"value":"...","context":"...","relevance":0.0}]. Respond with ONLY the JSON array.`,
				Messages: []types.Message{
					{Role: "user", Content: prompt},
				},
				MaxTokens:   400,
				Temperature: 0.1,
			})
			if err != nil {
				if providers.IsQuotaExhausted(err) {
					return nil, err
				}
				lastErr = err
				continue
			}

			parsed, parseErr := parseExtractedEntities(resp.Content)
			if parseErr == nil {
				out := make([]entity.Entity, 0, len(parsed))
				for _, pe := range parsed {
					out = append(out, entity.NewEntity(entity.Type(pe.Type), pe.Value, pe.Context, conversationID, pe.Relevance, "ai", now()))
				}
				return out, nil
			}

			lastErr = parseErr
			prompt = fmt.Sprintf("Your previous output failed to parse as JSON: %v\nOutput was:\n%s\nRe-emit ONLY a valid JSON array.", parseErr, resp.Content)
			logger.DefaultLogger.Warn("memory: entity extraction JSON parse failed, re-prompting",
				"conversation_id", conversationID, "attempt", attempt, "error", parseErr)
		}

		return nil, fmt.Errorf("memory: entity extraction exhausted self-correction attempts: %w", lastErr)
	}
}

func extractionPrompt(query, answer string) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", query, answer)
}

func parseExtractedEntities(raw string) ([]extractedEntity, error) {
	var out []extractedEntity
	if err := strictjson.Decode([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid entity extraction JSON: %w", err)
	}
	return out, nil
}
