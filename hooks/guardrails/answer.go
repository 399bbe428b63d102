package guardrails

import (
	"context"

	"github.com/relaychat/conductor/hooks"
	"github.com/relaychat/conductor/types"
)

// AnswerConfig selects which output guardrails run over every candidate
// answer in addition to the mandatory raw-JSON-leak scan. Zero values
// leave the corresponding guardrail unregistered.
type AnswerConfig struct {
	BannedWords    []string
	MaxCharacters  int
	MaxSentences   int
	RequiredFields []string
}

// AnswerGuard is the guardrail chain the engine's Synthesize step runs
// before returning an answer. It always contains RawJSONLeakHook; the
// configurable guardrails are registered around it. The same hooks are
// also exposed as a hooks.Registry so a provider pipeline can attach them
// for streaming interception.
type AnswerGuard struct {
	chain    []hooks.ProviderHook
	registry *hooks.Registry
}

// NewAnswerGuard builds the guardrail chain from cfg.
func NewAnswerGuard(cfg AnswerConfig) *AnswerGuard {
	chain := []hooks.ProviderHook{NewRawJSONLeakHook()}
	if len(cfg.BannedWords) > 0 {
		chain = append(chain, NewBannedWordsHook(cfg.BannedWords))
	}
	if cfg.MaxCharacters > 0 {
		chain = append(chain, NewLengthHook(cfg.MaxCharacters, 0))
	}
	if cfg.MaxSentences > 0 {
		chain = append(chain, NewMaxSentencesHook(cfg.MaxSentences))
	}
	if len(cfg.RequiredFields) > 0 {
		chain = append(chain, NewRequiredFieldsHook(cfg.RequiredFields))
	}

	opts := make([]hooks.Option, 0, len(chain))
	for _, h := range chain {
		opts = append(opts, hooks.WithProviderHook(h))
	}

	return &AnswerGuard{chain: chain, registry: hooks.NewRegistry(opts...)}
}

// Registry returns the hooks.Registry form of the chain, for callers that
// run it through RunAfterProviderCall / chunk interception.
func (g *AnswerGuard) Registry() *hooks.Registry {
	return g.registry
}

// CheckAnswer runs every guardrail over a candidate answer string and
// returns the name of the first denying guardrail with its decision, or
// ("", Allow) when all pass. A nil guard falls back to the mandatory
// raw-JSON-leak scan alone.
func (g *AnswerGuard) CheckAnswer(ctx context.Context, text string) (string, hooks.Decision) {
	if g == nil {
		if d := Check(text); !d.Allow {
			return RawJSONLeakName, d
		}
		return "", hooks.Allow
	}

	req := &hooks.ProviderRequest{}
	resp := &hooks.ProviderResponse{
		Message: types.Message{Role: "assistant", Content: text},
	}
	for _, h := range g.chain {
		if d := h.AfterCall(ctx, req, resp); !d.Allow {
			return h.Name(), d
		}
	}
	return "", hooks.Allow
}
