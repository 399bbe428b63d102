package guardrails

import (
	"context"
	"regexp"

	"github.com/relaychat/conductor/hooks"
)

// RawJSONLeakName is the guardrail type identifier for RawJSONLeakHook,
// exported so callers invoking Check directly can label the outcome.
const RawJSONLeakName = "raw_json_leak"

// nameRawJSONLeak is the guardrail type identifier for RawJSONLeakHook.
const nameRawJSONLeak = RawJSONLeakName

// rawJSONLeakPatterns catches substrings that indicate a model echoed
// planner-JSON verbatim instead of prose (spec.md §4.5 Output sanitization:
// `"limit":`, `"arguments"`, `"mcp_tool"`, a bare `{` at line start).
var rawJSONLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"limit"\s*:`),
	regexp.MustCompile(`"arguments"\s*:`),
	regexp.MustCompile(`"mcp_tool"\s*:`),
	regexp.MustCompile(`(?m)^\s*\{`),
}

// RawJSONLeakHook denies provider responses that leak raw planner-JSON.
// It is the mandatory output-sanitization guardrail the Orchestration
// Engine's Synthesize step applies before returning an answer (spec.md
// §4.5: "this guard is required because model outputs have historically
// leaked planner-JSON verbatim").
type RawJSONLeakHook struct{}

// Compile-time interface check.
var _ hooks.ProviderHook = (*RawJSONLeakHook)(nil)

// NewRawJSONLeakHook creates the raw-JSON-leak guardrail.
func NewRawJSONLeakHook() *RawJSONLeakHook { return &RawJSONLeakHook{} }

// Name returns the guardrail type identifier.
func (h *RawJSONLeakHook) Name() string { return nameRawJSONLeak }

// BeforeCall is a no-op — leakage is only detectable in the generated
// response.
func (h *RawJSONLeakHook) BeforeCall(_ context.Context, _ *hooks.ProviderRequest) hooks.Decision {
	return hooks.Allow
}

// AfterCall checks the completed response for raw-JSON leakage.
func (h *RawJSONLeakHook) AfterCall(
	_ context.Context, _ *hooks.ProviderRequest, resp *hooks.ProviderResponse,
) hooks.Decision {
	return Check(resp.Message.Content)
}

// Check reports whether text looks like a raw-JSON leak, independent of
// the ProviderHook plumbing, so the engine's Synthesize step can call it
// directly on a candidate answer string.
func Check(text string) hooks.Decision {
	for _, pattern := range rawJSONLeakPatterns {
		if pattern.MatchString(text) {
			return hooks.DenyWithMetadata(
				"raw JSON leak detected in candidate answer",
				map[string]any{"validator_type": nameRawJSONLeak, "pattern": pattern.String()},
			)
		}
	}
	return hooks.Allow
}
