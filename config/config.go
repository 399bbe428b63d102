// Package config provides configuration management for the orchestration
// engine runtime.
//
// This package handles environment-driven defaults with an optional
// YAML overlay file for:
//   - Hybrid Conversation Memory budgets (live window, token caps)
//   - Orchestration Engine limits (replanning iterations, per-phase deadlines)
//   - Tool Registry pacing (rate-gate spacing, retry attempts)
//   - Reasoning tier selection and bot-name recognition
//
// Environment variables are read first; an overlay file loaded with
// LoadOverlay (if present) takes precedence over them, mirroring the
// layered defaults-then-file-refs loading used elsewhere in this codebase.
// The overlay's schema_version is checked against CompatibleSchemaRange
// using Masterminds/semver so a config written for an incompatible engine
// version fails fast instead of silently misconfiguring budgets.
package config

import "time"

// Config is the fully resolved configuration surface for one engine
// instance, after environment defaults and any YAML overlay have been
// merged.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	Memory     MemoryConfig     `yaml:"memory"`
	Engine     EngineConfig     `yaml:"engine"`
	Tools      ToolsConfig      `yaml:"tools"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MemoryConfig mirrors the Hybrid Conversation Memory budgets (spec.md §6).
type MemoryConfig struct {
	MaxLiveTurns            int      `yaml:"max_live_turns"`
	MaxLiveTokens           int      `yaml:"max_live_tokens"`
	PreserveRecent          int      `yaml:"preserve_recent"`
	MaxEntitySearchKeywords int      `yaml:"max_entity_search_keywords"`
	TokenizerModelFamily    string   `yaml:"tokenizer_model_family"`
	BotNames                []string `yaml:"bot_names"`
}

// EngineConfig mirrors the Orchestration Engine's hard caps and per-phase
// deadlines (spec.md §4.5, §5).
type EngineConfig struct {
	MaxReplanningIterations int           `yaml:"max_replanning_iterations"`
	RequestSoftBudget       time.Duration `yaml:"request_soft_budget"`
	ReasoningDeadline       time.Duration `yaml:"reasoning_deadline"`
	PlanExtractionDeadline  time.Duration `yaml:"plan_extraction_deadline"`
	EvaluatorDeadline       time.Duration `yaml:"evaluator_deadline"`
	SynthesisDeadline       time.Duration `yaml:"synthesis_deadline"`
	ReasoningTiers          []string      `yaml:"reasoning_tiers"`
}

// ToolsConfig mirrors the Tool Registry's pacing and retry policy
// (spec.md §4.4).
type ToolsConfig struct {
	PerToolTimeout   time.Duration `yaml:"per_tool_timeout"`
	RateGateInterval time.Duration `yaml:"rate_gate_interval"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryCapDelay    time.Duration `yaml:"retry_cap_delay"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
}

// GuardrailsConfig selects the output guardrails the engine runs over
// every candidate answer beside the mandatory raw-JSON-leak scan
// (spec.md §4.5 Output sanitization). Zero values leave the corresponding
// guardrail off; guardrails.NewAnswerGuard consumes this shape directly.
type GuardrailsConfig struct {
	BannedWords    []string `yaml:"banned_words"`
	MaxCharacters  int      `yaml:"max_characters"`
	MaxSentences   int      `yaml:"max_sentences"`
	RequiredFields []string `yaml:"required_fields"`
}

// LoggingConfig controls the structured logger's verbosity. Level is one
// of "debug", "info", "warn", "error"; an empty value leaves the logger
// package's own LOG_LEVEL-derived default untouched.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CurrentSchemaVersion is stamped onto a freshly-built Config and compared
// against any overlay's schema_version.
const CurrentSchemaVersion = "1.0.0"

// CompatibleSchemaRange is the semver constraint an overlay's
// schema_version must satisfy to be trusted (spec.md §9's "dynamic JSON/
// YAML parsing is treated as untrusted" extended to config overlays).
const CompatibleSchemaRange = "~1"

// Defaults returns the environment configuration surface enumerated in
// spec.md §6, before any environment or file overlay is applied.
func Defaults() Config {
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		Memory: MemoryConfig{
			MaxLiveTurns:            10,
			MaxLiveTokens:           2000,
			PreserveRecent:          2,
			MaxEntitySearchKeywords: 10,
			TokenizerModelFamily:    "default",
			BotNames:                []string{"assistant", "bot"},
		},
		Engine: EngineConfig{
			MaxReplanningIterations: 3,
			RequestSoftBudget:       90 * time.Second,
			ReasoningDeadline:       15 * time.Second,
			PlanExtractionDeadline:  8 * time.Second,
			EvaluatorDeadline:       10 * time.Second,
			SynthesisDeadline:       12 * time.Second,
			ReasoningTiers:          []string{"preferred", "cheap"},
		},
		Tools: ToolsConfig{
			PerToolTimeout:   30 * time.Second,
			RateGateInterval: 100 * time.Millisecond,
			RetryBaseDelay:   1 * time.Second,
			RetryCapDelay:    10 * time.Second,
			RetryMaxAttempts: 3,
		},
		Guardrails: GuardrailsConfig{},
		Logging:    LoggingConfig{Level: ""},
	}
}
