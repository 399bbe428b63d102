package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// LoadOverlay reads a YAML file at path and merges it onto base, with the
// overlay taking precedence over whatever base already carries (spec.md §6:
// a YAML overlay "takes precedence" over environment defaults). Before
// merging, the overlay's schema_version is checked against
// CompatibleSchemaRange; an incompatible or malformed version is rejected
// rather than silently applied, per spec.md §9's "untrusted parsing"
// discipline extended to configuration files.
func LoadOverlay(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read overlay %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, fmt.Errorf("config: parse overlay %s: %w", path, err)
	}

	if overlay.SchemaVersion != "" {
		if err := checkSchemaCompatible(overlay.SchemaVersion); err != nil {
			return base, fmt.Errorf("config: overlay %s: %w", path, err)
		}
	}

	return mergeOverlay(base, overlay), nil
}

// checkSchemaCompatible verifies version satisfies CompatibleSchemaRange.
func checkSchemaCompatible(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(CompatibleSchemaRange)
	if err != nil {
		return fmt.Errorf("invalid compatibility constraint %q: %w", CompatibleSchemaRange, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("schema_version %q is incompatible with this engine (requires %s)", version, CompatibleSchemaRange)
	}
	return nil
}

// mergeOverlay layers non-zero overlay fields onto base. Zero-valued
// overlay fields (an unset YAML key) leave base's value untouched, so a
// partial overlay only needs to specify the knobs it changes.
func mergeOverlay(base, overlay Config) Config {
	merged := base

	if overlay.SchemaVersion != "" {
		merged.SchemaVersion = overlay.SchemaVersion
	}

	mergeMemory(&merged.Memory, overlay.Memory)
	mergeEngine(&merged.Engine, overlay.Engine)
	mergeTools(&merged.Tools, overlay.Tools)
	mergeGuardrails(&merged.Guardrails, overlay.Guardrails)
	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}

	return merged
}

func mergeMemory(dst *MemoryConfig, src MemoryConfig) {
	if src.MaxLiveTurns != 0 {
		dst.MaxLiveTurns = src.MaxLiveTurns
	}
	if src.MaxLiveTokens != 0 {
		dst.MaxLiveTokens = src.MaxLiveTokens
	}
	if src.PreserveRecent != 0 {
		dst.PreserveRecent = src.PreserveRecent
	}
	if src.MaxEntitySearchKeywords != 0 {
		dst.MaxEntitySearchKeywords = src.MaxEntitySearchKeywords
	}
	if src.TokenizerModelFamily != "" {
		dst.TokenizerModelFamily = src.TokenizerModelFamily
	}
	if len(src.BotNames) > 0 {
		dst.BotNames = src.BotNames
	}
}

func mergeEngine(dst *EngineConfig, src EngineConfig) {
	if src.MaxReplanningIterations != 0 {
		dst.MaxReplanningIterations = src.MaxReplanningIterations
	}
	if src.RequestSoftBudget != 0 {
		dst.RequestSoftBudget = src.RequestSoftBudget
	}
	if src.ReasoningDeadline != 0 {
		dst.ReasoningDeadline = src.ReasoningDeadline
	}
	if src.PlanExtractionDeadline != 0 {
		dst.PlanExtractionDeadline = src.PlanExtractionDeadline
	}
	if src.EvaluatorDeadline != 0 {
		dst.EvaluatorDeadline = src.EvaluatorDeadline
	}
	if src.SynthesisDeadline != 0 {
		dst.SynthesisDeadline = src.SynthesisDeadline
	}
	if len(src.ReasoningTiers) > 0 {
		dst.ReasoningTiers = src.ReasoningTiers
	}
}

func mergeGuardrails(dst *GuardrailsConfig, src GuardrailsConfig) {
	if len(src.BannedWords) > 0 {
		dst.BannedWords = src.BannedWords
	}
	if src.MaxCharacters != 0 {
		dst.MaxCharacters = src.MaxCharacters
	}
	if src.MaxSentences != 0 {
		dst.MaxSentences = src.MaxSentences
	}
	if len(src.RequiredFields) > 0 {
		dst.RequiredFields = src.RequiredFields
	}
}

func mergeTools(dst *ToolsConfig, src ToolsConfig) {
	if src.PerToolTimeout != 0 {
		dst.PerToolTimeout = src.PerToolTimeout
	}
	if src.RateGateInterval != 0 {
		dst.RateGateInterval = src.RateGateInterval
	}
	if src.RetryBaseDelay != 0 {
		dst.RetryBaseDelay = src.RetryBaseDelay
	}
	if src.RetryCapDelay != 0 {
		dst.RetryCapDelay = src.RetryCapDelay
	}
	if src.RetryMaxAttempts != 0 {
		dst.RetryMaxAttempts = src.RetryMaxAttempts
	}
}
