package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv layers the environment configuration surface of spec.md §6
// onto Defaults(), mirroring logger.go's LOG_LEVEL-from-environment
// pattern: each variable is read only if set, and malformed values are
// ignored in favor of the existing default rather than failing the
// process.
func LoadFromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	envInt("MAX_LIVE_TURNS", &cfg.Memory.MaxLiveTurns)
	envInt("MAX_LIVE_TOKENS", &cfg.Memory.MaxLiveTokens)
	envInt("PRESERVE_RECENT", &cfg.Memory.PreserveRecent)
	envInt("MAX_ENTITY_SEARCH_KEYWORDS", &cfg.Memory.MaxEntitySearchKeywords)
	envString("TOKENIZER_MODEL_FAMILY", &cfg.Memory.TokenizerModelFamily)
	envStringList("BOT_NAMES", &cfg.Memory.BotNames)

	envInt("MAX_REPLANNING_ITERATIONS", &cfg.Engine.MaxReplanningIterations)
	envDuration("REQUEST_SOFT_BUDGET", &cfg.Engine.RequestSoftBudget)
	envDuration("REASONING_DEADLINE", &cfg.Engine.ReasoningDeadline)
	envDuration("PLAN_EXTRACTION_DEADLINE", &cfg.Engine.PlanExtractionDeadline)
	envDuration("EVALUATOR_DEADLINE", &cfg.Engine.EvaluatorDeadline)
	envDuration("SYNTHESIS_DEADLINE", &cfg.Engine.SynthesisDeadline)
	envStringList("REASONING_TIERS", &cfg.Engine.ReasoningTiers)

	envDuration("PER_TOOL_TIMEOUT", &cfg.Tools.PerToolTimeout)
	envDuration("RATE_GATE_INTERVAL", &cfg.Tools.RateGateInterval)
	envDuration("RETRY_BASE_DELAY", &cfg.Tools.RetryBaseDelay)
	envDuration("RETRY_CAP_DELAY", &cfg.Tools.RetryCapDelay)
	envInt("RETRY_MAX_ATTEMPTS", &cfg.Tools.RetryMaxAttempts)

	envStringList("GUARDRAIL_BANNED_WORDS", &cfg.Guardrails.BannedWords)
	envInt("GUARDRAIL_MAX_CHARACTERS", &cfg.Guardrails.MaxCharacters)
	envInt("GUARDRAIL_MAX_SENTENCES", &cfg.Guardrails.MaxSentences)
	envStringList("GUARDRAIL_REQUIRED_FIELDS", &cfg.Guardrails.RequiredFields)

	envString("LOG_LEVEL", &cfg.Logging.Level)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envStringList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return
	}
	*dst = d
}
