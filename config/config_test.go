package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchesSpecBudgets(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 10, cfg.Memory.MaxLiveTurns)
	assert.Equal(t, 2000, cfg.Memory.MaxLiveTokens)
	assert.Equal(t, 2, cfg.Memory.PreserveRecent)
	assert.Equal(t, 3, cfg.Engine.MaxReplanningIterations)
	assert.Equal(t, 90*time.Second, cfg.Engine.RequestSoftBudget)
	assert.Equal(t, 15*time.Second, cfg.Engine.ReasoningDeadline)
	assert.Equal(t, 100*time.Millisecond, cfg.Tools.RateGateInterval)
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MAX_LIVE_TURNS", "20")
	t.Setenv("MAX_LIVE_TOKENS", "4000")
	t.Setenv("BOT_NAMES", "opsbot, releasebot")
	t.Setenv("REASONING_DEADLINE", "20s")

	cfg := LoadFromEnv()

	assert.Equal(t, 20, cfg.Memory.MaxLiveTurns)
	assert.Equal(t, 4000, cfg.Memory.MaxLiveTokens)
	assert.Equal(t, []string{"opsbot", "releasebot"}, cfg.Memory.BotNames)
	assert.Equal(t, 20*time.Second, cfg.Engine.ReasoningDeadline)
	// Untouched fields keep their defaults.
	assert.Equal(t, 2, cfg.Memory.PreserveRecent)
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_LIVE_TURNS", "not-a-number")
	t.Setenv("REASONING_DEADLINE", "not-a-duration")

	cfg := LoadFromEnv()

	assert.Equal(t, Defaults().Memory.MaxLiveTurns, cfg.Memory.MaxLiveTurns)
	assert.Equal(t, Defaults().Engine.ReasoningDeadline, cfg.Engine.ReasoningDeadline)
}

func writeOverlay(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadOverlayMergesAndTakesPrecedence(t *testing.T) {
	path := writeOverlay(t, `
schema_version: "1.2.0"
memory:
  max_live_turns: 15
engine:
  max_replanning_iterations: 5
`)

	merged, err := LoadOverlay(Defaults(), path)
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", merged.SchemaVersion)
	assert.Equal(t, 15, merged.Memory.MaxLiveTurns)
	assert.Equal(t, 5, merged.Engine.MaxReplanningIterations)
	// Untouched overlay fields fall back to base.
	assert.Equal(t, Defaults().Memory.MaxLiveTokens, merged.Memory.MaxLiveTokens)
}

func TestLoadOverlayRejectsIncompatibleSchemaVersion(t *testing.T) {
	path := writeOverlay(t, `
schema_version: "2.0.0"
memory:
  max_live_turns: 15
`)

	_, err := LoadOverlay(Defaults(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible")
}

func TestLoadOverlayRejectsMalformedSchemaVersion(t *testing.T) {
	path := writeOverlay(t, `schema_version: "not-semver"`)

	_, err := LoadOverlay(Defaults(), path)
	require.Error(t, err)
}

func TestLoadOverlayMissingFile(t *testing.T) {
	_, err := LoadOverlay(Defaults(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
