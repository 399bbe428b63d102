package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeTurnSpeakerLabel(t *testing.T) {
	counter := NewHeuristicTokenCounter(ModelFamilyDefault)

	user := TokenizeTurn(counter, Turn{IsBot: false, Text: "hello there"})
	assert.Equal(t, SpeakerUser, user.SpeakerLabel)
	assert.Equal(t, "User: hello there", user.FormattedText)
	assert.Equal(t, counter.CountTokens(user.FormattedText), user.TokenCount)

	bot := TokenizeTurn(counter, Turn{IsBot: true, Text: "hi!"})
	assert.Equal(t, SpeakerAssistant, bot.SpeakerLabel)
}

func TestTokenizeTurnEmptyText(t *testing.T) {
	counter := NewHeuristicTokenCounter(ModelFamilyDefault)
	turn := TokenizeTurn(counter, Turn{Text: ""})
	assert.Equal(t, "User: ", turn.FormattedText)
}

func TestCountTokensSafeNilCounter(t *testing.T) {
	n := CountTokensSafe(nil, "some text here")
	assert.Equal(t, len("some text here")/4, n)
}

type panickingCounter struct{}

func (panickingCounter) CountTokens(string) int     { panic("boom") }
func (panickingCounter) CountMultiple([]string) int { panic("boom") }

func TestCountTokensSafeRecoversFromPanic(t *testing.T) {
	n := CountTokensSafe(panickingCounter{}, "abcd")
	assert.Equal(t, 1, n)
}

func tokenizedTurns(counter TokenCounter, texts []string) []TokenizedTurn {
	turns := make([]TokenizedTurn, len(texts))
	for i, text := range texts {
		turns[i] = TokenizeTurn(counter, Turn{IsBot: i%2 == 1, Text: text})
	}
	return turns
}

func TestBuildWindowBasicInvariants(t *testing.T) {
	counter := NewHeuristicTokenCounter(ModelFamilyDefault)
	texts := []string{
		"first message with several words in it",
		"second reply",
		"third message here",
		"fourth reply here now",
		"fifth final message",
	}
	turns := tokenizedTurns(counter, texts)

	kept, evicted, stats := BuildWindow(turns, 10, 2)

	assert.Equal(t, len(turns), len(kept)+len(evicted))
	assert.LessOrEqual(t, len(kept), len(turns))
	assert.Equal(t, len(kept), stats.KeptCount)
	assert.Equal(t, len(evicted), stats.EvictedCount)

	sum := 0
	for _, kt := range kept {
		sum += kt.TokenCount
	}
	if stats.BudgetExceeded {
		assert.Equal(t, 2, len(kept)) // only the preserved-recent pair fit
	} else {
		assert.LessOrEqual(t, sum, 10)
	}

	// kept is a chronological suffix of turns: the last element of kept
	// must be the last element of turns.
	require.NotEmpty(t, kept)
	assert.Equal(t, turns[len(turns)-1].FormattedText, kept[len(kept)-1].FormattedText)
}

func TestBuildWindowPreservesRecentEvenOverBudget(t *testing.T) {
	counter := NewHeuristicTokenCounter(ModelFamilyDefault)
	huge := "word "
	for i := 0; i < 50; i++ {
		huge += "word "
	}
	turns := tokenizedTurns(counter, []string{"short one", huge})

	kept, _, stats := BuildWindow(turns, 5, 2)
	require.Len(t, kept, 2)
	assert.True(t, stats.BudgetExceeded)
}

func TestBuildWindowEmpty(t *testing.T) {
	kept, evicted, stats := BuildWindow(nil, 100, 2)
	assert.Nil(t, kept)
	assert.Nil(t, evicted)
	assert.Equal(t, 0, stats.KeptCount)
}

func TestFormatWindowIdempotentTokenCount(t *testing.T) {
	counter := NewHeuristicTokenCounter(ModelFamilyDefault)
	turns := tokenizedTurns(counter, []string{"hello world", "how are you doing today"})

	formatted := FormatWindow(turns)
	retokenized := counter.CountTokens(formatted)

	sum := 0
	for _, t := range turns {
		sum += t.TokenCount
	}
	// newline joins add negligible token overhead under the heuristic
	// word-counter, but must not change the order of magnitude.
	assert.InDelta(t, sum, retokenized, float64(len(turns)))
}

func TestBuildEfficiencyReport(t *testing.T) {
	report := BuildEfficiencyReport(400, 100)
	assert.Equal(t, 0.25, report.Ratio)
	assert.True(t, report.OverEstimated)

	zero := BuildEfficiencyReport(0, 50)
	assert.Equal(t, float64(0), zero.Ratio)
}
