package tokenizer

import (
	"fmt"
	"strings"

	"github.com/relaychat/conductor/logger"
)

// SpeakerUser and SpeakerAssistant are the two labels a turn may carry,
// per spec.md §3.
const (
	SpeakerUser      = "User"
	SpeakerAssistant = "Assistant"
)

// Turn is the minimal view of a chat message the Token Accountant needs:
// a role/author plus text. types.Message satisfies this via an adapter in
// the memory package; it is kept separate here so tokenizer has no
// dependency on the wider domain model.
type Turn struct {
	// IsBot is true when the speaker is the assistant (author_metadata.is_bot
	// or a matched bot name).
	IsBot bool
	Text  string
}

// TokenizedTurn is the derived, speaker-prefixed view of a Turn. Invariant:
// TokenCount == tokens(FormattedText) under the configured counter.
type TokenizedTurn struct {
	SpeakerLabel  string
	FormattedText string
	TokenCount    int
}

// BotNameSet is a configurable set of author names treated as bots, in
// addition to IsBot. Lookups are case-insensitive.
type BotNameSet map[string]struct{}

// NewBotNameSet builds a BotNameSet from a list of names.
func NewBotNameSet(names []string) BotNameSet {
	set := make(BotNameSet, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Contains reports whether name (case-insensitively) is a known bot name.
func (b BotNameSet) Contains(name string) bool {
	if b == nil {
		return false
	}
	_, ok := b[strings.ToLower(name)]
	return ok
}

// TokenizeTurn derives a TokenizedTurn from a Turn using the given counter.
// Missing/empty text becomes the empty string rather than an error, per
// spec.md §4.1.
func TokenizeTurn(counter TokenCounter, turn Turn) TokenizedTurn {
	label := SpeakerUser
	if turn.IsBot {
		label = SpeakerAssistant
	}
	formatted := fmt.Sprintf("%s: %s", label, turn.Text)
	return TokenizedTurn{
		SpeakerLabel:  label,
		FormattedText: formatted,
		TokenCount:    CountTokensSafe(counter, formatted),
	}
}

// CountTokensSafe counts tokens for arbitrary text without ever panicking.
// On a misbehaving counter it falls back to a character-length/4 estimate
// and logs a warning, per spec.md §4.1's failure semantics.
func CountTokensSafe(counter TokenCounter, text string) (count int) {
	defer func() {
		if r := recover(); r != nil {
			logger.DefaultLogger.Warn("tokenizer: counter panicked, falling back to char estimate", "panic", r)
			count = len(text) / 4
		}
	}()
	if counter == nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// WindowStats reports the outcome of a BuildWindow call, for observability.
type WindowStats struct {
	KeptCount      int
	EvictedCount   int
	KeptTokens     int
	BudgetExceeded bool // true only when a single preserved turn alone exceeds max_tokens
}

// BuildWindow selects a token-budgeted, contiguous suffix of turns.
//
// Algorithm (spec.md §4.1): walk backward from the most recent turn. The
// most recent preserveRecent turns are always kept regardless of budget.
// Earlier turns are kept while the running token sum stays <= maxTokens;
// once a turn cannot fit, it and all older turns are evicted. kept is
// returned in chronological order; evicted is returned in chronological
// order as well.
func BuildWindow(turns []TokenizedTurn, maxTokens, preserveRecent int) (kept, evicted []TokenizedTurn, stats WindowStats) {
	n := len(turns)
	if n == 0 {
		return nil, nil, WindowStats{}
	}
	if preserveRecent > n {
		preserveRecent = n
	}

	keptSet := make([]bool, n)
	runningSum := 0

	// Always keep the most recent preserveRecent turns, regardless of budget.
	for i := n - preserveRecent; i < n; i++ {
		keptSet[i] = true
		runningSum += turns[i].TokenCount
	}
	if preserveRecent > 0 && runningSum > maxTokens {
		stats.BudgetExceeded = true
		logger.DefaultLogger.Warn("tokenizer: preserved recent turns alone exceed token budget",
			"running_sum", runningSum, "max_tokens", maxTokens)
	}

	// Walk backward through the remaining (older) turns; stop at the first
	// turn that would blow the budget.
	cutoff := n - preserveRecent
	fits := true
	for i := cutoff - 1; i >= 0; i-- {
		if !fits {
			break
		}
		candidateSum := runningSum + turns[i].TokenCount
		if candidateSum > maxTokens {
			fits = false
			break
		}
		keptSet[i] = true
		runningSum = candidateSum
	}

	for i := 0; i < n; i++ {
		if keptSet[i] {
			kept = append(kept, turns[i])
		} else {
			evicted = append(evicted, turns[i])
		}
	}

	stats.KeptCount = len(kept)
	stats.EvictedCount = len(evicted)
	stats.KeptTokens = runningSum
	return kept, evicted, stats
}

// FormatWindow joins kept turns' formatted text with newlines.
func FormatWindow(kept []TokenizedTurn) string {
	lines := make([]string, len(kept))
	for i, t := range kept {
		lines[i] = t.FormattedText
	}
	return strings.Join(lines, "\n")
}

// EfficiencyReport compares a cheap character-based estimate to a precise
// token count, for observability dashboards outside the core.
type EfficiencyReport struct {
	CharEstimate  int
	PreciseCount  int
	Ratio         float64 // PreciseCount / CharEstimate, 0 if CharEstimate is 0
	OverEstimated bool
}

// BuildEfficiencyReport compares charEstimate against preciseCount.
func BuildEfficiencyReport(charEstimate, preciseCount int) EfficiencyReport {
	report := EfficiencyReport{CharEstimate: charEstimate, PreciseCount: preciseCount}
	if charEstimate > 0 {
		report.Ratio = float64(preciseCount) / float64(charEstimate)
	}
	report.OverEstimated = charEstimate > preciseCount
	return report
}
