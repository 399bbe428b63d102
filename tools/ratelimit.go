package tools

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaychat/conductor/logger"
)

// RateGate paces successive calls to a shared downstream (a model tier or a
// tool family) by a minimum interval, mirroring the limiter embedded in
// providers.HTTPProvider (spec.md §5: "successive calls ... are spaced by a
// minimum interval, roughly 100ms").
type RateGate struct {
	limiter *rate.Limiter
}

// NewRateGate builds a gate that spaces calls by minInterval. A zero or
// negative interval disables pacing (unlimited rate), matching
// providers.NewHTTPProvider's rate.Inf default.
func NewRateGate(minInterval time.Duration) *RateGate {
	if minInterval <= 0 {
		return &RateGate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateGate{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the gate admits the next call, or ctx is canceled.
func (g *RateGate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Retry policy constants (spec.md §4.4): exponential backoff starting at
// 1s, capped at 10s, at most 3 attempts, applied only to idempotent reads.
const (
	retryBaseDelay   = time.Second
	retryCapDelay    = 10 * time.Second
	retryMaxAttempts = 3
)

func (r DomainResult) failed() bool { return !r.Success }

// retryable classifies a failed result against the sentinel taxonomy
// (spec.md §7): only failures carrying an upstream error that is neither
// rejected credentials nor an empty outcome are worth retrying. Auth
// failures will not heal on retry, and not_found is input for replanning,
// not the backoff loop.
func retryable(r DomainResult) bool {
	if r.Cause == nil {
		return false
	}
	return !errors.Is(r.Cause, ErrAuth) && !errors.Is(r.Cause, ErrNotFound)
}

// WithRetry calls fn with exponential backoff (base 1s, cap 10s, up to 3
// attempts total) until it succeeds, fails unretryably, the context is
// canceled, or attempts are exhausted. Only call this for idempotent
// operations (spec.md §4.4).
func WithRetry(ctx context.Context, fn func(context.Context) DomainResult) DomainResult {
	var result DomainResult
	delay := retryBaseDelay

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		result = fn(ctx)
		if !result.failed() || !retryable(result) {
			return result
		}
		if attempt == retryMaxAttempts {
			break
		}

		logger.DefaultLogger.Warn("tools: retrying idempotent call after failure",
			"tool_id", result.ToolID, "attempt", attempt, "error", result.Error)

		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)/2+1))
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Error = ctx.Err().Error()
			return result
		case <-timer.C:
		}

		delay *= 2
		if delay > retryCapDelay {
			delay = retryCapDelay
		}
	}

	return result
}
