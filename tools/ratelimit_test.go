package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateGateSpacesCalls(t *testing.T) {
	gate := NewRateGate(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, gate.Wait(ctx))
	start := time.Now()
	require.NoError(t, gate.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRateGateDisabledByDefault(t *testing.T) {
	gate := NewRateGate(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, gate.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestWithRetrySucceedsImmediately(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) DomainResult {
		calls++
		return DomainResult{Success: true}
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	cause := fmt.Errorf("%w: connection reset", ErrTransient)
	result := WithRetry(context.Background(), func(ctx context.Context) DomainResult {
		calls++
		return DomainResult{Success: false, Error: "boom", Cause: cause}
	})

	assert.False(t, result.Success)
	assert.Equal(t, retryMaxAttempts, calls)
}

func TestWithRetryDoesNotRetryAuthFailures(t *testing.T) {
	calls := 0
	cause := fmt.Errorf("%w: upstream returned 401", ErrAuth)
	result := WithRetry(context.Background(), func(ctx context.Context) DomainResult {
		calls++
		return DomainResult{Success: false, Error: "unauthorized", Cause: cause}
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "rejected credentials must not be retried")
}

func TestWithRetryDoesNotRetryEmptyOutcomes(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) DomainResult {
		calls++
		return DomainResult{Success: false, Error: "no results", Cause: ErrNotFound}
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "empty outcomes feed replanning, not the backoff loop")
}

func TestWithRetryDoesNotRetryWithoutCause(t *testing.T) {
	calls := 0
	result := WithRetry(context.Background(), func(ctx context.Context) DomainResult {
		calls++
		return DomainResult{Success: false, Error: "invalid input type"}
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cancel()

	result := WithRetry(ctx, func(ctx context.Context) DomainResult {
		calls++
		return DomainResult{Success: false, Error: "boom", Cause: ErrTransient}
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}
