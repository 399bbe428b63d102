package engine

import "errors"

// Error taxonomy (spec.md §7): kinds, not type names. Each sentinel marks a
// class of failure the engine handles differently at a state boundary;
// none of these ever escape process() as a returned error — they are
// converted to ProgressEvents and fallback outcomes inline.
var (
	// ErrTimeout marks a deadline-exceeded boundary; never retried
	// automatically.
	ErrTimeout = errors.New("engine: deadline exceeded")

	// ErrParseError marks a model response that failed structural
	// validation (plan JSON, evaluator JSON, entity-extraction JSON).
	ErrParseError = errors.New("engine: model output failed to parse")

	// ErrCancelled marks a request whose context was cancelled by the
	// caller or upstream.
	ErrCancelled = errors.New("engine: request cancelled")

	// ErrInvariantViolated marks an internal bug: logged at error level,
	// the engine still produces a low-confidence fallback rather than
	// crashing.
	ErrInvariantViolated = errors.New("engine: invariant violated")
)
