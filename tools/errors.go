package tools

import "errors"

// Error kinds the tool layer classifies upstream failures into (spec.md §7).
// Backends wrap their failures with one of these sentinels and adapters
// carry the wrapped error through DomainResult.Cause, where
// DomainRegistry.Invoke's retry policy classifies it with errors.Is:
// transient failures are retried for idempotent reads, rejected
// credentials are never retried, and empty outcomes feed replanning
// instead of the retry loop.
var (
	// ErrTransient marks a recoverable network or transport error.
	ErrTransient = errors.New("transient upstream error")

	// ErrAuth marks rejected credentials; not retried.
	ErrAuth = errors.New("upstream rejected credentials")

	// ErrNotFound marks an upstream that answered but had nothing usable.
	ErrNotFound = errors.New("no usable content")
)
