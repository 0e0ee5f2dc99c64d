package pkg

import "errors"

// Sentinel errors returned across the daemon's core operations.
// Callers should use errors.Is/errors.As rather than string matching.
var (
	// ErrInvalidContext: timestamp unparseable, speed negative, or
	// activity not in the recognized vocabulary.
	ErrInvalidContext = errors.New("nudge: invalid context")
	// ErrRuleNotFound: feedback submitted for a deleted or nonexistent
	// rule, or a rule lookup that misses.
	ErrRuleNotFound = errors.New("nudge: rule not found")
	// ErrPersistenceFailure: a store operation failed after one retry.
	ErrPersistenceFailure = errors.New("nudge: persistence failure")
	// ErrConcurrentModification is retried internally (bounded) and
	// should never surface to a caller; exported for test assertions.
	ErrConcurrentModification = errors.New("nudge: concurrent modification")
)
