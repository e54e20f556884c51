package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAlpha signals a hybrid fusion weight outside [0.0, 1.0].
	ErrInvalidAlpha = errors.New("hybrid alpha must be between 0.0 and 1.0")
	// ErrInvalidConfig signals invalid static configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrStoreUnavailable signals a vector store whose runtime dependency is absent.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrServiceNotInitialized signals that a required collaborator was never wired up.
	ErrServiceNotInitialized = errors.New("service not initialized")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")
	// ErrGenerationFailed signals an LLM generation failure.
	ErrGenerationFailed = errors.New("generation failed")
)

// StoreError wraps a vector store failure with the failed operation and
// actionable remediation hints. The cause is never swallowed.
type StoreError struct {
	Backend string
	Op      string
	Hints   []string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a StoreError. Callers without a more specific idea
// pass no hints and get a generic connectivity hint.
func NewStoreError(backend, op string, err error, hints ...string) error {
	if len(hints) == 0 {
		hints = []string{"check backend connectivity and retry"}
	}
	return &StoreError{Backend: backend, Op: op, Hints: hints, Err: err}
}
