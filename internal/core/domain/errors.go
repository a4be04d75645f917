package domain

import (
	"errors"
	"fmt"
)

var (
	// Request-shape errors, user-correctable.
	ErrNoDocuments     = errors.New("no documents uploaded")
	ErrPayloadTooLarge = errors.New("upload payload too large")
	ErrModeUnavailable = errors.New("extraction mode unavailable")

	// External LLM failures. Recovered by rule fallback only when the
	// requested mode was auto; propagated otherwise.
	ErrLLMNotConfigured = errors.New("llm not configured")
	ErrLLMResponse      = errors.New("llm response unusable")
	ErrLLMSchema        = errors.New("llm response schema invalid")

	// ErrContractViolation means aggregated rows or metadata break the
	// batch contract. Always fatal, never retried.
	ErrContractViolation = errors.New("extraction contract violation")

	ErrRunNotFound = errors.New("run not found")
	ErrTemporary   = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
