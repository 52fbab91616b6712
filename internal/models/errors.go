package models

import "errors"

var (
	// ErrNotFound is returned when a referenced prompt, version, run or merge request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a merge request is not in the state a transition requires.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyConflict is returned when version number allocation kept losing to
	// concurrent writers. Callers may retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrUpstreamExecution marks a failed or timed out model call. It is recorded on the run
	// instead of being returned to the caller of an execution.
	ErrUpstreamExecution = errors.New("upstream execution failed")
)
