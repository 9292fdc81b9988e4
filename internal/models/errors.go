package models

import (
	"errors"
	"fmt"
	"time"
)

// NormalizationError is the base failure for the normalization pipeline.
// A nil Err means the message stands on its own.
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalization: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("normalization: %s", e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// NewNormalizationError creates a NormalizationError.
func NewNormalizationError(reason string, err error) error {
	return &NormalizationError{Reason: reason, Err: err}
}

// AIServiceError covers failures of the language-model backend
// (model unavailable, upstream 5xx, malformed transport response).
type AIServiceError struct {
	Reason string
	Err    error
}

func (e *AIServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ai service: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ai service: %s", e.Reason)
}

func (e *AIServiceError) Unwrap() error {
	return e.Err
}

// RateLimitError is raised when the model backend rejects with 429
// after retries are exhausted. RetryAfter is zero when the backend
// gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("ai service: rate limit exceeded (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("ai service: rate limit exceeded: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// TimeoutError is raised when an AI normalization attempt exceeds the
// configured per-attempt timeout, after retries are exhausted.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ai service: normalization timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ValidationError indicates malformed input or output. Never retried: the
// same payload will fail the same way.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("validation: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RepositoryError wraps persistence failures. Always fatal to the current
// event and never silently dropped.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// IsRetryableAI reports whether err belongs to the transient AI failure
// classes (rate limit, timeout, upstream error). Schema validation
// failures are terminal and return false.
func IsRetryableAI(err error) bool {
	var rl *RateLimitError
	var to *TimeoutError
	var svc *AIServiceError
	return errors.As(err, &rl) || errors.As(err, &to) || errors.As(err, &svc)
}
