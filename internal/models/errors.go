package models

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound means no memory exists yet. Callers treat it as "use defaults".
	ErrNotFound          = errors.New("memory not found")
	ErrCacheMiss         = errors.New("cache miss")
	ErrCacheUnavailable  = errors.New("cache unavailable")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrCalibrationFailed = errors.New("calibration failed")
	ErrInvalidData       = errors.New("invalid data")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrBatchTooLarge     = errors.New("batch too large")
	// ErrVersionConflict means the document changed between a read and a conditional save.
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError lists every rejected field of a payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid data: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidData
}

// RetryableError is returned for writes rejected while a dependency is unhealthy.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// RateLimitError carries the delay after which the tenant may retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded, retry after " + e.RetryAfter.String()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}
