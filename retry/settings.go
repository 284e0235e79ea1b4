// Package retry provides the retrying decorator: on a retryable domain
// failure it reschedules the inner call after an exponential-backoff delay,
// bounded by a maximum attempt count and an overall time budget. Each
// invocation runs its own state machine; there is no retry state shared
// between invocations of the same callable.
package retry

import (
	"fmt"
	"time"
)

// JitterKind selects how a computed backoff is randomized.
type JitterKind string

const (
	// JitterNone uses the computed backoff as-is.
	JitterNone JitterKind = "none"
	// JitterFull sleeps a uniform random duration in [0, backoff).
	JitterFull JitterKind = "full"
	// JitterEqual sleeps backoff/2 plus a uniform random duration in [0, backoff/2).
	JitterEqual JitterKind = "equal"
)

// Settings configures the retrying decorator. Immutable once handed to
// Retrying; Validate enforces the construction-time invariants.
type Settings struct {
	// InitialBackoff is the delay scheduled before the first retry.
	InitialBackoff time.Duration
	// BackoffMultiplier grows the delay after each retry. Must be >= 1.
	BackoffMultiplier float64
	// MaxBackoff caps the computed delay. Zero means no cap.
	MaxBackoff time.Duration
	// Jitter randomizes each delay. An empty value means JitterNone.
	Jitter JitterKind

	// MaxAttempts bounds the number of inner invocations, counting the
	// first. Zero means unbounded, in which case TotalTimeout must be set.
	MaxAttempts int
	// TotalTimeout bounds the elapsed time across all attempts and waits,
	// measured against the clock capability. Zero means unbounded, in
	// which case MaxAttempts must be set.
	TotalTimeout time.Duration
}

// ValidationError reports an invalid Settings field.
type ValidationError struct {
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("retry: invalid settings field %s: %v", e.Field, e.Value)
}

// Validate checks the construction-time invariants: durations non-negative,
// multiplier >= 1, a valid jitter kind, and at least one of MaxAttempts or
// TotalTimeout set.
func (s Settings) Validate() error {
	if s.InitialBackoff < 0 {
		return &ValidationError{Field: "initial_backoff", Value: s.InitialBackoff}
	}
	if s.MaxBackoff < 0 {
		return &ValidationError{Field: "max_backoff", Value: s.MaxBackoff}
	}
	if s.BackoffMultiplier < 1 {
		return &ValidationError{Field: "backoff_multiplier", Value: s.BackoffMultiplier}
	}
	switch s.Jitter {
	case "", JitterNone, JitterFull, JitterEqual:
	default:
		return &ValidationError{Field: "jitter", Value: string(s.Jitter)}
	}
	if s.MaxAttempts < 0 {
		return &ValidationError{Field: "max_attempts", Value: s.MaxAttempts}
	}
	if s.TotalTimeout < 0 {
		return &ValidationError{Field: "total_timeout", Value: s.TotalTimeout}
	}
	if s.MaxAttempts == 0 && s.TotalTimeout == 0 {
		return &ValidationError{Field: "max_attempts", Value: "no attempt or time budget configured"}
	}
	return nil
}
