// Package observe defines lifecycle hooks emitted by the retrying and
// bundling decorators. The core never logs or records metrics itself;
// sinks are opt-in Observer implementations (see LogObserver, and the
// prometheus/otel examples).
package observe

import (
	"context"
	"time"
)

// AttemptRecord describes a single attempt of a retried invocation.
type AttemptRecord struct {
	// InvocationID identifies the outer invocation all attempts belong to.
	InvocationID string
	// Attempt counts from 1.
	Attempt int

	Start time.Time
	End   time.Time

	// Err is nil for a successful attempt.
	Err error
	// Retryable reports how the failure was classified.
	Retryable bool
	// Backoff is the delay scheduled before the next attempt, or zero if
	// this attempt resolved the invocation.
	Backoff time.Duration
}

// CallRecord describes a completed invocation after all attempts.
type CallRecord struct {
	InvocationID string
	Start        time.Time
	End          time.Time
	Attempts     int
	Err          error
}

// Flush triggers.
const (
	TriggerCount = "count"
	TriggerBytes = "bytes"
	TriggerDelay = "delay"
)

// FlushRecord describes one bundle flush.
type FlushRecord struct {
	BundleID string
	Key      string
	Members  int
	Bytes    int
	// Trigger is one of TriggerCount, TriggerBytes, TriggerDelay.
	Trigger string
	// Err is the failure fanned out to every member, or nil.
	Err error
}

// Observer receives decorator lifecycle callbacks. Implementations must be
// safe for concurrent use; callbacks run on call-chain goroutines and must
// not block.
type Observer interface {
	OnAttempt(ctx context.Context, rec AttemptRecord)
	OnCall(ctx context.Context, rec CallRecord)
	OnBundleFlush(ctx context.Context, rec FlushRecord)
}
