// Package sched defines the scheduler and clock capabilities shared by the
// retrying and bundling decorators. Both are injectable so tests can drive
// time deterministically; production code uses Default and System.
package sched

import "time"

// Handle refers to a scheduled callback.
type Handle interface {
	// Cancel prevents the callback from running. It reports whether the
	// callback was stopped before it started executing.
	Cancel() bool
}

// Scheduler invokes a callback after a delay. Implementations must be safe
// for concurrent use from multiple in-flight call chains.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Handle
}

// Clock is a time source used for elapsed-time accounting.
type Clock interface {
	Now() time.Time
}

// Default returns the production scheduler, which delegates to
// time.AfterFunc. Non-positive delays fire as soon as possible.
func Default() Scheduler { return timerScheduler{} }

type timerScheduler struct{}

func (timerScheduler) Schedule(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	return timerHandle{time.AfterFunc(d, fn)}
}

type timerHandle struct{ t *time.Timer }

func (h timerHandle) Cancel() bool { return h.t.Stop() }

// System is the wall clock.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
