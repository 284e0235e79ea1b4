// Package future provides the asynchronous result handle used by callables.
//
// A Future resolves at most once, with either a value or an error.
// Continuations registered with OnDone run exactly once each, in
// registration order; Wait blocks a caller until resolution. Producers may
// attach a canceler so that Cancel can best-effort abort pending work.
package future

import (
	"context"
	"sync"
)

// Future is a single-resolution promise for a value of type T.
//
// The zero value is not usable; create one with New, Resolved or Rejected.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	val       T
	err       error
	resolved  bool
	callbacks []func(T, error)
	canceler  func()
}

// New returns a pending future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already resolved with val.
func Resolved[T any](val T) *Future[T] {
	f := New[T]()
	f.Resolve(val)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve completes the future with val. It reports whether this call
// performed the resolution; a future resolves at most once.
func (f *Future[T]) Resolve(val T) bool {
	return f.complete(val, nil)
}

// Reject completes the future with err. It reports whether this call
// performed the resolution.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(val T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.val = val
	f.err = err
	f.resolved = true
	cbs := f.callbacks
	f.callbacks = nil
	f.canceler = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(val, err)
	}
	return true
}

// OnDone registers a continuation invoked with the final value and error.
// If the future is already resolved, fn runs synchronously before OnDone
// returns. Each continuation runs exactly once.
func (f *Future[T]) OnDone(fn func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	val, err := f.val, f.err
	f.mu.Unlock()
	fn(val, err)
}

// Done returns a channel closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done. A ctx error is
// returned as-is and does not resolve the future.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// SetCanceler attaches a best-effort cancellation hook invoked by Cancel.
// If the future was already canceled or resolved, the hook is dropped.
// Later calls replace the hook; decorators re-point it as work moves
// between a scheduled delay and an in-flight inner call.
func (f *Future[T]) SetCanceler(fn func()) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.canceler = fn
	f.mu.Unlock()
}

// Cancel requests best-effort cancellation: the attached canceler (if any)
// runs first, then the future is rejected with context.Canceled unless it
// already resolved. Cancel reports whether this call resolved the future.
func (f *Future[T]) Cancel() bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	canceler := f.canceler
	f.canceler = nil
	f.mu.Unlock()

	if canceler != nil {
		canceler()
	}
	return f.Reject(context.Canceled)
}
