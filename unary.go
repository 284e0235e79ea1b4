package unary

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/bundling"
	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/classify"
	"github.com/aponysus/unary/future"
	"github.com/aponysus/unary/observe"
	"github.com/aponysus/unary/paging"
	"github.com/aponysus/unary/retry"
	"github.com/aponysus/unary/sched"
)

// Option configures the shared runtime capabilities handed to decorators.
type Option func(*runtime)

type runtime struct {
	scheduler sched.Scheduler
	clock     sched.Clock
	observer  observe.Observer
}

// WithScheduler sets the scheduler used by the retrying and bundling
// decorators. Defaults to sched.Default().
func WithScheduler(s sched.Scheduler) Option {
	return func(rt *runtime) { rt.scheduler = s }
}

// WithClock sets the clock used for elapsed-time accounting. Defaults to
// sched.System.
func WithClock(clk sched.Clock) Option {
	return func(rt *runtime) { rt.clock = clk }
}

// WithObserver sets the observer notified by decorators. Defaults to a
// no-op observer.
func WithObserver(o observe.Observer) Option {
	return func(rt *runtime) { rt.observer = o }
}

// Callable is the composition root: an immutable callable for one unary
// method, with an optional bound channel and the runtime capabilities its
// decorators share. All decoration methods return a new Callable and leave
// the receiver unaffected; instances may share decorated inner callables
// safely.
type Callable[Req, Resp any] struct {
	inner   call.Callable[Req, Resp]
	channel call.Channel
	rt      runtime
}

// New wraps an existing base callable.
func New[Req, Resp any](inner call.Callable[Req, Resp], opts ...Option) Callable[Req, Resp] {
	rt := runtime{
		scheduler: sched.Default(),
		clock:     sched.System,
		observer:  observe.NoopObserver{},
	}
	for _, opt := range opts {
		opt(&rt)
	}
	return Callable[Req, Resp]{inner: inner, rt: rt}
}

// NewGRPC builds the base callable for a unary gRPC method. newResp
// allocates a fresh response for each call.
func NewGRPC[Req, Resp any](method string, newResp func() Resp, opts ...Option) Callable[Req, Resp] {
	return New(call.GRPC[Req, Resp](method, newResp), opts...)
}

// FutureCall performs the call asynchronously with a default call context.
func (c Callable[Req, Resp]) FutureCall(ctx context.Context, req Req) *future.Future[Resp] {
	return c.FutureCallContext(ctx, req, call.Context{})
}

// FutureCallContext performs the call asynchronously. If cc carries no
// channel, the bound channel (if any) is substituted; a call that reaches
// the transport with neither fails with a configuration error on the
// returned future.
func (c Callable[Req, Resp]) FutureCallContext(ctx context.Context, req Req, cc call.Context) *future.Future[Resp] {
	if cc.Channel() == nil && c.channel != nil {
		cc = cc.WithChannel(c.channel)
	}
	return c.inner.FutureCall(ctx, req, cc)
}

// Call performs the call synchronously with a default call context.
func (c Callable[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return c.CallContext(ctx, req, call.Context{})
}

// CallContext performs the call synchronously. A status-coded failure that
// no inner decorator translated is returned as a non-retryable
// *apierror.Error; domain errors, cancellation and unrelated failures are
// returned unchanged.
func (c Callable[Req, Resp]) CallContext(ctx context.Context, req Req, cc call.Context) (Resp, error) {
	resp, err := c.FutureCallContext(ctx, req, cc).Wait(ctx)
	if err == nil {
		return resp, nil
	}
	var aerr *apierror.Error
	if errors.As(err, &aerr) {
		return resp, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resp, err
	}
	if _, ok := status.FromError(err); ok {
		return resp, apierror.FromStatus(err, apierror.CodeSet{})
	}
	return resp, err
}

// Bind returns a Callable with a default channel for calls that do not
// specify one. A channel set on the call context still takes precedence.
func (c Callable[Req, Resp]) Bind(ch call.Channel) Callable[Req, Resp] {
	c.channel = ch
	return c
}

// RetryableOn returns a Callable whose status-coded failures surface as
// *apierror.Error, retryable when the code is among cs. This decoration
// must precede Retrying; the ordering is documented, not enforced.
func (c Callable[Req, Resp]) RetryableOn(cs ...codes.Code) Callable[Req, Resp] {
	c.inner = classify.RetryableOn(c.inner, apierror.NewCodeSet(cs...))
	return c
}

// Retrying returns a Callable that retries retryable failures with
// exponential backoff, per settings.
func (c Callable[Req, Resp]) Retrying(settings retry.Settings) Callable[Req, Resp] {
	c.inner = retry.Retrying(c.inner, settings,
		retry.WithScheduler(c.rt.scheduler),
		retry.WithClock(c.rt.clock),
		retry.WithObserver(c.rt.observer),
	)
	return c
}

// Bundling returns a Callable that batches requests sharing a bundling key
// into one underlying call, per desc and thresholds.
func (c Callable[Req, Resp]) Bundling(desc bundling.Descriptor[Req, Resp], thresholds bundling.Thresholds) Callable[Req, Resp] {
	c.inner = bundling.New(c.inner, desc, thresholds,
		bundling.WithScheduler(c.rt.scheduler),
		bundling.WithObserver(c.rt.observer),
	)
	return c
}

// PageStreaming returns a Callable that streams the pages obtained from a
// series of calls to a method implementing the page-streaming pattern. It
// is a free function because the response type changes. The bound channel
// and runtime carry over.
func PageStreaming[Req, Resp, Elem any](c Callable[Req, Resp], desc paging.Descriptor[Req, Resp, Elem]) Callable[Req, *paging.Stream[Req, Resp, Elem]] {
	return Callable[Req, *paging.Stream[Req, Resp, Elem]]{
		inner:   paging.Streaming(c.inner, desc),
		channel: c.channel,
		rt:      c.rt,
	}
}
