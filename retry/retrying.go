package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/future"
	"github.com/aponysus/unary/observe"
	"github.com/aponysus/unary/sched"
)

// Option configures the retrying decorator's capabilities.
type Option func(*config)

type config struct {
	scheduler sched.Scheduler
	clock     sched.Clock
	observer  observe.Observer
}

// WithScheduler sets the scheduler used for backoff waits.
func WithScheduler(s sched.Scheduler) Option {
	return func(c *config) { c.scheduler = s }
}

// WithClock sets the clock used for elapsed-time accounting.
func WithClock(clk sched.Clock) Option {
	return func(c *config) { c.clock = clk }
}

// WithObserver sets the observer notified of attempts and completions.
func WithObserver(o observe.Observer) Option {
	return func(c *config) { c.observer = o }
}

// Retrying wraps inner with exponential-backoff retry. A failure is retried
// only when it is an *apierror.Error flagged retryable, so inner must
// already carry the exception-translating decoration (classify.RetryableOn);
// that ordering is a documented convention, not a runtime check.
//
// Invalid settings produce a callable whose calls fail fast with a
// non-retryable configuration error.
func Retrying[Req, Resp any](inner call.Callable[Req, Resp], settings Settings, opts ...Option) call.Callable[Req, Resp] {
	cfg := config{
		scheduler: sched.Default(),
		clock:     sched.System,
		observer:  observe.NoopObserver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &retrying[Req, Resp]{
		inner:       inner,
		settings:    settings,
		settingsErr: settings.Validate(),
		cfg:         cfg,
	}
}

type retrying[Req, Resp any] struct {
	inner       call.Callable[Req, Resp]
	settings    Settings
	settingsErr error
	cfg         config
}

func (r *retrying[Req, Resp]) FutureCall(ctx context.Context, req Req, cc call.Context) *future.Future[Resp] {
	out := future.New[Resp]()
	if r.settingsErr != nil {
		out.Reject(apierror.Wrap(codes.InvalidArgument, "invalid retry settings", false, r.settingsErr))
		return out
	}

	inv := &invocation[Req, Resp]{
		r:     r,
		ctx:   ctx,
		req:   req,
		cc:    cc,
		out:   out,
		id:    uuid.NewString(),
		delay: r.settings.InitialBackoff,
		start: r.cfg.clock.Now(),
	}
	if r.settings.TotalTimeout > 0 {
		inv.deadline = inv.start.Add(r.settings.TotalTimeout)
		inv.hasDeadline = true
	}
	out.SetCanceler(inv.cancel)
	out.OnDone(func(_ Resp, err error) {
		inv.mu.Lock()
		attempts := inv.attempts
		inv.mu.Unlock()
		r.cfg.observer.OnCall(ctx, observe.CallRecord{
			InvocationID: inv.id,
			Start:        inv.start,
			End:          r.cfg.clock.Now(),
			Attempts:     attempts,
			Err:          err,
		})
	})

	inv.attempt()
	return out
}

// invocation is the per-call retry state machine. All fields after the
// immutable header are guarded by mu. Attempts are strictly sequential: a
// new attempt starts only from the completion callback of the previous one
// or from the scheduler callback that follows it.
type invocation[Req, Resp any] struct {
	r   *retrying[Req, Resp]
	ctx context.Context
	req Req
	cc  call.Context
	out *future.Future[Resp]
	id  string

	start       time.Time
	deadline    time.Time
	hasDeadline bool

	mu       sync.Mutex
	attempts int
	delay    time.Duration // next unjittered backoff
	pending  sched.Handle
	inflight *future.Future[Resp]
	lastErr  error
	canceled bool
}

func (inv *invocation[Req, Resp]) attempt() {
	inv.mu.Lock()
	if inv.canceled {
		inv.mu.Unlock()
		return
	}
	inv.attempts++
	n := inv.attempts
	inv.mu.Unlock()

	start := inv.r.cfg.clock.Now()
	in := inv.r.inner.FutureCall(inv.ctx, inv.req, inv.cc)

	inv.mu.Lock()
	if inv.canceled {
		inv.mu.Unlock()
		in.Cancel()
		return
	}
	inv.inflight = in
	inv.mu.Unlock()

	in.OnDone(func(val Resp, err error) {
		inv.mu.Lock()
		inv.inflight = nil
		inv.mu.Unlock()

		end := inv.r.cfg.clock.Now()
		if err == nil {
			inv.r.cfg.observer.OnAttempt(inv.ctx, observe.AttemptRecord{
				InvocationID: inv.id, Attempt: n, Start: start, End: end,
			})
			inv.out.Resolve(val)
			return
		}
		inv.onFailure(n, start, end, err)
	})
}

func (inv *invocation[Req, Resp]) onFailure(n int, start, end time.Time, err error) {
	inv.mu.Lock()
	inv.lastErr = err
	inv.mu.Unlock()

	rec := observe.AttemptRecord{
		InvocationID: inv.id, Attempt: n, Start: start, End: end, Err: err,
	}

	// Cancellation is not a failure; it neither counts against the budget
	// nor gets reclassified.
	if errors.Is(err, context.Canceled) {
		inv.r.cfg.observer.OnAttempt(inv.ctx, rec)
		inv.out.Reject(err)
		return
	}

	var aerr *apierror.Error
	retryable := errors.As(err, &aerr) && aerr.Retryable()
	rec.Retryable = retryable

	s := inv.r.settings
	if !retryable || (s.MaxAttempts > 0 && n >= s.MaxAttempts) {
		inv.r.cfg.observer.OnAttempt(inv.ctx, rec)
		inv.out.Reject(err)
		return
	}

	inv.mu.Lock()
	sleep := capBackoff(applyJitter(inv.delay, s.Jitter), s.MaxBackoff)
	inv.delay = nextBackoff(inv.delay, s.BackoffMultiplier, s.MaxBackoff)
	inv.mu.Unlock()
	if sleep < 0 {
		sleep = 0
	}

	if inv.hasDeadline && inv.r.cfg.clock.Now().Add(sleep).After(inv.deadline) {
		inv.r.cfg.observer.OnAttempt(inv.ctx, rec)
		inv.out.Reject(err)
		return
	}

	rec.Backoff = sleep
	inv.r.cfg.observer.OnAttempt(inv.ctx, rec)

	inv.mu.Lock()
	if inv.canceled {
		inv.mu.Unlock()
		return
	}
	inv.pending = inv.r.cfg.scheduler.Schedule(sleep, inv.wake)
	inv.mu.Unlock()
}

// wake runs on the scheduler's execution context when a backoff elapses.
func (inv *invocation[Req, Resp]) wake() {
	inv.mu.Lock()
	inv.pending = nil
	canceled := inv.canceled
	lastErr := inv.lastErr
	inv.mu.Unlock()

	if canceled {
		return
	}
	if inv.hasDeadline && inv.r.cfg.clock.Now().After(inv.deadline) {
		inv.out.Reject(lastErr)
		return
	}
	inv.attempt()
}

// cancel is the outer future's canceler: it stops a pending backoff wait
// and best-effort cancels an in-flight inner call.
func (inv *invocation[Req, Resp]) cancel() {
	inv.mu.Lock()
	inv.canceled = true
	pending := inv.pending
	inflight := inv.inflight
	inv.pending = nil
	inv.inflight = nil
	inv.mu.Unlock()

	if pending != nil {
		pending.Cancel()
	}
	if inflight != nil {
		inflight.Cancel()
	}
}
