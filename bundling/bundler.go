package bundling

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/future"
	"github.com/aponysus/unary/observe"
	"github.com/aponysus/unary/sched"
)

// Option configures the bundler's capabilities.
type Option func(*config)

type config struct {
	scheduler sched.Scheduler
	observer  observe.Observer
}

// WithScheduler sets the scheduler used for delay-triggered flushes.
func WithScheduler(s sched.Scheduler) Option {
	return func(c *config) { c.scheduler = s }
}

// WithObserver sets the observer notified of bundle flushes.
func WithObserver(o observe.Observer) Option {
	return func(c *config) { c.observer = o }
}

// New returns a Bundler wrapping inner. The Bundler is itself a Callable:
// FutureCall enqueues the request into the open bundle for its key and
// returns a handle that resolves when that bundle flushes.
//
// Invalid thresholds produce a bundler whose calls fail fast with a
// non-retryable configuration error.
func New[Req, Resp any](inner call.Callable[Req, Resp], desc Descriptor[Req, Resp], thresholds Thresholds, opts ...Option) *Bundler[Req, Resp] {
	cfg := config{
		scheduler: sched.Default(),
		observer:  observe.NoopObserver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bundler[Req, Resp]{
		inner:         inner,
		desc:          desc,
		thresholds:    thresholds,
		thresholdsErr: thresholds.Validate(),
		cfg:           cfg,
		open:          make(map[string]*bundle[Req, Resp]),
	}
}

// Bundler accumulates requests into per-key bundles and flushes each bundle
// as one underlying call. One registry lock guards all bundle membership
// and state transitions, so concurrent enqueue, seal and flush observe
// consistent membership and a bundle flushes exactly once.
type Bundler[Req, Resp any] struct {
	inner         call.Callable[Req, Resp]
	desc          Descriptor[Req, Resp]
	thresholds    Thresholds
	thresholdsErr error
	cfg           config

	mu   sync.Mutex
	open map[string]*bundle[Req, Resp]
}

type bundleState int

const (
	bundleOpen bundleState = iota
	bundleSealed
	bundleFlushed
)

type bundle[Req, Resp any] struct {
	id    string
	key   string
	state bundleState

	members []*member[Req, Resp]
	bytes   int

	timer sched.Handle
	// flushCtx carries the first member's context values, detached from
	// its cancellation: one member canceling must not abort the bundle.
	flushCtx context.Context
	cc       call.Context
}

type member[Req, Resp any] struct {
	req  Req
	size int
	fut  *future.Future[Resp]
}

// FutureCall enqueues req into the bundle for its key, opening one if no
// open bundle exists. The returned future resolves with this request's
// share of the combined response, or with the flush failure.
func (b *Bundler[Req, Resp]) FutureCall(ctx context.Context, req Req, cc call.Context) *future.Future[Resp] {
	out := future.New[Resp]()
	if b.thresholdsErr != nil {
		out.Reject(apierror.Wrap(codes.InvalidArgument, "invalid bundling thresholds", false, b.thresholdsErr))
		return out
	}

	key := b.desc.Key(req)
	m := &member[Req, Resp]{req: req, size: b.desc.Size(req), fut: out}

	b.mu.Lock()
	bu := b.open[key]
	if bu == nil {
		bu = &bundle[Req, Resp]{
			id:       uuid.NewString(),
			key:      key,
			flushCtx: context.WithoutCancel(ctx),
			cc:       cc,
		}
		b.open[key] = bu
		if b.thresholds.Delay > 0 {
			bu.timer = b.cfg.scheduler.Schedule(b.thresholds.Delay, func() {
				b.flushOn(bu, observe.TriggerDelay)
			})
		}
	}
	bu.members = append(bu.members, m)
	bu.bytes += m.size

	trigger := ""
	switch {
	case b.thresholds.ElementCount > 0 && len(bu.members) >= b.thresholds.ElementCount:
		trigger = observe.TriggerCount
	case b.thresholds.ByteSize > 0 && bu.bytes >= b.thresholds.ByteSize:
		trigger = observe.TriggerBytes
	}
	b.mu.Unlock()

	out.SetCanceler(func() { b.remove(bu, m) })

	if trigger != "" {
		b.flushOn(bu, trigger)
	}
	return out
}

// seal transitions bu OPEN -> SEALED and detaches it from the registry.
// Exactly one caller wins; the rest see a sealed or flushed bundle.
func (b *Bundler[Req, Resp]) seal(bu *bundle[Req, Resp]) ([]*member[Req, Resp], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bu.state != bundleOpen {
		return nil, false
	}
	bu.state = bundleSealed
	if b.open[bu.key] == bu {
		delete(b.open, bu.key)
	}
	if bu.timer != nil {
		bu.timer.Cancel()
		bu.timer = nil
	}
	return bu.members, true
}

// flushOn seals bu and, if it won the seal, issues the single underlying
// call and fans the result out to every member.
func (b *Bundler[Req, Resp]) flushOn(bu *bundle[Req, Resp], trigger string) {
	members, ok := b.seal(bu)
	if !ok {
		return
	}
	if len(members) == 0 {
		// Every member was canceled while the bundle was open; nothing to
		// send.
		b.mu.Lock()
		bu.state = bundleFlushed
		b.mu.Unlock()
		return
	}

	reqs := make([]Req, len(members))
	for i, m := range members {
		reqs[i] = m.req
	}
	combined := b.desc.Merge(reqs)

	rec := observe.FlushRecord{
		BundleID: bu.id,
		Key:      bu.key,
		Members:  len(members),
		Bytes:    bu.bytes,
		Trigger:  trigger,
	}

	in := b.inner.FutureCall(bu.flushCtx, combined, bu.cc)
	in.OnDone(func(resp Resp, err error) {
		b.mu.Lock()
		bu.state = bundleFlushed
		b.mu.Unlock()

		if err == nil {
			resps := b.desc.Split(resp, reqs)
			if len(resps) != len(reqs) {
				err = fmt.Errorf("bundling: split returned %d responses for %d requests", len(resps), len(reqs))
			} else {
				for i, m := range members {
					m.fut.Resolve(resps[i])
				}
			}
		}
		if err != nil {
			for _, m := range members {
				m.fut.Reject(err)
			}
		}
		rec.Err = err
		b.cfg.observer.OnBundleFlush(bu.flushCtx, rec)
	})
}

// remove drops a canceled member from an open bundle. A bundle emptied by
// cancellation is discarded without flushing. Once a bundle is sealed its
// membership is fixed; a late cancellation only abandons that member's
// handle.
func (b *Bundler[Req, Resp]) remove(bu *bundle[Req, Resp], m *member[Req, Resp]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bu.state != bundleOpen {
		return
	}
	for i, other := range bu.members {
		if other == m {
			bu.members = append(bu.members[:i], bu.members[i+1:]...)
			bu.bytes -= m.size
			break
		}
	}
	if len(bu.members) == 0 {
		bu.state = bundleFlushed
		if b.open[bu.key] == bu {
			delete(b.open, bu.key)
		}
		if bu.timer != nil {
			bu.timer.Cancel()
			bu.timer = nil
		}
	}
}
