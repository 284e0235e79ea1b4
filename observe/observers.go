package observe

import "context"

// BaseObserver implements Observer with no-op methods.
//
// Users can embed BaseObserver to implement only the callbacks they need.
type BaseObserver struct{}

func (BaseObserver) OnAttempt(context.Context, AttemptRecord)   {}
func (BaseObserver) OnCall(context.Context, CallRecord)         {}
func (BaseObserver) OnBundleFlush(context.Context, FlushRecord) {}

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnAttempt(context.Context, AttemptRecord)   {}
func (NoopObserver) OnCall(context.Context, CallRecord)         {}
func (NoopObserver) OnBundleFlush(context.Context, FlushRecord) {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnAttempt(ctx context.Context, rec AttemptRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAttempt(ctx, rec)
		}
	}
}

func (m MultiObserver) OnCall(ctx context.Context, rec CallRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnCall(ctx, rec)
		}
	}
}

func (m MultiObserver) OnBundleFlush(ctx context.Context, rec FlushRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnBundleFlush(ctx, rec)
		}
	}
}
