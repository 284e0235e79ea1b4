// Package classify provides the exception-translating decorator: it is the
// sole point where transport-status failures become the domain error
// taxonomy. It performs no retries; it only classifies.
package classify

import (
	"context"
	"errors"

	"google.golang.org/grpc/status"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/future"
)

// RetryableOn wraps inner so that status-coded transport failures surface as
// *apierror.Error carrying the status code and a retryable flag equal to
// membership in retryable. Failures that already are domain errors, and
// failures without a status (cancellation, unrelated runtime errors), pass
// through unchanged.
//
// This decoration must be applied beneath the retrying decorator, which
// inspects only the domain taxonomy. The ordering is a documented
// convention, not a runtime check.
func RetryableOn[Req, Resp any](inner call.Callable[Req, Resp], retryable apierror.CodeSet) call.Callable[Req, Resp] {
	return translating[Req, Resp]{inner: inner, retryable: retryable}
}

type translating[Req, Resp any] struct {
	inner     call.Callable[Req, Resp]
	retryable apierror.CodeSet
}

func (t translating[Req, Resp]) FutureCall(ctx context.Context, req Req, cc call.Context) *future.Future[Resp] {
	in := t.inner.FutureCall(ctx, req, cc)
	out := future.New[Resp]()
	out.SetCanceler(func() { in.Cancel() })

	in.OnDone(func(val Resp, err error) {
		if err == nil {
			out.Resolve(val)
			return
		}
		out.Reject(t.translate(err))
	})
	return out
}

func (t translating[Req, Resp]) translate(err error) error {
	var aerr *apierror.Error
	if errors.As(err, &aerr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := status.FromError(err); !ok {
		return err
	}
	return apierror.FromStatus(err, t.retryable)
}
