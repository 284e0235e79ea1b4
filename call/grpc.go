package call

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/future"
)

// GRPC returns the base callable for a unary method. Each call allocates a
// fresh response via newResp and issues the RPC on the context's channel.
// A call with no channel fails fast with a non-retryable configuration
// error; the error surfaces on the returned future, not as a panic.
//
// Failures from the channel carry gRPC status codes and are left
// untranslated here; wrap the callable with classify.RetryableOn to raise
// the domain error instead.
func GRPC[Req, Resp any](method string, newResp func() Resp) Callable[Req, Resp] {
	return grpcCallable[Req, Resp]{method: method, newResp: newResp}
}

type grpcCallable[Req, Resp any] struct {
	method  string
	newResp func() Resp
}

func (g grpcCallable[Req, Resp]) FutureCall(ctx context.Context, req Req, cc Context) *future.Future[Resp] {
	ch := cc.Channel()
	if ch == nil {
		return future.Rejected[Resp](apierror.New(
			codes.FailedPrecondition,
			"no channel available: bind one or set it on the call context",
			false,
		))
	}

	if md := cc.Metadata(); md != nil {
		if existing, ok := metadata.FromOutgoingContext(ctx); ok {
			md = metadata.Join(existing, md)
		}
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	f := future.New[Resp]()
	callCtx, cancel := context.WithCancel(ctx)
	f.SetCanceler(cancel)

	go func() {
		defer cancel()
		reply := g.newResp()
		if err := ch.Invoke(callCtx, g.method, req, reply, cc.CallOptions()...); err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(reply)
	}()
	return f
}
