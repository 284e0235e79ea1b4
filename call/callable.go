// Package call defines the base callable capability and the per-invocation
// call context that every decorator threads through. The transport boundary
// is a gRPC channel; GRPC builds the base callable that issues the actual
// unary RPC.
package call

import (
	"context"

	"github.com/aponysus/unary/future"
)

// Callable is an immutable unit of work wrapping one remote call. Invoking
// it never mutates state shared with unrelated calls; any per-call state
// lives in the context or in decorator-owned accumulation structures.
type Callable[Req, Resp any] interface {
	// FutureCall starts the call and returns immediately with a pending
	// result handle. ctx carries cancellation and deadlines; cc carries
	// per-invocation call parameters.
	FutureCall(ctx context.Context, req Req, cc Context) *future.Future[Resp]
}

// Func adapts a function to the Callable interface.
type Func[Req, Resp any] func(ctx context.Context, req Req, cc Context) *future.Future[Resp]

func (f Func[Req, Resp]) FutureCall(ctx context.Context, req Req, cc Context) *future.Future[Resp] {
	return f(ctx, req, cc)
}
