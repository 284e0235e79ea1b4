// Package unary composes cross-cutting call behaviors around a single unary
// RPC method. A Callable is an immutable object built once and reused
// indefinitely: the request is supplied at call time, and behavior is added
// incrementally through decoration rather than bound up front.
//
// Each decoration method returns a new Callable wrapping the previous one;
// the original remains independently usable. The order of decoration
// matters. If retrying is added before page streaming, an RPC failure only
// causes a retry of the failed page fetch; if retrying is added after page
// streaming, a failure causes the whole page sequence to be retried from
// the start. The decoration methods do not validate ordering; in
// particular, Retrying only acts on failures already translated by
// RetryableOn, so RetryableOn must come first.
//
// Two call styles are available. Synchronous:
//
//	c := unary.NewGRPC("/pkg.Service/Method", newResponse).
//		Bind(conn).
//		RetryableOn(codes.Unavailable).
//		Retrying(retry.Settings{
//			InitialBackoff:    50 * time.Millisecond,
//			BackoffMultiplier: 2,
//			MaxBackoff:        time.Second,
//			MaxAttempts:       3,
//		})
//	resp, err := c.Call(ctx, req)
//
// Asynchronous:
//
//	f := c.FutureCall(ctx, req)
//	// other work
//	resp, err := f.Wait(ctx)
package unary
