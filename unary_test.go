package unary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/future"
	"github.com/aponysus/unary/paging"
	"github.com/aponysus/unary/retry"
)

type pingRequest struct {
	Msg   string
	Token string
}

type pingResponse struct {
	Msg       string
	Items     []string
	NextToken string
}

// testChannel implements grpc.ClientConnInterface with a programmable
// unary handler.
type testChannel struct {
	mu     sync.Mutex
	calls  int
	invoke func(n int, method string, args, reply any) error
}

func (t *testChannel) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	t.mu.Lock()
	t.calls++
	n := t.calls
	t.mu.Unlock()
	if t.invoke == nil {
		return nil
	}
	return t.invoke(n, method, args, reply)
}

func (t *testChannel) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streaming not supported")
}

func (t *testChannel) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func echoChannel(tag string) *testChannel {
	return &testChannel{invoke: func(_ int, _ string, args, reply any) error {
		reply.(*pingResponse).Msg = tag + ":" + args.(*pingRequest).Msg
		return nil
	}}
}

func newPing(opts ...Option) Callable[*pingRequest, *pingResponse] {
	return NewGRPC[*pingRequest, *pingResponse]("/test.Ping/Ping",
		func() *pingResponse { return new(pingResponse) }, opts...)
}

func TestBind_ProvidesDefaultChannel(t *testing.T) {
	base := newPing()
	bound := base.Bind(echoChannel("bound"))

	resp, err := bound.Call(context.Background(), &pingRequest{Msg: "hi"})
	if err != nil {
		t.Fatalf("bound call: %v", err)
	}
	if resp.Msg != "bound:hi" {
		t.Fatalf("resp.Msg = %q, want %q", resp.Msg, "bound:hi")
	}

	// Binding returned a new callable; the original still has no channel.
	_, err = base.Call(context.Background(), &pingRequest{Msg: "hi"})
	var aerr *apierror.Error
	if !errors.As(err, &aerr) || aerr.Code() != codes.FailedPrecondition {
		t.Fatalf("unbound call err = %v, want FailedPrecondition", err)
	}
}

func TestCallContext_ChannelOverridesBinding(t *testing.T) {
	bound := newPing().Bind(echoChannel("bound"))

	cc := call.Context{}.WithChannel(echoChannel("override"))
	resp, err := bound.CallContext(context.Background(), &pingRequest{Msg: "hi"}, cc)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if resp.Msg != "override:hi" {
		t.Fatalf("resp.Msg = %q, want %q", resp.Msg, "override:hi")
	}
}

func TestCall_TranslatesUntranslatedStatus(t *testing.T) {
	inner := call.Func[*pingRequest, *pingResponse](func(context.Context, *pingRequest, call.Context) *future.Future[*pingResponse] {
		return future.Rejected[*pingResponse](status.Error(codes.NotFound, "missing"))
	})

	_, err := New(inner).Call(context.Background(), &pingRequest{})
	var aerr *apierror.Error
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want *apierror.Error", err)
	}
	if aerr.Code() != codes.NotFound || aerr.Retryable() {
		t.Fatalf("got (%v, retryable=%v), want (NotFound, false)", aerr.Code(), aerr.Retryable())
	}
}

func TestCall_PassesThroughNonStatusFailures(t *testing.T) {
	plain := errors.New("socket closed")
	domain := apierror.New(codes.Aborted, "conflict", true)

	cases := []struct {
		name string
		err  error
	}{
		{name: "domain_error", err: domain},
		{name: "cancellation", err: context.Canceled},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "plain_error", err: plain},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inner := call.Func[*pingRequest, *pingResponse](func(context.Context, *pingRequest, call.Context) *future.Future[*pingResponse] {
				return future.Rejected[*pingResponse](tc.err)
			})

			_, err := New(inner).Call(context.Background(), &pingRequest{})
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v unchanged", err, tc.err)
			}
		})
	}
}

func TestRetryableOn_DecorationLeavesReceiverUnaffected(t *testing.T) {
	inner := call.Func[*pingRequest, *pingResponse](func(context.Context, *pingRequest, call.Context) *future.Future[*pingResponse] {
		return future.Rejected[*pingResponse](status.Error(codes.Unavailable, "try later"))
	})

	base := New(inner)
	decorated := base.RetryableOn(codes.Unavailable)

	_, err := decorated.FutureCall(context.Background(), &pingRequest{}).Wait(context.Background())
	var aerr *apierror.Error
	if !errors.As(err, &aerr) || !aerr.Retryable() {
		t.Fatalf("decorated err = %v, want retryable *apierror.Error", err)
	}

	_, err = base.FutureCall(context.Background(), &pingRequest{}).Wait(context.Background())
	if errors.As(err, &aerr) {
		t.Fatalf("base callable translated the error: %v", err)
	}
}

func TestRetryStack_EndToEnd(t *testing.T) {
	ch := &testChannel{invoke: func(n int, _ string, args, reply any) error {
		if n < 3 {
			return status.Error(codes.Unavailable, "try later")
		}
		reply.(*pingResponse).Msg = args.(*pingRequest).Msg
		return nil
	}}

	c := newPing().
		Bind(ch).
		RetryableOn(codes.Unavailable).
		Retrying(retry.Settings{
			InitialBackoff:    time.Millisecond,
			BackoffMultiplier: 2,
			MaxBackoff:        5 * time.Millisecond,
			MaxAttempts:       5,
		})

	resp, err := c.Call(context.Background(), &pingRequest{Msg: "hi"})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if resp.Msg != "hi" {
		t.Fatalf("resp.Msg = %q, want %q", resp.Msg, "hi")
	}
	if got := ch.callCount(); got != 3 {
		t.Fatalf("transport calls = %d, want 3", got)
	}
}

func TestRetryStack_ExhaustionSurfacesLastError(t *testing.T) {
	ch := &testChannel{invoke: func(int, string, any, any) error {
		return status.Error(codes.Unavailable, "try later")
	}}

	c := newPing().
		Bind(ch).
		RetryableOn(codes.Unavailable).
		Retrying(retry.Settings{
			InitialBackoff:    time.Millisecond,
			BackoffMultiplier: 2,
			MaxAttempts:       3,
		})

	_, err := c.Call(context.Background(), &pingRequest{Msg: "hi"})
	var aerr *apierror.Error
	if !errors.As(err, &aerr) || aerr.Code() != codes.Unavailable || !aerr.Retryable() {
		t.Fatalf("err = %v, want the last retryable Unavailable failure", err)
	}
	if got := ch.callCount(); got != 3 {
		t.Fatalf("transport calls = %d, want 3", got)
	}
}

func TestPageStreaming_CarriesBinding(t *testing.T) {
	pages := map[string]pingResponse{
		"":  {Items: []string{"a1", "a2"}, NextToken: "B"},
		"B": {Items: []string{"b1"}, NextToken: ""},
	}
	ch := &testChannel{invoke: func(_ int, _ string, args, reply any) error {
		*reply.(*pingResponse) = pages[args.(*pingRequest).Token]
		return nil
	}}

	desc := paging.Funcs[*pingRequest, *pingResponse, string]{
		NextTokenFunc: func(r *pingResponse) string { return r.NextToken },
		WithTokenFunc: func(r *pingRequest, tok string) *pingRequest {
			cp := *r
			cp.Token = tok
			return &cp
		},
		ElementsFunc: func(r *pingResponse) []string { return r.Items },
	}

	paged := PageStreaming(newPing().Bind(ch), desc)

	stream, err := paged.Call(context.Background(), &pingRequest{})
	if err != nil {
		t.Fatalf("err = %v", err)
	}

	var got []string
	for elem, err := range stream.Elements(context.Background()) {
		if err != nil {
			t.Fatalf("element err = %v", err)
		}
		got = append(got, elem)
	}
	want := []string{"a1", "a2", "b1"}
	if len(got) != len(want) {
		t.Fatalf("elements = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("elements = %v, want %v", got, want)
		}
	}
	if got := ch.callCount(); got != 2 {
		t.Fatalf("transport calls = %d, want 2", got)
	}
}
