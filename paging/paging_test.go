package paging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"google.golang.org/grpc/codes"

	"github.com/aponysus/unary/apierror"
	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/future"
)

type listRequest struct {
	Parent string
	Token  string
}

type listResponse struct {
	Items     []string
	NextToken string
}

var testDesc = Funcs[listRequest, *listResponse, string]{
	NextTokenFunc: func(r *listResponse) string { return r.NextToken },
	WithTokenFunc: func(req listRequest, tok string) listRequest {
		req.Token = tok
		return req
	},
	ElementsFunc: func(r *listResponse) []string { return r.Items },
}

// pageServer answers each fetch from a token-indexed table and records the
// tokens requested, in order.
type pageServer struct {
	mu     sync.Mutex
	pages  map[string]*listResponse
	errAt  string
	tokens []string
}

func (p *pageServer) FutureCall(_ context.Context, req listRequest, _ call.Context) *future.Future[*listResponse] {
	p.mu.Lock()
	p.tokens = append(p.tokens, req.Token)
	p.mu.Unlock()

	if p.errAt != "" && req.Token == p.errAt {
		return future.Rejected[*listResponse](apierror.New(codes.Internal, "page fetch failed", false))
	}
	return future.Resolved(p.pages[req.Token])
}

func threePages() *pageServer {
	return &pageServer{pages: map[string]*listResponse{
		"":  {Items: []string{"a1", "a2"}, NextToken: "B"},
		"B": {Items: []string{"b1"}, NextToken: "C"},
		"C": {Items: []string{"c1", "c2"}, NextToken: ""},
	}}
}

func TestStream_Exhaustion(t *testing.T) {
	srv := threePages()
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, err := c.FutureCall(ctx, listRequest{Parent: "p"}, call.Context{}).Wait(ctx)
	if err != nil {
		t.Fatalf("err = %v", err)
	}

	var pages int
	for {
		page, err := stream.Next(ctx)
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if page == nil {
			t.Fatalf("nil page")
		}
		pages++
	}
	if pages != 3 {
		t.Fatalf("pages = %d, want 3", pages)
	}
	if len(srv.tokens) != 3 || srv.tokens[0] != "" || srv.tokens[1] != "B" || srv.tokens[2] != "C" {
		t.Fatalf("tokens = %v, want [ B C]", srv.tokens)
	}

	// The sequence stays exhausted.
	if _, err := stream.Next(ctx); !errors.Is(err, Done) {
		t.Fatalf("Next after exhaustion = %v, want Done", err)
	}
}

func TestStream_Lazy(t *testing.T) {
	srv := threePages()
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, err := c.FutureCall(ctx, listRequest{}, call.Context{}).Wait(ctx)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(srv.tokens) != 0 {
		t.Fatalf("inner calls before Next = %d, want 0", len(srv.tokens))
	}

	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(srv.tokens) != 1 {
		t.Fatalf("inner calls after one Next = %d, want 1", len(srv.tokens))
	}
}

func TestStream_ElementsFlattenInOrder(t *testing.T) {
	srv := threePages()
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, _ := c.FutureCall(ctx, listRequest{}, call.Context{}).Wait(ctx)

	var got []string
	for el, err := range stream.Elements(ctx) {
		if err != nil {
			t.Fatalf("Elements: %v", err)
		}
		got = append(got, el)
	}

	want := []string{"a1", "a2", "b1", "c1", "c2"}
	if len(got) != len(want) {
		t.Fatalf("elements = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("elements = %v, want %v", got, want)
		}
	}
}

func TestStream_FailureEndsSequence(t *testing.T) {
	srv := threePages()
	srv.errAt = "B"
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, _ := c.FutureCall(ctx, listRequest{}, call.Context{}).Wait(ctx)

	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("first page: %v", err)
	}

	_, err := stream.Next(ctx)
	var aerr *apierror.Error
	if !errors.As(err, &aerr) || aerr.Code() != codes.Internal {
		t.Fatalf("second page err = %v, want Internal", err)
	}

	// No silent replay: the sequence is over.
	if _, err := stream.Next(ctx); !errors.Is(err, Done) {
		t.Fatalf("Next after failure = %v, want Done", err)
	}
	if len(srv.tokens) != 2 {
		t.Fatalf("inner calls = %d, want 2", len(srv.tokens))
	}
}

func TestStream_ElementsYieldFailureOnce(t *testing.T) {
	srv := threePages()
	srv.errAt = "C"
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, _ := c.FutureCall(ctx, listRequest{}, call.Context{}).Wait(ctx)

	var elems []string
	var failures []error
	for el, err := range stream.Elements(ctx) {
		if err != nil {
			failures = append(failures, err)
			continue
		}
		elems = append(elems, el)
	}

	if len(elems) != 3 {
		t.Fatalf("elements before failure = %v, want [a1 a2 b1]", elems)
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", failures)
	}
}

func TestStream_PagesIterator(t *testing.T) {
	srv := threePages()
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, _ := c.FutureCall(ctx, listRequest{}, call.Context{}).Wait(ctx)

	var counts []int
	for page, err := range stream.Pages(ctx) {
		if err != nil {
			t.Fatalf("Pages: %v", err)
		}
		counts = append(counts, len(page.Items))
	}
	if len(counts) != 3 || counts[0] != 2 || counts[1] != 1 || counts[2] != 2 {
		t.Fatalf("page sizes = %v, want [2 1 2]", counts)
	}
}

func TestStream_RequestTokenCarriesOver(t *testing.T) {
	// A caller-supplied token starts the sequence mid-way.
	srv := threePages()
	ctx := context.Background()

	c := Streaming[listRequest, *listResponse, string](srv, testDesc)
	stream, _ := c.FutureCall(ctx, listRequest{Token: "B"}, call.Context{}).Wait(ctx)

	var pages int
	for _, err := range stream.Pages(ctx) {
		if err != nil {
			t.Fatalf("Pages: %v", err)
		}
		pages++
	}
	if pages != 2 {
		t.Fatalf("pages = %d, want 2", pages)
	}
	if srv.tokens[0] != "B" {
		t.Fatalf("first token = %q, want B", srv.tokens[0])
	}
}
