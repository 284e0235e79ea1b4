// Package paging provides the page-streaming decorator: it wraps a callable
// whose response carries a next-page token and exposes a lazy, forward-only
// sequence of response pages, or of resources flattened across pages.
//
// Placement relative to the retrying decorator matters and is not checked:
// retry beneath this layer retries only the failing page fetch; retry above
// it retries the whole sequence from the first token.
package paging

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/aponysus/unary/call"
	"github.com/aponysus/unary/future"
)

// Done is returned by Stream.Next when the sequence is exhausted.
var Done = errors.New("paging: no more pages")

// Descriptor supplies the token and resource accessors for one paged method.
// Implementations must be pure: the runtime calls them at arbitrary points.
type Descriptor[Req, Resp, Elem any] interface {
	// NextToken extracts the next-page token from a response. An empty
	// token ends the sequence.
	NextToken(resp Resp) string
	// WithToken returns a copy of req requesting the page at token.
	WithToken(req Req, token string) Req
	// Elements extracts the page's resources in page order.
	Elements(resp Resp) []Elem
}

// Funcs adapts plain functions to the Descriptor interface.
type Funcs[Req, Resp, Elem any] struct {
	NextTokenFunc func(Resp) string
	WithTokenFunc func(Req, string) Req
	ElementsFunc  func(Resp) []Elem
}

func (f Funcs[Req, Resp, Elem]) NextToken(resp Resp) string        { return f.NextTokenFunc(resp) }
func (f Funcs[Req, Resp, Elem]) WithToken(req Req, tok string) Req { return f.WithTokenFunc(req, tok) }
func (f Funcs[Req, Resp, Elem]) Elements(resp Resp) []Elem         { return f.ElementsFunc(resp) }

// Streaming wraps inner as a page-streaming callable. The returned future
// resolves immediately with a Stream; no inner call is issued until the
// consumer asks for the first page.
func Streaming[Req, Resp, Elem any](inner call.Callable[Req, Resp], desc Descriptor[Req, Resp, Elem]) call.Callable[Req, *Stream[Req, Resp, Elem]] {
	return call.Func[Req, *Stream[Req, Resp, Elem]](func(ctx context.Context, req Req, cc call.Context) *future.Future[*Stream[Req, Resp, Elem]] {
		return future.Resolved(&Stream[Req, Resp, Elem]{
			inner: inner,
			desc:  desc,
			cc:    cc,
			next:  req,
		})
	})
}

// Stream is a lazy, forward-only, non-restartable page cursor. Each step
// performs exactly one inner call; steps never overlap. Restarting from an
// intermediate point requires a fresh invocation from the first token.
type Stream[Req, Resp, Elem any] struct {
	inner call.Callable[Req, Resp]
	desc  Descriptor[Req, Resp, Elem]
	cc    call.Context

	mu   sync.Mutex
	next Req
	done bool
}

// Next fetches and returns the next page. It returns Done once the sequence
// is exhausted. A step failure ends the sequence and is returned as that
// step's error; it is never retried here.
func (s *Stream[Req, Resp, Elem]) Next(ctx context.Context) (Resp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero Resp
	if s.done {
		return zero, Done
	}

	resp, err := s.inner.FutureCall(ctx, s.next, s.cc).Wait(ctx)
	if err != nil {
		s.done = true
		return zero, err
	}

	token := s.desc.NextToken(resp)
	if token == "" {
		s.done = true
	} else {
		s.next = s.desc.WithToken(s.next, token)
	}
	return resp, nil
}

// Pages iterates the remaining pages in order. Iteration stops at the end
// of the sequence; a step failure is yielded once with a zero page.
func (s *Stream[Req, Resp, Elem]) Pages(ctx context.Context) iter.Seq2[Resp, error] {
	return func(yield func(Resp, error) bool) {
		for {
			page, err := s.Next(ctx)
			if errors.Is(err, Done) {
				return
			}
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

// Elements iterates the remaining resources flattened across pages: page
// order within a page, response order across pages. A step failure is
// yielded once with a zero element.
func (s *Stream[Req, Resp, Elem]) Elements(ctx context.Context) iter.Seq2[Elem, error] {
	return func(yield func(Elem, error) bool) {
		for {
			page, err := s.Next(ctx)
			if errors.Is(err, Done) {
				return
			}
			if err != nil {
				var zero Elem
				yield(zero, err)
				return
			}
			for _, el := range s.desc.Elements(page) {
				if !yield(el, nil) {
					return
				}
			}
		}
	}
}
