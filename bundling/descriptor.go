// Package bundling provides the bundling decorator: individually-issued
// requests that share a bundling key accumulate into a shared bundle, which
// is flushed as one underlying call when a count, byte-size or delay
// threshold fires; the combined result fans back out to each caller.
package bundling

import (
	"fmt"
	"time"
)

// Descriptor supplies the bundling capabilities for one method. The
// functions must be referentially consistent: equal keys mean one bundle,
// and Merge/Split must be inverses with respect to per-request identity.
type Descriptor[Req, Resp any] interface {
	// Key returns the bundling key grouping requests into one bundle.
	Key(req Req) string
	// Size estimates the request's contribution to the byte threshold.
	Size(req Req) int
	// Merge combines member requests into the single underlying request.
	Merge(reqs []Req) Req
	// Split distributes the combined response: one response per original
	// request, in request order.
	Split(combined Resp, reqs []Req) []Resp
}

// Funcs adapts plain functions to the Descriptor interface.
type Funcs[Req, Resp any] struct {
	KeyFunc   func(Req) string
	SizeFunc  func(Req) int
	MergeFunc func([]Req) Req
	SplitFunc func(Resp, []Req) []Resp
}

func (f Funcs[Req, Resp]) Key(req Req) string                 { return f.KeyFunc(req) }
func (f Funcs[Req, Resp]) Size(req Req) int                   { return f.SizeFunc(req) }
func (f Funcs[Req, Resp]) Merge(reqs []Req) Req               { return f.MergeFunc(reqs) }
func (f Funcs[Req, Resp]) Split(comb Resp, reqs []Req) []Resp { return f.SplitFunc(comb, reqs) }

// Thresholds configures when an open bundle seals and flushes. The first
// threshold to fire wins; at least one must be positive.
type Thresholds struct {
	// ElementCount seals a bundle once it holds this many members.
	ElementCount int
	// ByteSize seals a bundle once its accumulated Size estimates reach
	// this many bytes.
	ByteSize int
	// Delay seals a bundle this long after its first member arrived.
	Delay time.Duration
}

// ValidationError reports an invalid Thresholds field.
type ValidationError struct {
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bundling: invalid thresholds field %s: %v", e.Field, e.Value)
}

// Validate checks that no threshold is negative and at least one is set.
func (t Thresholds) Validate() error {
	if t.ElementCount < 0 {
		return &ValidationError{Field: "element_count", Value: t.ElementCount}
	}
	if t.ByteSize < 0 {
		return &ValidationError{Field: "byte_size", Value: t.ByteSize}
	}
	if t.Delay < 0 {
		return &ValidationError{Field: "delay", Value: t.Delay}
	}
	if t.ElementCount == 0 && t.ByteSize == 0 && t.Delay == 0 {
		return &ValidationError{Field: "thresholds", Value: "no flush trigger configured"}
	}
	return nil
}
