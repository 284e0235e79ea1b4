// Package apierror defines the domain error raised for failed RPCs: a gRPC
// status code, a message, and a retryable flag decided against the code set
// configured at decoration time. Decorators above the translating layer
// inspect only this taxonomy.
package apierror

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is the domain exception for a failed call. It is immutable after
// creation and carries the originating error as its cause, if any.
type Error struct {
	code      codes.Code
	message   string
	retryable bool
	cause     error
}

// New returns an Error with the given code, message and retryable flag.
func New(code codes.Code, message string, retryable bool) *Error {
	return &Error{code: code, message: message, retryable: retryable}
}

// Wrap returns an Error that carries cause for errors.Is/As unwrapping.
func Wrap(code codes.Code, message string, retryable bool, cause error) *Error {
	return &Error{code: code, message: message, retryable: retryable, cause: cause}
}

// FromStatus translates a status-coded transport error. The retryable flag
// is set to whether the status code is a member of retryable. The original
// error is kept as the cause.
func FromStatus(err error, retryable CodeSet) *Error {
	st, _ := status.FromError(err)
	code := st.Code()
	return &Error{
		code:      code,
		message:   st.Message(),
		retryable: retryable.Contains(code),
		cause:     err,
	}
}

func (e *Error) Error() string {
	if e.message == "" {
		return fmt.Sprintf("unary: rpc failed with code %s", e.code)
	}
	return fmt.Sprintf("unary: rpc failed with code %s: %s", e.code, e.message)
}

// Code returns the gRPC status code.
func (e *Error) Code() codes.Code { return e.code }

// Message returns the human-readable message.
func (e *Error) Message() string { return e.message }

// Retryable reports whether the failure was classified as transient.
func (e *Error) Retryable() bool { return e.retryable }

func (e *Error) Unwrap() error { return e.cause }

// GRPCStatus makes Error recognizable to status.FromError.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.code, e.message)
}

// CodeSet is an immutable set of status codes considered transient.
// Membership is decided once, at decoration time, not per call.
type CodeSet struct {
	m map[codes.Code]struct{}
}

// NewCodeSet returns a CodeSet holding the given codes.
func NewCodeSet(cs ...codes.Code) CodeSet {
	m := make(map[codes.Code]struct{}, len(cs))
	for _, c := range cs {
		m[c] = struct{}{}
	}
	return CodeSet{m: m}
}

// Contains reports whether c is a member.
func (s CodeSet) Contains(c codes.Code) bool {
	_, ok := s.m[c]
	return ok
}

// Len returns the number of members.
func (s CodeSet) Len() int { return len(s.m) }

func (s CodeSet) String() string {
	names := make([]string, 0, len(s.m))
	for c := range s.m {
		names = append(names, c.String())
	}
	sort.Strings(names)
	return "[" + strings.Join(names, " ") + "]"
}
