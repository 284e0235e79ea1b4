package call

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Channel is the transport boundary: anything that can issue gRPC calls.
type Channel = grpc.ClientConnInterface

// Context holds per-invocation call parameters: an optional channel
// override, gRPC call options and outgoing metadata. It is an immutable
// value; the With methods return modified copies and never mutate the
// receiver. The zero value is a usable default.
type Context struct {
	channel Channel
	opts    []grpc.CallOption
	md      metadata.MD
}

// WithChannel returns a copy of c that carries ch. The channel set here
// takes precedence over a channel bound on the callable.
func (c Context) WithChannel(ch Channel) Context {
	c.channel = ch
	return c
}

// Channel returns the channel override, or nil if unset.
func (c Context) Channel() Channel { return c.channel }

// WithCallOptions returns a copy of c with opts appended.
func (c Context) WithCallOptions(opts ...grpc.CallOption) Context {
	merged := make([]grpc.CallOption, 0, len(c.opts)+len(opts))
	merged = append(merged, c.opts...)
	merged = append(merged, opts...)
	c.opts = merged
	return c
}

// CallOptions returns a copy of the accumulated call options.
func (c Context) CallOptions() []grpc.CallOption {
	out := make([]grpc.CallOption, len(c.opts))
	copy(out, c.opts)
	return out
}

// WithMetadata returns a copy of c whose outgoing metadata is the receiver's
// joined with md.
func (c Context) WithMetadata(md metadata.MD) Context {
	if c.md == nil {
		c.md = md.Copy()
		return c
	}
	c.md = metadata.Join(c.md, md)
	return c
}

// Metadata returns the outgoing metadata, or nil if unset.
func (c Context) Metadata() metadata.MD { return c.md }
