// Package granc is a dynamic gRPC client: it invokes arbitrary gRPC
// methods described only by a JSON body, resolving the method's schema
// either from a local FileDescriptorSet or from the target server's
// reflection endpoint, without any protoc-generated code.
//
// The client is a three-state typestate: Online (connected, reflection
// available), OnlineWithoutReflection (connected, schema pinned to a
// supplied FileDescriptorSet), and Offline (no connection, schema-only).
// Each state exposes only the operations legal in it — Offline, for
// instance, has no Dynamic method, so calling a method without a live
// connection is a compile error rather than a runtime one.
package granc

import (
	"encoding/json"

	"github.com/JasterV/granc/internal/transport"
)

// Header is a single request or response metadata entry.
type Header = transport.Header

// DynamicRequest names the method to call and the payload to send.
// Body must be a JSON object for unary and server-streaming calls, or a
// JSON array of objects (one per message) for client-streaming and
// bidirectional calls.
type DynamicRequest struct {
	Service string
	Method  string
	Body    json.RawMessage
	Headers []Header
}

// DynamicResponse is the outcome of a Dynamic call. Exactly one of Unary
// or Streaming is set, matching the method's streaming shape.
type DynamicResponse struct {
	Unary     json.RawMessage
	Headers   []Header
	Streaming *Stream
}

// Stream is a lazy, finite, non-restartable sequence of decoded response
// messages from a server-streaming or bidirectional call. Messages are
// received in the background, at most eight ahead of the caller's Next.
type Stream = transport.Stream
