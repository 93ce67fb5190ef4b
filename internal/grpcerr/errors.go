// Package grpcerr defines the error taxonomy shared by the descriptor
// pool, reflection client, JSON codec, and dynamic transport. Every error
// type wraps an inner cause where one exists, so callers can use
// errors.As/errors.Is the way they would with any wrapped stdlib error.
package grpcerr

import "fmt"

// TransportError wraps a failure in the underlying gRPC channel itself
// (dial failure, stream init failure) as opposed to a status the server
// returned for a well-formed call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidDescriptorError means a FileDescriptorSet failed to parse, or a
// FileDescriptorProto within it referenced a type in a way the descriptor
// library rejects outright (not just a missing dependency).
type InvalidDescriptorError struct {
	Reason string
	Err    error
}

func (e *InvalidDescriptorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid descriptor: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid descriptor: %s", e.Reason)
}

func (e *InvalidDescriptorError) Unwrap() error { return e.Err }

// MissingDependencyError means a file in a FileDescriptorSet declares a
// dependency that never arrived, either in the set itself or in the
// well-known-types registry.
type MissingDependencyError struct {
	File       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency %q required by %q", e.Dependency, e.File)
}

// SymbolNotFoundError means the server (or offline pool) has no symbol by
// this fully-qualified name.
type SymbolNotFoundError struct {
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol not found: %s", e.Symbol)
}

// ServiceNotFoundError means a Dynamic call named a service the pool has
// never resolved (and reflection, if available, couldn't resolve either).
type ServiceNotFoundError struct {
	Service string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service not found: %s", e.Service)
}

// MethodNotFoundError means the named service exists but has no method by
// this name.
type MethodNotFoundError struct {
	Service string
	Method  string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s/%s", e.Service, e.Method)
}

// BrokenSchemaError means the server resolved a symbol to files whose
// declared dependencies can't be satisfied even after exhausting the
// server's own FileByFilename responses — a server-side schema bug, not a
// transport failure.
type BrokenSchemaError struct {
	File   string
	Reason string
}

func (e *BrokenSchemaError) Error() string {
	return fmt.Sprintf("broken schema in %q: %s", e.File, e.Reason)
}

// InvalidJSONShapeError means a request body doesn't match the shape its
// message descriptor requires, at a specific JSON path.
type InvalidJSONShapeError struct {
	Path   string
	Reason string
}

func (e *InvalidJSONShapeError) Error() string {
	return fmt.Sprintf("invalid JSON shape at %s: %s", e.Path, e.Reason)
}

// BodyShapeMismatchError means the top-level shape of a request body
// doesn't match what the method's streaming pattern requires — e.g. a
// client-streaming call whose body isn't a JSON array.
type BodyShapeMismatchError struct {
	Reason string
}

func (e *BodyShapeMismatchError) Error() string {
	return fmt.Sprintf("body shape mismatch: %s", e.Reason)
}

// InvalidMetadataError means a header key or value failed gRPC metadata
// validation (e.g. a key containing characters outside [0-9a-z-_.]).
type InvalidMetadataError struct {
	Key string
	Err error
}

func (e *InvalidMetadataError) Error() string {
	return fmt.Sprintf("invalid metadata %q: %v", e.Key, e.Err)
}

func (e *InvalidMetadataError) Unwrap() error { return e.Err }

// ProtobufDecodeError means a wire-format response failed to decode into
// its output message descriptor.
type ProtobufDecodeError struct {
	Err error
}

func (e *ProtobufDecodeError) Error() string {
	return fmt.Sprintf("protobuf decode: %v", e.Err)
}

func (e *ProtobufDecodeError) Unwrap() error { return e.Err }
