package granc

import (
	"github.com/JasterV/granc/internal/diagnose"
	"github.com/JasterV/granc/internal/grpcerr"
)

// The error taxonomy callers can match against with errors.As. Each type
// wraps its cause where one exists.
type (
	TransportError          = grpcerr.TransportError
	InvalidDescriptorError  = grpcerr.InvalidDescriptorError
	MissingDependencyError  = grpcerr.MissingDependencyError
	SymbolNotFoundError     = grpcerr.SymbolNotFoundError
	ServiceNotFoundError    = grpcerr.ServiceNotFoundError
	MethodNotFoundError     = grpcerr.MethodNotFoundError
	BrokenSchemaError       = grpcerr.BrokenSchemaError
	InvalidJSONShapeError   = grpcerr.InvalidJSONShapeError
	BodyShapeMismatchError  = grpcerr.BodyShapeMismatchError
	InvalidMetadataError    = grpcerr.InvalidMetadataError
	ProtobufDecodeError     = grpcerr.ProtobufDecodeError
)

// Diagnosis is a caller-facing rendering of a gRPC status: a severity, a
// short title, a message, and recovery hints — useful for surfacing
// errors in a UI or CLI without re-deriving them from a bare status code.
type Diagnosis = diagnose.Diagnosis

// Diagnose classifies err (expected to carry or wrap a gRPC status) into
// a Diagnosis.
func Diagnose(err error) *Diagnosis {
	return diagnose.FromError(err)
}
