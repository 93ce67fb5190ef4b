package granc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/JasterV/granc/internal/grpcerr"
	"github.com/JasterV/granc/internal/pool"
	"github.com/JasterV/granc/internal/transport"
)

// OnlineWithoutReflection is a connected client whose schema is pinned to
// a FileDescriptorSet supplied up front. It never consults the server's
// reflection endpoint, even if reflection would otherwise be available.
type OnlineWithoutReflection struct {
	conn      *grpc.ClientConn
	logger    *slog.Logger
	pool      *pool.Pool
	transport *transport.Transport
}

// Close releases the underlying connection.
func (c *OnlineWithoutReflection) Close() error {
	return c.conn.Close()
}

// ListServices returns the services named by the pinned descriptor set.
func (c *OnlineWithoutReflection) ListServices() []string {
	return c.pool.ListServices()
}

// GetDescriptorBySymbol resolves symbol against the pinned descriptor set
// only; a miss here can never be satisfied by a later reflection call.
func (c *OnlineWithoutReflection) GetDescriptorBySymbol(symbol string) (Descriptor, bool) {
	if raw, ok := c.pool.GetDescriptorBySymbol(symbol); ok {
		return descriptorFromPoolLookup(raw)
	}
	if svc, ok := c.pool.GetService(symbol); ok {
		return descriptorFromService(svc), true
	}
	return Descriptor{}, false
}

// Dynamic invokes req.Service/req.Method against the pinned schema.
func (c *OnlineWithoutReflection) Dynamic(ctx context.Context, req DynamicRequest) (DynamicResponse, error) {
	if err := transport.ValidateHeaders(req.Headers); err != nil {
		return DynamicResponse{}, err
	}

	method, ok := c.pool.GetMethod(req.Service, req.Method)
	if !ok {
		if _, exists := c.pool.GetService(req.Service); !exists {
			return DynamicResponse{}, &grpcerr.ServiceNotFoundError{Service: req.Service}
		}
		return DynamicResponse{}, &grpcerr.MethodNotFoundError{Service: req.Service, Method: req.Method}
	}

	resp, err := c.transport.Call(ctx, method, req.Body, req.Headers)
	if err != nil {
		return DynamicResponse{}, err
	}
	return DynamicResponse{Unary: resp.Unary, Headers: resp.Headers, Streaming: resp.Streaming}, nil
}
