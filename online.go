package granc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	"github.com/JasterV/granc/internal/grpcerr"
	"github.com/JasterV/granc/internal/pool"
	"github.com/JasterV/granc/internal/reflectionclient"
	"github.com/JasterV/granc/internal/transport"
)

// waitUntilReady blocks the channel into CONNECTING and waits for it to
// reach READY, bounded by timeout. grpc.NewClient itself never blocks on
// dial, so this is how WithDialTimeout is actually enforced.
func waitUntilReady(ctx context.Context, conn *grpc.ClientConn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("connection did not become ready within %s: %w", timeout, ctx.Err())
		}
	}
}

// Online is a connected client with a live reflection endpoint. It
// resolves schema lazily, on first use of a given symbol, and caches it
// in its pool for the rest of its lifetime.
type Online struct {
	conn      *grpc.ClientConn
	logger    *slog.Logger
	pool      *pool.Pool
	reflector *reflectionclient.Client
	transport *transport.Transport
	locks     *reflectionclient.SymbolLocks
}

// Connect dials target and returns an Online client. grpc.NewClient
// doesn't block on dial, so without WithDialTimeout Connect returning
// successfully only means the channel was constructed, not that the server
// is reachable yet; with WithDialTimeout it waits for the channel to reach
// READY within that timeout.
func Connect(ctx context.Context, target string, opts ...Option) (*Online, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dialOpts := []grpc.DialOption{grpc.WithKeepaliveParams(cfg.keepalive)}
	if cfg.creds != nil {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(cfg.creds))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		cfg.logger.Warn("using insecure plaintext connection")
	}
	dialOpts = append(dialOpts, cfg.dialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, &grpcerr.TransportError{Op: "dial " + target, Err: err}
	}

	if cfg.dialTimeout > 0 {
		if err := waitUntilReady(ctx, conn, cfg.dialTimeout); err != nil {
			conn.Close()
			return nil, &grpcerr.TransportError{Op: "dial " + target, Err: err}
		}
	}

	cfg.logger.Info("granc client created", slog.String("target", target))

	return &Online{
		conn:      conn,
		logger:    cfg.logger,
		pool:      pool.New(),
		reflector: reflectionclient.New(conn, cfg.logger),
		transport: transport.New(conn, cfg.logger),
		locks:     reflectionclient.NewSymbolLocks(),
	}, nil
}

// Close releases the underlying connection.
func (c *Online) Close() error {
	return c.conn.Close()
}

// ListServices asks the server's reflection endpoint for the full set of
// services it exposes. This always goes to the wire; it is not served
// from the pool, which only ever holds services someone has already
// resolved a symbol for.
func (c *Online) ListServices(ctx context.Context) ([]string, error) {
	return c.reflector.ListServices(ctx)
}

// WithFileDescriptor freezes this client's schema to raw (a serialized
// FileDescriptorSet) and returns an OnlineWithoutReflection client that
// never consults the server's reflection endpoint again.
func (c *Online) WithFileDescriptor(raw []byte) (*OnlineWithoutReflection, error) {
	p := pool.New()
	if err := p.AddFileDescriptorSet(raw); err != nil {
		return nil, err
	}
	return &OnlineWithoutReflection{
		conn:      c.conn,
		logger:    c.logger,
		pool:      p,
		transport: transport.New(c.conn, c.logger),
	}, nil
}

// GetDescriptorBySymbol resolves symbol, expanding the pool via reflection
// on a miss. It checks messages and enums first, then falls back to the
// service index, mirroring the priority the original pool-level lookup
// uses internally.
func (c *Online) GetDescriptorBySymbol(ctx context.Context, symbol string) (Descriptor, error) {
	if d, ok := c.lookupDescriptor(symbol); ok {
		return d, nil
	}

	unlock := c.locks.Lock(symbol)
	defer unlock()

	if d, ok := c.lookupDescriptor(symbol); ok {
		return d, nil
	}

	if err := c.expandPoolFor(ctx, symbol); err != nil {
		return Descriptor{}, err
	}

	d, ok := c.lookupDescriptor(symbol)
	if !ok {
		return Descriptor{}, &grpcerr.SymbolNotFoundError{Symbol: symbol}
	}
	return d, nil
}

func (c *Online) lookupDescriptor(symbol string) (Descriptor, bool) {
	if raw, ok := c.pool.GetDescriptorBySymbol(symbol); ok {
		return descriptorFromPoolLookup(raw)
	}
	if svc, ok := c.pool.GetService(symbol); ok {
		return descriptorFromService(svc), true
	}
	return Descriptor{}, false
}

func (c *Online) expandPoolFor(ctx context.Context, symbol string) error {
	fdSet, err := c.reflector.FileDescriptorSetBySymbol(ctx, symbol, c.pool.HasFile)
	if err != nil {
		return err
	}
	raw, err := proto.Marshal(fdSet)
	if err != nil {
		return &grpcerr.InvalidDescriptorError{Reason: "failed to re-marshal resolved descriptor set", Err: err}
	}
	return c.pool.AddFileDescriptorSet(raw)
}

// Dynamic invokes req.Service/req.Method, resolving and caching its
// descriptor via reflection if the pool doesn't already have it.
func (c *Online) Dynamic(ctx context.Context, req DynamicRequest) (DynamicResponse, error) {
	if err := transport.ValidateHeaders(req.Headers); err != nil {
		return DynamicResponse{}, err
	}

	method, ok := c.pool.GetMethod(req.Service, req.Method)
	if !ok {
		unlock := c.locks.Lock(req.Service)
		method, ok = c.pool.GetMethod(req.Service, req.Method)
		var err error
		if !ok {
			err = c.expandPoolFor(ctx, req.Service)
		}
		unlock()
		if err != nil {
			var symErr *grpcerr.SymbolNotFoundError
			if errors.As(err, &symErr) {
				return DynamicResponse{}, &grpcerr.ServiceNotFoundError{Service: req.Service}
			}
			return DynamicResponse{}, err
		}

		if !ok {
			method, ok = c.pool.GetMethod(req.Service, req.Method)
		}
		if !ok {
			if _, exists := c.pool.GetService(req.Service); !exists {
				return DynamicResponse{}, &grpcerr.ServiceNotFoundError{Service: req.Service}
			}
			return DynamicResponse{}, &grpcerr.MethodNotFoundError{Service: req.Service, Method: req.Method}
		}
	}

	resp, err := c.transport.Call(ctx, method, req.Body, req.Headers)
	if err != nil {
		return DynamicResponse{}, err
	}
	return DynamicResponse{Unary: resp.Unary, Headers: resp.Headers, Streaming: resp.Streaming}, nil
}
