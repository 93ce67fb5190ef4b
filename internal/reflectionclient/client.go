// Package reflectionclient drives the gRPC Server Reflection v1 protocol
// directly over its bidi-stream RPC, resolving a symbol to the transitive
// closure of FileDescriptorProtos it depends on.
//
// The algorithm is a work-queue over file paths: ask the server for the
// file containing the requested symbol, then for every dependency that
// file declares that we haven't already seen, ask for it by filename, and
// repeat until the queue drains. A dependency missing from the server's
// responses is a BrokenSchemaError; a SymbolNotFoundError is reserved for
// the original symbol never resolving at all.
package reflectionclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/JasterV/granc/internal/grpcerr"
)

// reflectionHost is sent as the Host field of every reflection request.
// The protocol documents it as informational only; no server this client
// has been exercised against inspects it.
const reflectionHost = ""

// Client resolves symbols against a server's reflection endpoint.
type Client struct {
	conn   *grpc.ClientConn
	logger *slog.Logger
}

// New returns a reflection client bound to conn.
func New(conn *grpc.ClientConn, logger *slog.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// ListServices returns the fully-qualified names of every service the
// server exposes via reflection, excluding the reflection service itself.
func (c *Client) ListServices(ctx context.Context) ([]string, error) {
	stream, err := reflectionpb.NewServerReflectionClient(c.conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, &grpcerr.TransportError{Op: "open reflection stream", Err: err}
	}
	defer stream.CloseSend()

	req := &reflectionpb.ServerReflectionRequest{
		Host:           reflectionHost,
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: ""},
	}
	if err := stream.Send(req); err != nil {
		return nil, &grpcerr.TransportError{Op: "send ListServices", Err: err}
	}

	resp, err := stream.Recv()
	if err != nil {
		return nil, &grpcerr.TransportError{Op: "receive ListServices response", Err: err}
	}
	if errResp := resp.GetErrorResponse(); errResp != nil {
		return nil, &grpcerr.TransportError{Op: "ListServices", Err: status.Error(codes.Code(errResp.GetErrorCode()), errResp.GetErrorMessage())}
	}

	listResp := resp.GetListServicesResponse()
	if listResp == nil {
		return nil, &grpcerr.TransportError{Op: "ListServices", Err: fmt.Errorf("unexpected response type")}
	}

	var names []string
	for _, svc := range listResp.GetService() {
		name := svc.GetName()
		if name == "grpc.reflection.v1.ServerReflection" || name == "grpc.reflection.v1alpha.ServerReflection" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// FileDescriptorSetBySymbol resolves symbol to the file that declares it
// plus the transitive closure of its dependencies, skipping any file the
// caller's pool already has (via alreadyHave) to avoid redundant fetches
// on repeat calls against the same symbol's service.
func (c *Client) FileDescriptorSetBySymbol(ctx context.Context, symbol string, alreadyHave func(path string) bool) (*descriptorpb.FileDescriptorSet, error) {
	stream, err := reflectionpb.NewServerReflectionClient(c.conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, &grpcerr.TransportError{Op: "open reflection stream", Err: err}
	}
	defer stream.CloseSend()

	r := &resolution{
		stream:      stream,
		alreadyHave: alreadyHave,
		collected:   make(map[string]*descriptorpb.FileDescriptorProto),
		requested:   make(map[string]bool),
		logger:      c.logger,
	}
	return r.run(ctx, symbol)
}

// resolution tracks one FileDescriptorSetBySymbol call's in-flight state.
// inflight counts requests sent but not yet answered; the loop ends when
// it reaches zero.
type resolution struct {
	stream      reflectionpb.ServerReflection_ServerReflectionInfoClient
	alreadyHave func(string) bool
	collected   map[string]*descriptorpb.FileDescriptorProto
	requested   map[string]bool
	logger      *slog.Logger

	symbol   string
	inflight int
}

func (r *resolution) run(ctx context.Context, symbol string) (*descriptorpb.FileDescriptorSet, error) {
	r.symbol = symbol

	req := &reflectionpb.ServerReflectionRequest{
		Host:           reflectionHost,
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: symbol},
	}
	if err := r.stream.Send(req); err != nil {
		return nil, &grpcerr.TransportError{Op: "send FileContainingSymbol", Err: err}
	}
	r.inflight = 1

	for r.inflight > 0 {
		resp, err := r.stream.Recv()
		if err == io.EOF {
			return nil, &grpcerr.TransportError{Op: "resolve " + symbol, Err: fmt.Errorf("stream closed before resolution completed")}
		}
		if err != nil {
			return nil, &grpcerr.TransportError{Op: "receive reflection response", Err: err}
		}
		r.inflight--

		if err := r.handle(ctx, resp); err != nil {
			return nil, err
		}
	}

	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range r.collected {
		set.File = append(set.File, fd)
	}
	return set, nil
}

func (r *resolution) handle(ctx context.Context, resp *reflectionpb.ServerReflectionResponse) error {
	if errResp := resp.GetErrorResponse(); errResp != nil {
		if codes.Code(errResp.GetErrorCode()) == codes.NotFound {
			// We can't tell from this response alone whether NotFound
			// answers the original symbol or a transitive dependency;
			// collected is empty only in the former case.
			if len(r.collected) == 0 {
				return &grpcerr.SymbolNotFoundError{Symbol: r.symbol}
			}
			return &grpcerr.BrokenSchemaError{File: resp.GetOriginalRequest().GetFileByFilename(), Reason: errResp.GetErrorMessage()}
		}
		return &grpcerr.TransportError{Op: "reflection", Err: status.Error(codes.Code(errResp.GetErrorCode()), errResp.GetErrorMessage())}
	}

	fdResp := resp.GetFileDescriptorResponse()
	if fdResp == nil {
		return &grpcerr.TransportError{Op: "reflection", Err: fmt.Errorf("unexpected response type")}
	}

	for _, raw := range fdResp.GetFileDescriptorProto() {
		var fd descriptorpb.FileDescriptorProto
		if err := proto.Unmarshal(raw, &fd); err != nil {
			return &grpcerr.InvalidDescriptorError{Reason: "malformed FileDescriptorProto from reflection", Err: err}
		}
		path := fd.GetName()
		if _, seen := r.collected[path]; seen {
			continue
		}
		r.collected[path] = &fd
		r.logger.Debug("reflection resolved file", slog.String("file", path))

		if err := r.queueDependencies(&fd); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolution) queueDependencies(fd *descriptorpb.FileDescriptorProto) error {
	for _, dep := range fd.GetDependency() {
		if _, ok := r.collected[dep]; ok {
			continue
		}
		if r.requested[dep] {
			continue
		}
		if r.alreadyHave != nil && r.alreadyHave(dep) {
			continue
		}
		r.requested[dep] = true

		req := &reflectionpb.ServerReflectionRequest{
			Host:           reflectionHost,
			MessageRequest: &reflectionpb.ServerReflectionRequest_FileByFilename{FileByFilename: dep},
		}
		if err := r.stream.Send(req); err != nil {
			return &grpcerr.TransportError{Op: "send FileByFilename " + dep, Err: err}
		}
		r.inflight++
	}
	return nil
}

// SymbolLocks deduplicates concurrent FileDescriptorSetBySymbol calls for
// the same symbol across the lifetime of an Online client, so two
// goroutines racing on an unresolved method don't both open reflection
// streams for it. Exported for the facade, which holds one per client.
type SymbolLocks struct {
	mu    sync.Mutex
	inUse map[string]*sync.Mutex
}

// NewSymbolLocks returns an empty lock set.
func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{inUse: make(map[string]*sync.Mutex)}
}

// Lock blocks until the caller holds the lock for symbol; Unlock releases
// it. Distinct symbols never contend with each other.
func (s *SymbolLocks) Lock(symbol string) func() {
	s.mu.Lock()
	l, ok := s.inUse[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.inUse[symbol] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
