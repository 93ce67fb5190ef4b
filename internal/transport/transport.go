// Package transport dispatches a dynamic call across the four gRPC
// streaming patterns (unary, server-streaming, client-streaming,
// bidirectional) using protoreflect's grpcdynamic stub, and wraps its
// result in a lazy, pull-based Stream for the streaming cases.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/JasterV/granc/internal/grpcerr"
	"github.com/JasterV/granc/internal/jsoncodec"
	"github.com/JasterV/granc/internal/logging"
)

// Header is a single request or response metadata entry.
type Header struct {
	Key   string
	Value string
}

// Response is the outcome of a dynamic call: exactly one of Unary or
// Streaming is set, matching the method's streaming shape.
type Response struct {
	Unary     json.RawMessage
	Headers   []Header
	Streaming *Stream
}

// Transport issues dynamic calls against a connection.
type Transport struct {
	stub   grpcdynamic.Stub
	logger *slog.Logger
}

// New returns a transport bound to cc.
func New(cc *grpc.ClientConn, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Transport{stub: grpcdynamic.NewStub(cc), logger: logger}
}

// Call dispatches on md's streaming flags and invokes the matching
// pattern. body is the request payload for unary and server-streaming
// calls; for client-streaming and bidirectional calls it must be a JSON
// array, one element per message to send before closing the send side.
func (t *Transport) Call(ctx context.Context, md *desc.MethodDescriptor, body json.RawMessage, headers []Header) (Response, error) {
	codec := jsoncodec.New(md.GetInputType(), md.GetOutputType())
	outCtx := withHeaders(ctx, headers)

	clientStreaming := md.IsClientStreaming()
	serverStreaming := md.IsServerStreaming()

	switch {
	case !clientStreaming && !serverStreaming:
		return t.callUnary(outCtx, md, codec, body)
	case !clientStreaming && serverStreaming:
		return t.callServerStream(outCtx, md, codec, body)
	case clientStreaming && !serverStreaming:
		return t.callClientStream(outCtx, md, codec, body)
	default:
		return t.callBidi(outCtx, md, codec, body)
	}
}

func withHeaders(ctx context.Context, headers []Header) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	md := metadata.MD{}
	for _, h := range headers {
		md.Append(h.Key, h.Value)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// ValidateHeaders checks header keys and values against gRPC metadata
// rules before a call ever opens a stream.
func ValidateHeaders(headers []Header) error {
	md := metadata.MD{}
	for _, h := range headers {
		if err := validateHeaderKey(h.Key); err != nil {
			return &grpcerr.InvalidMetadataError{Key: h.Key, Err: err}
		}
		// Values of "-bin" keys are binary; all others must be printable ASCII.
		if !strings.HasSuffix(h.Key, "-bin") {
			for i := 0; i < len(h.Value); i++ {
				if c := h.Value[i]; c < 0x20 || c > 0x7e {
					return &grpcerr.InvalidMetadataError{Key: h.Key, Err: errInvalidValueChar}
				}
			}
		}
		md.Append(h.Key, h.Value)
	}
	return nil
}

func validateHeaderKey(key string) error {
	if key == "" {
		return errEmptyKey
	}
	for _, r := range key {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '-' && r != '_' && r != '.' {
			return errInvalidKeyChar
		}
	}
	return nil
}

var (
	errEmptyKey         = stringError("metadata key must not be empty")
	errInvalidKeyChar   = stringError("metadata key must match [a-z0-9-_.]+")
	errInvalidValueChar = stringError("metadata value must be printable ASCII")
)

type stringError string

func (e stringError) Error() string { return string(e) }

func (t *Transport) callUnary(ctx context.Context, md *desc.MethodDescriptor, codec *jsoncodec.Codec, body json.RawMessage) (Response, error) {
	reqMsg, err := codec.Encode(body)
	if err != nil {
		return Response{}, err
	}

	var respHeaders metadata.MD
	respMsg, err := t.stub.InvokeRpc(ctx, md, reqMsg, grpc.Header(&respHeaders))
	if err != nil {
		return Response{}, &grpcerr.TransportError{Op: "invoke " + md.GetFullyQualifiedName(), Err: err}
	}

	raw, err := codec.Decode(respMsg.(*dynamic.Message))
	if err != nil {
		return Response{}, err
	}
	return Response{Unary: raw, Headers: toHeaders(respHeaders)}, nil
}

func toHeaders(md metadata.MD) []Header {
	var out []Header
	for k, vs := range md {
		for _, v := range vs {
			out = append(out, Header{Key: k, Value: v})
		}
	}
	return out
}

func (t *Transport) callServerStream(ctx context.Context, md *desc.MethodDescriptor, codec *jsoncodec.Codec, body json.RawMessage) (Response, error) {
	reqMsg, err := codec.Encode(body)
	if err != nil {
		return Response{}, err
	}

	s := newStream(ctx, t.logger, md.GetFullyQualifiedName())

	stream, err := t.stub.InvokeRpcServerStream(s.ctx, md, reqMsg)
	if err != nil {
		s.cancel()
		return Response{}, &grpcerr.TransportError{Op: "invoke " + md.GetFullyQualifiedName(), Err: err}
	}

	go func() {
		defer s.finish()
		for {
			respMsg, err := stream.RecvMsg()
			if err == io.EOF {
				return
			}
			if err != nil {
				s.fail(&grpcerr.TransportError{Op: "recv", Err: err})
				return
			}
			raw, err := codec.Decode(respMsg.(*dynamic.Message))
			if err != nil {
				s.fail(err)
				return
			}
			if !s.emit(raw) {
				return
			}
		}
	}()
	return Response{Streaming: s}, nil
}

// jsonArrayElements requires body to be a JSON array and returns its raw
// elements, one per message to send on a client-streaming or bidirectional
// call.
func jsonArrayElements(body json.RawMessage) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, &grpcerr.BodyShapeMismatchError{Reason: "client streaming requires a JSON array body"}
	}
	return elems, nil
}

func (t *Transport) callClientStream(ctx context.Context, md *desc.MethodDescriptor, codec *jsoncodec.Codec, body json.RawMessage) (Response, error) {
	elems, err := jsonArrayElements(body)
	if err != nil {
		return Response{}, err
	}

	reqMsgs := make([]*dynamic.Message, 0, len(elems))
	for _, elem := range elems {
		reqMsg, err := codec.Encode(elem)
		if err != nil {
			return Response{}, err
		}
		reqMsgs = append(reqMsgs, reqMsg)
	}

	stream, err := t.stub.InvokeRpcClientStream(ctx, md)
	if err != nil {
		return Response{}, &grpcerr.TransportError{Op: "invoke " + md.GetFullyQualifiedName(), Err: err}
	}

	for _, reqMsg := range reqMsgs {
		if err := stream.SendMsg(reqMsg); err != nil {
			return Response{}, &grpcerr.TransportError{Op: "send", Err: err}
		}
	}

	respMsg, err := stream.CloseAndReceive()
	if err != nil {
		return Response{}, &grpcerr.TransportError{Op: "close and receive", Err: err}
	}
	raw, err := codec.Decode(respMsg.(*dynamic.Message))
	if err != nil {
		return Response{}, err
	}
	return Response{Unary: raw}, nil
}

func (t *Transport) callBidi(ctx context.Context, md *desc.MethodDescriptor, codec *jsoncodec.Codec, body json.RawMessage) (Response, error) {
	elems, err := jsonArrayElements(body)
	if err != nil {
		return Response{}, err
	}

	reqMsgs := make([]*dynamic.Message, 0, len(elems))
	for _, elem := range elems {
		reqMsg, err := codec.Encode(elem)
		if err != nil {
			return Response{}, err
		}
		reqMsgs = append(reqMsgs, reqMsg)
	}

	s := newStream(ctx, t.logger, md.GetFullyQualifiedName())

	stream, err := t.stub.InvokeRpcBidiStream(s.ctx, md)
	if err != nil {
		s.cancel()
		return Response{}, &grpcerr.TransportError{Op: "invoke " + md.GetFullyQualifiedName(), Err: err}
	}

	go func() {
		for _, reqMsg := range reqMsgs {
			if err := stream.SendMsg(reqMsg); err != nil {
				s.fail(&grpcerr.TransportError{Op: "send", Err: err})
				return
			}
		}
		stream.CloseSend()
	}()

	go func() {
		defer s.finish()
		for {
			respMsg, err := stream.RecvMsg()
			if err == io.EOF {
				return
			}
			if err != nil {
				s.fail(&grpcerr.TransportError{Op: "recv", Err: err})
				return
			}
			raw, err := codec.Decode(respMsg.(*dynamic.Message))
			if err != nil {
				s.fail(err)
				return
			}
			if !s.emit(raw) {
				return
			}
		}
	}()

	return Response{Streaming: s}, nil
}
