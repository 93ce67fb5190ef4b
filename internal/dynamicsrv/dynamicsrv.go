// Package dynamicsrv builds a real, serving gRPC test fixture without any
// protoc-generated code: a hand-built FileDescriptorProto turned into a
// protoreflect.FileDescriptor and registered globally, paired with a
// hand-written grpc.ServiceDesc whose handlers operate on
// dynamicpb.Message values (which satisfy proto.Message, so grpc-go's
// default codec works unmodified). reflection.Register then works too,
// since it resolves a ServiceDesc's Metadata (a file path) through the
// now-populated global registry.
//
// This lets the library's own tests exercise real unary, server-stream,
// client-stream, and bidi RPCs end to end without depending on a
// generated pb package.
package dynamicsrv

import (
	"context"
	"io"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

func strPtr(s string) *string { return &s }
func i32Ptr(i int32) *int32   { return &i }

var (
	typeString    = descriptorpb.FieldDescriptorProto_TYPE_STRING
	labelOptional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
)

// EchoFileDescriptorProto describes a package "echo" service exercising
// all four streaming patterns over a single request/reply message shape.
func EchoFileDescriptorProto() *descriptorpb.FileDescriptorProto {
	msg := func(name string) *descriptorpb.DescriptorProto {
		return &descriptorpb.DescriptorProto{
			Name: strPtr(name),
			Field: []*descriptorpb.FieldDescriptorProto{
				{Name: strPtr("message"), Number: i32Ptr(1), Type: &typeString, Label: &labelOptional},
			},
		}
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    strPtr("echo.proto"),
		Package: strPtr("echo"),
		Syntax:  strPtr("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			msg("EchoRequest"),
			msg("EchoReply"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: strPtr("EchoService"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       strPtr("UnaryEcho"),
						InputType:  strPtr(".echo.EchoRequest"),
						OutputType: strPtr(".echo.EchoReply"),
					},
					{
						Name:            strPtr("ServerStreamEcho"),
						InputType:       strPtr(".echo.EchoRequest"),
						OutputType:      strPtr(".echo.EchoReply"),
						ServerStreaming: boolPtr(true),
					},
					{
						Name:            strPtr("ClientStreamEcho"),
						InputType:       strPtr(".echo.EchoRequest"),
						OutputType:      strPtr(".echo.EchoReply"),
						ClientStreaming: boolPtr(true),
					},
					{
						Name:            strPtr("BidiStreamEcho"),
						InputType:       strPtr(".echo.EchoRequest"),
						OutputType:      strPtr(".echo.EchoReply"),
						ClientStreaming: boolPtr(true),
						ServerStreaming: boolPtr(true),
					},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool { return &b }

// Fixture bundles the descriptors and server registration needed to serve
// and to dial the echo service.
type Fixture struct {
	JhumpFile *desc.FileDescriptor
	protoFile protoreflect.FileDescriptor
	reqDesc   protoreflect.MessageDescriptor
	repDesc   protoreflect.MessageDescriptor
}

// NewEchoFixture builds and registers the echo service's descriptors into
// protoregistry.GlobalFiles, so reflection.Register(s) resolves it too.
// Registering twice (across multiple tests in one process) is tolerated.
func NewEchoFixture() (*Fixture, error) {
	rawFD := EchoFileDescriptorProto()

	jhumpFD, err := desc.CreateFileDescriptor(rawFD)
	if err != nil {
		return nil, err
	}

	protoFile, err := protoregistry.GlobalFiles.FindFileByPath("echo.proto")
	if err != nil {
		protoFile, err = protodesc.NewFile(rawFD, protoregistry.GlobalFiles)
		if err != nil {
			return nil, err
		}
		if regErr := protoregistry.GlobalFiles.RegisterFile(protoFile); regErr != nil {
			return nil, regErr
		}
	}

	return &Fixture{
		JhumpFile: jhumpFD,
		protoFile: protoFile,
		reqDesc:   protoFile.Messages().ByName("EchoRequest"),
		repDesc:   protoFile.Messages().ByName("EchoReply"),
	}, nil
}

// EchoServer implements the echo semantics the fixture's service
// descriptor promises: unary and streaming calls all echo their input's
// "message" field back, server/bidi streams sending it a fixed number of
// times.
type EchoServer struct {
	RepeatCount int
}

func (f *Fixture) newRequest() *dynamicpb.Message { return dynamicpb.NewMessage(f.reqDesc) }
func (f *Fixture) newReply() *dynamicpb.Message    { return dynamicpb.NewMessage(f.repDesc) }

func (f *Fixture) echoReply(text string) *dynamicpb.Message {
	reply := f.newReply()
	reply.Set(f.repDesc.Fields().ByName("message"), protoreflect.ValueOfString(text))
	return reply
}

func textOf(msg *dynamicpb.Message, fd protoreflect.MessageDescriptor) string {
	return msg.Get(fd.Fields().ByName("message")).String()
}

// ServiceDesc builds the grpc.ServiceDesc for this fixture, wired to srv.
func (f *Fixture) ServiceDesc(srv *EchoServer) *grpc.ServiceDesc {
	repeat := srv.RepeatCount
	if repeat <= 0 {
		repeat = 3
	}

	return &grpc.ServiceDesc{
		ServiceName: "echo.EchoService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "UnaryEcho",
				Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					req := f.newRequest()
					if err := dec(req); err != nil {
						return nil, err
					}
					return f.echoReply(textOf(req, f.reqDesc)), nil
				},
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "ServerStreamEcho",
				ServerStreams: true,
				Handler: func(_ any, stream grpc.ServerStream) error {
					req := f.newRequest()
					if err := stream.RecvMsg(req); err != nil {
						return err
					}
					for i := 0; i < repeat; i++ {
						if err := stream.SendMsg(f.echoReply(textOf(req, f.reqDesc))); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				StreamName:    "ClientStreamEcho",
				ClientStreams: true,
				Handler: func(_ any, stream grpc.ServerStream) error {
					var last string
					for {
						req := f.newRequest()
						err := stream.RecvMsg(req)
						if err == io.EOF {
							return stream.SendMsg(f.echoReply(last))
						}
						if err != nil {
							return err
						}
						last = textOf(req, f.reqDesc)
					}
				},
			},
			{
				StreamName:    "BidiStreamEcho",
				ServerStreams: true,
				ClientStreams: true,
				Handler: func(_ any, stream grpc.ServerStream) error {
					for {
						req := f.newRequest()
						err := stream.RecvMsg(req)
						if err == io.EOF {
							return nil
						}
						if err != nil {
							return err
						}
						if err := stream.SendMsg(f.echoReply(textOf(req, f.reqDesc))); err != nil {
							return err
						}
					}
				},
			},
		},
		Metadata: "echo.proto",
	}
}
