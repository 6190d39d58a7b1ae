package main

import (
	"context"
	"net"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
)

// echoProto is the test service's descriptor, embedded rather than read
// from disk so the binary has no runtime dependency on a .proto file
// living at a fixed path. Mirrors original_source/wrkr-testserver's
// EchoService exactly (one unary Echo(EchoRequest) EchoResponse method,
// one string field each way).
const echoProto = `
syntax = "proto3";
package wrkr.test;

service EchoService {
  rpc Echo(EchoRequest) returns (EchoResponse);
}

message EchoRequest {
  string message = 1;
}

message EchoResponse {
  string message = 1;
}
`

// newGRPCTestServer parses the embedded echo.proto descriptor and
// registers a dynamic, reflection-free Echo handler built directly from
// it, using the same jhump/protoreflect dynamic.Message type the real
// gRPC Client (internal/grpcclient) uses on the invoking side.
func newGRPCTestServer(bindAddr string) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, nil, err
	}

	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{
			"echo.proto": echoProto,
		}),
	}
	fds, err := parser.ParseFiles("echo.proto")
	if err != nil {
		lis.Close()
		return nil, nil, err
	}
	fd := fds[0]
	svc := fd.FindService("wrkr.test.EchoService")
	method := svc.FindMethodByName("Echo")

	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: svc.GetFullyQualifiedName(),
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: method.GetName(),
				Handler:    echoHandler(method),
			},
		},
		Metadata: "echo.proto",
	}, nil)

	return srv, lis, nil
}

// echoHandler builds a grpc.MethodDesc handler straight from method's
// descriptor: decode into a dynamic.Message shaped by the input type, copy
// the one "message" field across, encode a dynamic.Message shaped by the
// output type. No generated .pb.go types are involved on either side.
func echoHandler(method *desc.MethodDescriptor) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := dynamic.NewMessage(method.GetInputType())
		if err := dec(in); err != nil {
			return nil, err
		}

		handle := func(ctx context.Context, req interface{}) (interface{}, error) {
			reqMsg := req.(*dynamic.Message)
			message, _ := reqMsg.TryGetFieldByName("message")
			out := dynamic.NewMessage(method.GetOutputType())
			if err := out.TrySetFieldByName("message", message); err != nil {
				return nil, err
			}
			return out, nil
		}

		if interceptor == nil {
			return handle(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method.GetFullyQualifiedName()}
		return interceptor(ctx, in, info, handle)
	}
}
