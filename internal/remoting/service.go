// Package remoting defines the gRPC service models are invoked through.
//
// The service has a single unary method, Invoke, whose request and response
// are google.protobuf.Struct messages:
//
//	request:  {model: "TestModel", method: "findById", id: 7, args: {...}}
//	response: {result: ...}
package remoting

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "remotemodel.v1.ModelService"
	// InvokeFullMethod is the full method name of ModelService.Invoke
	InvokeFullMethod = "/" + ServiceName + "/Invoke"
)

// ModelServiceServer is the server API for ModelService
type ModelServiceServer interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ModelServiceClient is the client API for ModelService
type ModelServiceClient interface {
	Invoke(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type modelServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewModelServiceClient creates a ModelService client on cc
func NewModelServiceClient(cc grpc.ClientConnInterface) ModelServiceClient {
	return &modelServiceClient{cc: cc}
}

func (c *modelServiceClient) Invoke(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InvokeFullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterModelServiceServer registers srv on s
func RegisterModelServiceServer(s grpc.ServiceRegistrar, srv ModelServiceServer) {
	s.RegisterService(&ModelServiceDesc, srv)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModelServiceServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InvokeFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ModelServiceServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ModelServiceDesc is the grpc.ServiceDesc for ModelService
var ModelServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "remotemodel/v1/model_service.proto",
}
