package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "forecast.v1.ForecastEngine"

// Method names exposed by the forecast engine.
const (
	MethodEvaluate         = "Evaluate"
	MethodEvaluateFleet    = "EvaluateFleet"
	MethodTrain            = "Train"
	MethodListAlerts       = "ListAlerts"
	MethodAcknowledgeAlert = "AcknowledgeAlert"
	MethodResolveAlert     = "ResolveAlert"
	MethodGetPatterns      = "GetPatterns"
	MethodHealthCheck      = "HealthCheck"
)

// ForecastEngineServer is the server API. Payloads are google.protobuf.Struct
// documents whose shapes are the request and response types in this package.
type ForecastEngineServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	EvaluateFleet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Train(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPatterns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	HealthCheck(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv ForecastEngineServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ForecastEngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ForecastEngineServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the forecast engine for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecastEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodEvaluate, ForecastEngineServer.Evaluate),
		unaryHandler(MethodEvaluateFleet, ForecastEngineServer.EvaluateFleet),
		unaryHandler(MethodTrain, ForecastEngineServer.Train),
		unaryHandler(MethodListAlerts, ForecastEngineServer.ListAlerts),
		unaryHandler(MethodAcknowledgeAlert, ForecastEngineServer.AcknowledgeAlert),
		unaryHandler(MethodResolveAlert, ForecastEngineServer.ResolveAlert),
		unaryHandler(MethodGetPatterns, ForecastEngineServer.GetPatterns),
		unaryHandler(MethodHealthCheck, ForecastEngineServer.HealthCheck),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "forecast/v1/forecast.proto",
}

// RegisterForecastEngineServer registers srv on s.
func RegisterForecastEngineServer(s grpc.ServiceRegistrar, srv ForecastEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the forecast engine over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req, decoding the response into out when it is non-nil.
func (c *Client) Call(ctx context.Context, method string, req any, out any, opts ...grpc.CallOption) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return FromStruct(resp, out)
}
