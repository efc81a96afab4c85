package schedulingv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "scheduling.v1.SchedulingService"

const (
	GetAvailableSlotsMethod = "/" + ServiceName + "/GetAvailableSlots"
	CreateBookingMethod     = "/" + ServiceName + "/CreateBooking"
	TransitionJobMethod     = "/" + ServiceName + "/TransitionJob"
)

type SchedulingServiceServer interface {
	GetAvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedSchedulingServiceServer встраивается в реализации.
type UnimplementedSchedulingServiceServer struct{}

func (UnimplementedSchedulingServiceServer) GetAvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAvailableSlots not implemented")
}

func (UnimplementedSchedulingServiceServer) CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateBooking not implemented")
}

func (UnimplementedSchedulingServiceServer) TransitionJob(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method TransitionJob not implemented")
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingService_ServiceDesc, srv)
}

func unaryHandler(
	method string,
	call func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SchedulingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetAvailableSlots",
			Handler:    unaryHandler(GetAvailableSlotsMethod, SchedulingServiceServer.GetAvailableSlots),
		},
		{
			MethodName: "CreateBooking",
			Handler:    unaryHandler(CreateBookingMethod, SchedulingServiceServer.CreateBooking),
		},
		{
			MethodName: "TransitionJob",
			Handler:    unaryHandler(TransitionJobMethod, SchedulingServiceServer.TransitionJob),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scheduling/v1/scheduling.proto",
}

type SchedulingServiceClient interface {
	GetAvailableSlots(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CreateBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	TransitionJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type schedulingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulingServiceClient(cc grpc.ClientConnInterface) SchedulingServiceClient {
	return &schedulingServiceClient{cc: cc}
}

func (c *schedulingServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulingServiceClient) GetAvailableSlots(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetAvailableSlotsMethod, in, opts)
}

func (c *schedulingServiceClient) CreateBooking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, CreateBookingMethod, in, opts)
}

func (c *schedulingServiceClient) TransitionJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, TransitionJobMethod, in, opts)
}
