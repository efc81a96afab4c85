package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	schedulingv1 "github.com/Leganyst/detailer-scheduling/internal/api/scheduling/v1"
)

// SchedulingServer — gRPC-обвязка над SchedulingService.
type SchedulingServer struct {
	schedulingv1.UnimplementedSchedulingServiceServer

	svc *SchedulingService
	log *zap.Logger
}

func NewSchedulingServer(svc *SchedulingService, log *zap.Logger) *SchedulingServer {
	return &SchedulingServer{svc: svc, log: log}
}

func (s *SchedulingServer) GetAvailableSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req schedulingv1.GetAvailableSlotsRequest
	if err := schedulingv1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.svc.AvailableSlots(ctx, req)
	if err != nil {
		return nil, s.toStatus("GetAvailableSlots", err)
	}
	return encode(resp)
}

func (s *SchedulingServer) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req schedulingv1.CreateBookingRequest
	if err := schedulingv1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.svc.Book(ctx, req)
	if err != nil {
		return nil, s.toStatus("CreateBooking", err)
	}
	return encode(resp)
}

func (s *SchedulingServer) TransitionJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req schedulingv1.TransitionJobRequest
	if err := schedulingv1.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.JobID == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}
	resp, err := s.svc.ChangeJobStatus(ctx, req)
	if err != nil {
		return nil, s.toStatus("TransitionJob", err)
	}
	return encode(resp)
}

func encode(v any) (*structpb.Struct, error) {
	out, err := schedulingv1.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// GRPCCode сопоставляет ошибку сервиса с кодом gRPC.
func GRPCCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrInvalidParameters):
		return codes.InvalidArgument
	case errors.Is(err, ErrNoEligibleWorkers), errors.Is(err, ErrJobNotFound):
		return codes.NotFound
	case errors.Is(err, ErrBookingRaceLost):
		return codes.Aborted
	case errors.Is(err, ErrInvalidTransition):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, ErrStoreUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func (s *SchedulingServer) toStatus(method string, err error) error {
	code := GRPCCode(err)
	if code == codes.Unavailable || code == codes.Internal {
		s.log.Error("rpc failed", zap.String("method", method), zap.Error(err))
		return status.Error(code, "scheduling store unavailable")
	}
	return status.Error(code, err.Error())
}
