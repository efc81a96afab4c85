package service

import (
	"context"
	"time"

	schedulingv1 "github.com/Leganyst/detailer-scheduling/internal/api/scheduling/v1"
	"github.com/Leganyst/detailer-scheduling/internal/calendar"
)

// Обёртки над SchedulingService в терминах сообщений API,
// общие для gRPC и HTTP.

func (s *SchedulingService) AvailableSlots(
	ctx context.Context,
	req schedulingv1.GetAvailableSlotsRequest,
) (*schedulingv1.GetAvailableSlotsResponse, error) {
	res, err := s.GetAvailableSlots(ctx, SlotQuery{
		Date:                   req.Date,
		ServiceDurationMinutes: req.ServiceDurationMinutes,
		ServiceType:            req.ServiceType,
		Location: Location{
			Country:   req.Country,
			City:      req.City,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		},
		IsExpress: req.IsExpress,
	})
	if err != nil {
		return nil, err
	}

	slots := make([]schedulingv1.Slot, 0, len(res.Slots))
	for _, sl := range res.Slots {
		slots = append(slots, schedulingv1.Slot{
			StartTime: calendar.FormatClock(sl.Start),
			EndTime:   calendar.FormatClock(sl.End),
			Available: sl.Available,
			FullCrew:  sl.FullCrew,
		})
	}

	resp := &schedulingv1.GetAvailableSlotsResponse{
		Date:      req.Date,
		MatchTier: string(res.Tier),
		Total:     len(slots),
	}
	// без page_size отдаём весь день одной страницей
	if req.PageSize <= 0 {
		resp.Slots = slots
		resp.Page = 1
		resp.PageSize = len(slots)
		resp.TotalPages = 1
		return resp, nil
	}
	page := calendar.Paginate(slots, req.Page, req.PageSize)
	resp.Slots = page.Items
	resp.Page = page.Page
	resp.PageSize = page.PageSize
	resp.TotalPages = page.TotalPages
	resp.HasNext = page.HasNext
	return resp, nil
}

func (s *SchedulingService) Book(
	ctx context.Context,
	req schedulingv1.CreateBookingRequest,
) (*schedulingv1.CreateBookingResponse, error) {
	res, err := s.CreateBooking(ctx, BookingRequest{
		Date:                   req.Date,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		ServiceDurationMinutes: req.ServiceDurationMinutes,
		ServiceType:            req.ServiceType,
		Location: Location{
			Country:   req.Country,
			City:      req.City,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		},
		IsExpress:        req.IsExpress,
		BookingReference: req.BookingReference,
		Metadata:         req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	resp := &schedulingv1.CreateBookingResponse{
		BookingID:         res.BookingID.String(),
		JobID:             res.PrimaryJobID.String(),
		PrimaryDetailerID: res.PrimaryDetailerID.String(),
		Date:              res.Start.Format(calendar.DateLayout),
		StartTime:         calendar.FormatClock(res.Start),
		EndTime:           calendar.FormatClock(res.End),
		Label:             calendar.FormatAppointment(res.Start),
		Replayed:          res.Replayed,
	}
	if res.SecondaryDetailerID != nil {
		resp.SecondaryDetailerID = res.SecondaryDetailerID.String()
	}
	return resp, nil
}

func (s *SchedulingService) ChangeJobStatus(
	ctx context.Context,
	req schedulingv1.TransitionJobRequest,
) (*schedulingv1.TransitionJobResponse, error) {
	job, err := s.TransitionJob(ctx, req.JobID, req.Status)
	if err != nil {
		return nil, err
	}
	resp := &schedulingv1.TransitionJobResponse{
		JobID:     job.ID.String(),
		BookingID: job.BookingID.String(),
		Status:    string(job.Status),
	}
	if job.CancelledAt != nil {
		resp.CancelledAt = job.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}
