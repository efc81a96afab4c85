// Package schedulingv1 — контракт SchedulingService: поля сообщений
// и gRPC-описание сервиса. Те же структуры использует HTTP API.
package schedulingv1

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

type GetAvailableSlotsRequest struct {
	Date                   string   `json:"date"`
	ServiceDurationMinutes int      `json:"service_duration_minutes,omitempty"`
	ServiceType            string   `json:"service_type,omitempty"`
	Country                string   `json:"country"`
	City                   string   `json:"city"`
	Latitude               *float64 `json:"latitude,omitempty"`
	Longitude              *float64 `json:"longitude,omitempty"`
	IsExpress              bool     `json:"is_express,omitempty"`
	Page                   int      `json:"page,omitempty"`
	PageSize               int      `json:"page_size,omitempty"`
}

type Slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
	FullCrew  *bool  `json:"full_crew,omitempty"`
}

type GetAvailableSlotsResponse struct {
	Date       string `json:"date"`
	Slots      []Slot `json:"slots"`
	MatchTier  string `json:"match_tier,omitempty"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	HasNext    bool   `json:"has_next"`
}

type CreateBookingRequest struct {
	Date                   string         `json:"date"`
	StartTime              string         `json:"start_time"`
	EndTime                string         `json:"end_time,omitempty"`
	ServiceDurationMinutes int            `json:"service_duration_minutes,omitempty"`
	ServiceType            string         `json:"service_type,omitempty"`
	Country                string         `json:"country"`
	City                   string         `json:"city"`
	Latitude               *float64       `json:"latitude,omitempty"`
	Longitude              *float64       `json:"longitude,omitempty"`
	IsExpress              bool           `json:"is_express,omitempty"`
	BookingReference       string         `json:"booking_reference,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
}

type CreateBookingResponse struct {
	BookingID           string `json:"booking_id"`
	JobID               string `json:"job_id"`
	PrimaryDetailerID   string `json:"primary_detailer_id"`
	SecondaryDetailerID string `json:"secondary_detailer_id,omitempty"`
	Date                string `json:"date"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	Label               string `json:"label"`
	Replayed            bool   `json:"replayed,omitempty"`
}

type TransitionJobRequest struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type TransitionJobResponse struct {
	JobID       string `json:"job_id"`
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`
}

// Encode упаковывает сообщение в Struct.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode распаковывает Struct в сообщение. Неизвестные поля — ошибка.
func Decode(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return DecodeJSON(raw, v)
}

func DecodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
