// Package httpapi — HTTP/JSON обвязка над SchedulingService.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	schedulingv1 "github.com/Leganyst/detailer-scheduling/internal/api/scheduling/v1"
	"github.com/Leganyst/detailer-scheduling/internal/model"
	"github.com/Leganyst/detailer-scheduling/internal/service"
)

const maxBodyBytes = 1 << 20

// Scheduler — то, что HTTP-слою нужно от сервиса.
type Scheduler interface {
	AvailableSlots(ctx context.Context, req schedulingv1.GetAvailableSlotsRequest) (*schedulingv1.GetAvailableSlotsResponse, error)
	Book(ctx context.Context, req schedulingv1.CreateBookingRequest) (*schedulingv1.CreateBookingResponse, error)
	ChangeJobStatus(ctx context.Context, req schedulingv1.TransitionJobRequest) (*schedulingv1.TransitionJobResponse, error)
	ListServiceTypes(ctx context.Context) ([]model.ServiceType, error)
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type handlers struct {
	svc Scheduler
	log *zap.Logger
}

func NewRouter(svc Scheduler, opts Options, log *zap.Logger) http.Handler {
	h := &handlers{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, log).Handler)
		}
		r.Get("/slots", h.getSlots)
		r.Post("/bookings", h.createBooking)
		r.Patch("/jobs/{id}/status", h.transitionJob)
		r.Get("/service-types", h.listServiceTypes)
	})
	return r
}

func (h *handlers) getSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := schedulingv1.GetAvailableSlotsRequest{
		Date:        q.Get("date"),
		ServiceType: q.Get("service_type"),
		Country:     q.Get("country"),
		City:        q.Get("city"),
	}

	var err error
	if req.ServiceDurationMinutes, err = intParam(q.Get("service_duration_minutes")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid service_duration_minutes")
		return
	}
	if req.Page, err = intParam(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if req.PageSize, err = intParam(q.Get("page_size")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid page_size")
		return
	}
	if req.Latitude, err = floatParam(q.Get("latitude")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid latitude")
		return
	}
	if req.Longitude, err = floatParam(q.Get("longitude")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid longitude")
		return
	}
	if v := q.Get("is_express"); v != "" {
		if req.IsExpress, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid is_express")
			return
		}
	}

	resp, err := h.svc.AvailableSlots(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req schedulingv1.CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// ключ идемпотентности можно передать заголовком
	if req.BookingReference == "" {
		req.BookingReference = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	resp, err := h.svc.Book(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	code := http.StatusCreated
	if resp.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, resp)
}

func (h *handlers) transitionJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.svc.ChangeJobStatus(r.Context(), schedulingv1.TransitionJobRequest{
		JobID:  chi.URLParam(r, "id"),
		Status: body.Status,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type serviceTypeDTO struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	DurationMin int64   `json:"duration_minutes"`
	Price       float64 `json:"price"`
}

func (h *handlers) listServiceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.ListServiceTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]serviceTypeDTO, 0, len(types))
	for _, st := range types {
		out = append(out, serviceTypeDTO{
			Name:        st.Name,
			Description: st.Description,
			DurationMin: st.DurationMin,
			Price:       st.Price,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_types": out})
}

// HTTPStatus сопоставляет ошибку сервиса с HTTP-кодом.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoEligibleWorkers), errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBookingRaceLost), errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, code, "scheduling temporarily unavailable")
		return
	}
	writeError(w, code, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("cannot read request body")
	}
	if err := schedulingv1.DecodeJSON(raw, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func floatParam(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
