package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	schedulingv1 "github.com/Leganyst/detailer-scheduling/internal/api/scheduling/v1"
	"github.com/Leganyst/detailer-scheduling/internal/model"
	"github.com/Leganyst/detailer-scheduling/internal/service"
)

type fakeScheduler struct {
	slotsReq   schedulingv1.GetAvailableSlotsRequest
	bookReq    schedulingv1.CreateBookingRequest
	transition schedulingv1.TransitionJobRequest
	err        error
	replayed   bool
}

func (f *fakeScheduler) AvailableSlots(_ context.Context, req schedulingv1.GetAvailableSlotsRequest) (*schedulingv1.GetAvailableSlotsResponse, error) {
	f.slotsReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &schedulingv1.GetAvailableSlotsResponse{
		Date:  req.Date,
		Slots: []schedulingv1.Slot{{StartTime: "06:00", EndTime: "07:30", Available: true}},
		Total: 1, Page: 1, PageSize: 1,
	}, nil
}

func (f *fakeScheduler) Book(_ context.Context, req schedulingv1.CreateBookingRequest) (*schedulingv1.CreateBookingResponse, error) {
	f.bookReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &schedulingv1.CreateBookingResponse{BookingID: "b-1", JobID: "j-1", StartTime: req.StartTime, Replayed: f.replayed}, nil
}

func (f *fakeScheduler) ChangeJobStatus(_ context.Context, req schedulingv1.TransitionJobRequest) (*schedulingv1.TransitionJobResponse, error) {
	f.transition = req
	if f.err != nil {
		return nil, f.err
	}
	return &schedulingv1.TransitionJobResponse{JobID: req.JobID, Status: req.Status}, nil
}

func (f *fakeScheduler) ListServiceTypes(context.Context) ([]model.ServiceType, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.ServiceType{{Name: "Full Valet", DurationMin: 120, Price: 89}}, nil
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetSlots_ParsesQuery(t *testing.T) {
	f := &fakeScheduler{}
	h := NewRouter(f, Options{}, zap.NewNop())

	rec := do(t, h, http.MethodGet,
		"/v1/slots?date=2025-03-05&service_duration_minutes=90&country=Ireland&city=Dublin&latitude=53.35&longitude=-6.26&is_express=true&page=2&page_size=5",
		"", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.slotsReq.ServiceDurationMinutes != 90 || !f.slotsReq.IsExpress || f.slotsReq.Page != 2 || f.slotsReq.PageSize != 5 {
		t.Fatalf("unexpected request %+v", f.slotsReq)
	}
	if f.slotsReq.Latitude == nil || *f.slotsReq.Latitude != 53.35 || f.slotsReq.Longitude == nil {
		t.Fatalf("coordinates not parsed: %+v", f.slotsReq)
	}

	var resp schedulingv1.GetAvailableSlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0].StartTime != "06:00" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetSlots_BadQueryParam(t *testing.T) {
	h := NewRouter(&fakeScheduler{}, Options{}, zap.NewNop())

	for _, q := range []string{"service_duration_minutes=abc", "latitude=north", "is_express=maybe"} {
		rec := do(t, h, http.MethodGet, "/v1/slots?date=2025-03-05&"+q, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestCreateBooking_IdempotencyHeader(t *testing.T) {
	f := &fakeScheduler{}
	h := NewRouter(f, Options{}, zap.NewNop())

	body := `{"date":"2025-03-05","start_time":"09:00","service_duration_minutes":90,"country":"Ireland","city":"Dublin"}`
	rec := do(t, h, http.MethodPost, "/v1/bookings", body, map[string]string{"Idempotency-Key": "abc-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.bookReq.BookingReference != "abc-1" {
		t.Fatalf("expected reference from header, got %q", f.bookReq.BookingReference)
	}

	f.replayed = true
	rec = do(t, h, http.MethodPost, "/v1/bookings", body, map[string]string{"Idempotency-Key": "abc-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
}

func TestCreateBooking_RejectsUnknownFields(t *testing.T) {
	h := NewRouter(&fakeScheduler{}, Options{}, zap.NewNop())

	rec := do(t, h, http.MethodPost, "/v1/bookings", `{"date":"2025-03-05","detailer_id":"x"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTransitionJob_Route(t *testing.T) {
	f := &fakeScheduler{}
	h := NewRouter(f, Options{}, zap.NewNop())

	rec := do(t, h, http.MethodPatch, "/v1/jobs/123/status", `{"status":"accepted"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.transition.JobID != "123" || f.transition.Status != "accepted" {
		t.Fatalf("unexpected transition %+v", f.transition)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad date", service.ErrInvalidParameters), http.StatusBadRequest},
		{service.ErrNoEligibleWorkers, http.StatusNotFound},
		{service.ErrJobNotFound, http.StatusNotFound},
		{service.ErrBookingRaceLost, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("%w: boom", service.ErrStoreUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		h := NewRouter(&fakeScheduler{err: tc.err}, Options{}, zap.NewNop())
		rec := do(t, h, http.MethodGet, "/v1/slots?date=2025-03-05", "", nil)
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}

	h := NewRouter(&fakeScheduler{err: service.ErrNoEligibleWorkers}, Options{}, zap.NewNop())
	rec := do(t, h, http.MethodGet, "/v1/slots", "", nil)
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "not available in this area yet" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestServiceTypes(t *testing.T) {
	h := NewRouter(&fakeScheduler{}, Options{}, zap.NewNop())

	rec := do(t, h, http.MethodGet, "/v1/service-types", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"duration_minutes":120`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	h := NewRouter(&fakeScheduler{}, Options{RateLimitRPS: 0.001, RateLimitBurst: 2}, zap.NewNop())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodGet, "/v1/service-types", "", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	// healthz не лимитируется
	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestRateLimit_EvictsIdleClients(t *testing.T) {
	now := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(0.001, 1, zap.NewNop())
	l.now = func() time.Time { return now }
	l.lastSweep = now
	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/service-types", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 50; i++ {
		hit(fmt.Sprintf("10.0.%d.%d:4000", i/250, i%250))
	}
	if hit("10.0.0.0:4000") != http.StatusTooManyRequests {
		t.Fatalf("expected repeat client to be limited")
	}
	if n := l.size(); n != 50 {
		t.Fatalf("expected 50 tracked clients, got %d", n)
	}

	// через TTL простоя старые адреса вычищаются, новый клиент остаётся
	now = now.Add(limiterIdleTTL + time.Second)
	if hit("10.9.9.9:4000") != http.StatusOK {
		t.Fatalf("expected fresh client to pass")
	}
	if n := l.size(); n != 1 {
		t.Fatalf("expected idle clients to be evicted, got %d left", n)
	}

	// забытый клиент получает новый bucket
	if hit("10.0.0.0:4000") != http.StatusOK {
		t.Fatalf("expected evicted client to start with a fresh bucket")
	}
}
