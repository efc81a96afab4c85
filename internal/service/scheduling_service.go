package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/detailer-scheduling/internal/booking"
	"github.com/Leganyst/detailer-scheduling/internal/calendar"
	"github.com/Leganyst/detailer-scheduling/internal/events"
	"github.com/Leganyst/detailer-scheduling/internal/matching"
	"github.com/Leganyst/detailer-scheduling/internal/model"
	"github.com/Leganyst/detailer-scheduling/internal/repository"
)

var (
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrNoEligibleWorkers = errors.New("not available in this area yet")
	ErrBookingRaceLost   = errors.New("slot no longer available")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type DetailerResolver interface {
	Resolve(ctx context.Context, q matching.Query) (matching.Result, error)
}

type Location struct {
	Country   string
	City      string
	Latitude  *float64
	Longitude *float64
}

// SlotQuery — запрос свободных слотов. Длительность берётся из
// ServiceDurationMinutes, а если он не задан, из типа услуги.
type SlotQuery struct {
	Date                   string
	ServiceDurationMinutes int
	ServiceType            string
	Location               Location
	IsExpress              bool
}

// Slot — свободный интервал. Какой исполнитель его дал, наружу не отдаётся.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
	// Только для экспресса: свободны ли на слот хотя бы два исполнителя.
	FullCrew *bool
}

type SlotsResult struct {
	Slots []Slot
	Tier  matching.Tier
}

type BookingRequest struct {
	Date                   string
	StartTime              string
	EndTime                string
	ServiceDurationMinutes int
	ServiceType            string
	Location               Location
	IsExpress              bool
	// Ключ идемпотентности: повтор с тем же ключом вернёт ту же бронь.
	BookingReference string
	Metadata         map[string]any
}

type BookingResult struct {
	BookingID           uuid.UUID
	PrimaryDetailerID   uuid.UUID
	PrimaryJobID        uuid.UUID
	SecondaryDetailerID *uuid.UUID
	Start               time.Time
	End                 time.Time
	Tier                matching.Tier
	Replayed            bool
}

type Options struct {
	TravelBuffer  time.Duration
	BusinessStart string
	BusinessEnd   string
}

type SchedulingService struct {
	resolver     DetailerResolver
	availability repository.AvailabilityRepository
	jobs         repository.JobRepository
	serviceTypes repository.ServiceTypeRepository
	locker       booking.Locker
	publisher    events.Publisher
	selector     booking.Selector
	buffer       time.Duration
	dayStart     time.Duration
	dayEnd       time.Duration
	log          *zap.Logger
}

func NewSchedulingService(
	resolver DetailerResolver,
	availability repository.AvailabilityRepository,
	jobs repository.JobRepository,
	serviceTypes repository.ServiceTypeRepository,
	locker booking.Locker,
	publisher events.Publisher,
	opts Options,
	log *zap.Logger,
) (*SchedulingService, error) {
	dayStart, err := calendar.ParseClock(opts.BusinessStart)
	if err != nil {
		return nil, fmt.Errorf("business start: %w", err)
	}
	dayEnd, err := calendar.ParseClock(opts.BusinessEnd)
	if err != nil {
		return nil, fmt.Errorf("business end: %w", err)
	}
	if dayEnd <= dayStart {
		return nil, fmt.Errorf("business hours %s-%s: end must be after start", opts.BusinessStart, opts.BusinessEnd)
	}
	if opts.TravelBuffer < 0 {
		return nil, fmt.Errorf("travel buffer must not be negative")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &SchedulingService{
		resolver:     resolver,
		availability: availability,
		jobs:         jobs,
		serviceTypes: serviceTypes,
		locker:       locker,
		publisher:    publisher,
		selector:     booking.Selector{Buffer: opts.TravelBuffer},
		buffer:       opts.TravelBuffer,
		dayStart:     dayStart,
		dayEnd:       dayEnd,
		log:          log,
	}, nil
}

// GetAvailableSlots ничего не пишет. Пустой список слотов не ошибка:
// день может быть полностью занят.
func (s *SchedulingService) GetAvailableSlots(ctx context.Context, q SlotQuery) (*SlotsResult, error) {
	day, err := parseDay(q.Date)
	if err != nil {
		return nil, err
	}
	duration, err := s.serviceDuration(ctx, q.ServiceDurationMinutes, q.ServiceType)
	if err != nil {
		return nil, err
	}
	if err := validateLocation(q.Location); err != nil {
		return nil, err
	}

	// для показа слотов флаг is_available не учитываем
	res, err := s.resolve(ctx, q.Location, nil)
	if err != nil {
		return nil, err
	}

	candidates, err := s.loadCandidates(ctx, res.Detailers, day)
	if err != nil {
		return nil, err
	}

	seqs := make([]iter.Seq[calendar.TimeRange], 0, len(candidates))
	for _, c := range candidates {
		seqs = append(seqs, c.Calendar.Candidates(duration, s.buffer))
	}
	ranges := calendar.Union(seqs...)

	slots := make([]Slot, 0, len(ranges))
	for _, tr := range ranges {
		slot := Slot{Start: tr.Start, End: tr.End, Available: true}
		if q.IsExpress {
			full := s.selector.FreeCount(candidates, tr) >= 2
			slot.FullCrew = &full
		}
		slots = append(slots, slot)
	}

	s.log.Debug("slots computed",
		zap.String("date", q.Date),
		zap.Duration("duration", duration),
		zap.String("tier", string(res.Tier)),
		zap.Int("detailers", len(res.Detailers)),
		zap.Int("slots", len(slots)),
	)
	return &SlotsResult{Slots: slots, Tier: res.Tier}, nil
}

// CreateBooking подбирает исполнителя, блокирует его календарь на дату,
// перепроверяет пересечения и пишет заказ.
// Проигранная гонка возвращается как ErrBookingRaceLost, повторов нет.
func (s *SchedulingService) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	slot, duration, err := s.validateBooking(ctx, req)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(req.BookingReference)
	if reference != "" {
		if res, ok, err := s.replay(ctx, reference); err != nil || ok {
			return res, err
		}
	}

	res, err := s.resolve(ctx, req.Location, ptr(true))
	if err != nil {
		return nil, err
	}

	day := calendar.At(slot.Start, 0)
	candidates, err := s.loadCandidates(ctx, res.Detailers, day)
	if err != nil {
		return nil, err
	}

	if !anyCovers(candidates, slot) {
		return nil, fmt.Errorf("%w: no detailer works at %s", ErrNoEligibleWorkers, calendar.FormatClock(slot.Start))
	}
	assignment, ok := s.selector.Select(candidates, slot, req.IsExpress)
	if !ok {
		return nil, ErrBookingRaceLost
	}

	keys := []string{booking.Key(assignment.Primary.ID, day)}
	if assignment.Secondary != nil {
		keys = append(keys, booking.Key(assignment.Secondary.ID, day))
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("%w: lock detailer calendar: %w", ErrStoreUnavailable, err)
	}
	defer unlock()

	bookingID := uuid.New()
	jobs := []*model.Job{s.newJob(req, bookingID, reference, assignment.Primary.ID, model.JobRolePrimary, slot, duration)}
	if assignment.Secondary != nil {
		jobs = append(jobs, s.newJob(req, bookingID, reference, assignment.Secondary.ID, model.JobRoleSecondary, slot, duration))
	}

	created, err := s.jobs.CreateBooking(ctx, jobs, s.buffer)
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			// тот же ключ идемпотентности мог записаться параллельно
			if reference != "" {
				if res, ok, rerr := s.replay(ctx, reference); rerr == nil && ok {
					return res, nil
				}
			}
			s.log.Info("booking race lost",
				zap.String("detailer_id", assignment.Primary.ID.String()),
				zap.Time("start", slot.Start),
			)
			return nil, ErrBookingRaceLost
		}
		return nil, fmt.Errorf("%w: create booking: %w", ErrStoreUnavailable, err)
	}

	result := &BookingResult{
		BookingID:         bookingID,
		PrimaryDetailerID: created[0].DetailerID,
		PrimaryJobID:      created[0].ID,
		Start:             slot.Start,
		End:               slot.End,
		Tier:              res.Tier,
	}
	if len(created) > 1 {
		id := created[1].DetailerID
		result.SecondaryDetailerID = &id
	}
	if req.IsExpress && result.SecondaryDetailerID == nil {
		s.log.Info("express booking assigned to a single detailer", zap.String("booking_id", bookingID.String()))
	}

	s.log.Info("booking created",
		zap.String("booking_id", bookingID.String()),
		zap.String("primary_detailer_id", result.PrimaryDetailerID.String()),
		zap.Bool("express", req.IsExpress),
		zap.Int("jobs", len(created)),
		zap.String("tier", string(res.Tier)),
	)

	for _, j := range created {
		s.publish(ctx, bookingEvent(j))
	}
	return result, nil
}

// TransitionJob переводит заказ в следующий статус по машине состояний.
func (s *SchedulingService) TransitionJob(ctx context.Context, jobID, status string) (*model.Job, error) {
	id, err := uuid.Parse(strings.TrimSpace(jobID))
	if err != nil {
		return nil, fmt.Errorf("%w: job id: %v", ErrInvalidParameters, err)
	}
	next := model.JobStatus(strings.TrimSpace(status))
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidParameters, status)
	}

	job, prev, err := s.jobs.Transition(ctx, id, next)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrJobNotFound
	case errors.Is(err, repository.ErrInvalidTransition):
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	default:
		return nil, fmt.Errorf("%w: transition job: %w", ErrStoreUnavailable, err)
	}

	s.log.Info("job status changed",
		zap.String("job_id", job.ID.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)

	e := bookingEvent(job)
	e.Type = events.TypeJobStatusChanged
	e.PreviousStatus = string(prev)
	s.publish(ctx, e)
	return job, nil
}

func (s *SchedulingService) ListServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	types, _, err := s.serviceTypes.List(ctx, true, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: list service types: %w", ErrStoreUnavailable, err)
	}
	return types, nil
}

func (s *SchedulingService) validateBooking(ctx context.Context, req BookingRequest) (calendar.TimeRange, time.Duration, error) {
	day, err := parseDay(req.Date)
	if err != nil {
		return calendar.TimeRange{}, 0, err
	}
	duration, err := s.serviceDuration(ctx, req.ServiceDurationMinutes, req.ServiceType)
	if err != nil {
		return calendar.TimeRange{}, 0, err
	}
	if err := validateLocation(req.Location); err != nil {
		return calendar.TimeRange{}, 0, err
	}

	startClock, err := calendar.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		return calendar.TimeRange{}, 0, fmt.Errorf("%w: start time: %v", ErrInvalidParameters, err)
	}
	start := calendar.At(day, startClock)
	end := start.Add(duration)

	if req.EndTime != "" {
		endClock, err := calendar.ParseClock(strings.TrimSpace(req.EndTime))
		if err != nil {
			return calendar.TimeRange{}, 0, fmt.Errorf("%w: end time: %v", ErrInvalidParameters, err)
		}
		if !calendar.At(day, endClock).Equal(end) {
			return calendar.TimeRange{}, 0, fmt.Errorf("%w: end time must be start time plus %d minutes",
				ErrInvalidParameters, int(duration/time.Minute))
		}
	}
	if end.After(calendar.At(day, 24*time.Hour)) {
		return calendar.TimeRange{}, 0, fmt.Errorf("%w: booking must end on the same day", ErrInvalidParameters)
	}

	return calendar.TimeRange{Start: start, End: end}, duration, nil
}

// MaxServiceMinutes — услуга не длиннее суток.
const MaxServiceMinutes = 24 * 60

func (s *SchedulingService) serviceDuration(ctx context.Context, minutes int, serviceType string) (time.Duration, error) {
	if minutes > 0 {
		return durationFromMinutes(int64(minutes))
	}
	name := strings.TrimSpace(serviceType)
	if minutes == 0 && name != "" {
		st, err := s.serviceTypes.GetByName(ctx, name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: unknown service type %q", ErrInvalidParameters, name)
		}
		if err != nil {
			return 0, fmt.Errorf("%w: service type: %w", ErrStoreUnavailable, err)
		}
		if st.DurationMin > 0 {
			return durationFromMinutes(st.DurationMin)
		}
	}
	return 0, fmt.Errorf("%w: service duration must be positive", ErrInvalidParameters)
}

// durationFromMinutes проверяет границу до умножения, иначе int64 переполняется.
func durationFromMinutes(minutes int64) (time.Duration, error) {
	if minutes <= 0 || minutes > MaxServiceMinutes {
		return 0, fmt.Errorf("%w: service duration must be between 1 and %d minutes", ErrInvalidParameters, MaxServiceMinutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (s *SchedulingService) resolve(ctx context.Context, loc Location, available *bool) (matching.Result, error) {
	res, err := s.resolver.Resolve(ctx, matching.Query{
		Country:   loc.Country,
		City:      loc.City,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Available: available,
	})
	if err != nil {
		return matching.Result{}, fmt.Errorf("%w: resolve detailers: %w", ErrStoreUnavailable, err)
	}
	if len(res.Detailers) == 0 {
		return matching.Result{}, ErrNoEligibleWorkers
	}
	return res, nil
}

// loadCandidates собирает календарь каждого исполнителя на дату:
//   - нет окон на дату: рабочие часы по умолчанию;
//   - есть окна: только доступные (все недоступные = выходной);
//   - живые заказы этого дня.
//
// Порядок исполнителей сохраняется.
func (s *SchedulingService) loadCandidates(ctx context.Context, detailers []model.Detailer, day time.Time) ([]booking.Candidate, error) {
	ids := make([]uuid.UUID, 0, len(detailers))
	for _, d := range detailers {
		ids = append(ids, d.ID)
	}

	windows, err := s.availability.ListByDetailersAndDate(ctx, ids, day)
	if err != nil {
		return nil, fmt.Errorf("%w: availability: %w", ErrStoreUnavailable, err)
	}
	jobs, err := s.jobs.ListLiveByDetailersAndDate(ctx, ids, day)
	if err != nil {
		return nil, fmt.Errorf("%w: live jobs: %w", ErrStoreUnavailable, err)
	}

	explicit := make(map[uuid.UUID][]calendar.TimeRange)
	hasRows := make(map[uuid.UUID]bool)
	for i := range windows {
		w := &windows[i]
		hasRows[w.DetailerID] = true
		if !w.IsAvailable {
			continue
		}
		tr := w.Window(day)
		if !tr.End.After(tr.Start) {
			continue
		}
		explicit[w.DetailerID] = append(explicit[w.DetailerID], tr)
	}

	booked := make(map[uuid.UUID][]calendar.TimeRange)
	for i := range jobs {
		booked[jobs[i].DetailerID] = append(booked[jobs[i].DetailerID], jobs[i].Interval())
	}

	defaultHours := []calendar.TimeRange{{Start: calendar.At(day, s.dayStart), End: calendar.At(day, s.dayEnd)}}

	out := make([]booking.Candidate, 0, len(detailers))
	for _, d := range detailers {
		win := defaultHours
		if hasRows[d.ID] {
			win = explicit[d.ID]
		}
		out = append(out, booking.Candidate{
			Detailer: d,
			Calendar: calendar.DayCalendar{Windows: win, Bookings: booked[d.ID]},
		})
	}
	return out, nil
}

func (s *SchedulingService) replay(ctx context.Context, reference string) (*BookingResult, bool, error) {
	jobs, err := s.jobs.ListByReference(ctx, reference)
	if err != nil {
		return nil, false, fmt.Errorf("%w: booking reference: %w", ErrStoreUnavailable, err)
	}
	if len(jobs) == 0 {
		return nil, false, nil
	}

	primary := jobs[0]
	iv := primary.Interval()
	res := &BookingResult{
		BookingID:         primary.BookingID,
		PrimaryDetailerID: primary.DetailerID,
		PrimaryJobID:      primary.ID,
		Start:             iv.Start,
		End:               iv.End,
		Replayed:          true,
	}
	for _, j := range jobs[1:] {
		if j.Role == model.JobRoleSecondary {
			id := j.DetailerID
			res.SecondaryDetailerID = &id
		}
	}
	return res, true, nil
}

func (s *SchedulingService) newJob(
	req BookingRequest,
	bookingID uuid.UUID,
	reference string,
	detailerID uuid.UUID,
	role model.JobRole,
	slot calendar.TimeRange,
	duration time.Duration,
) *model.Job {
	j := &model.Job{
		ID:              uuid.New(),
		BookingID:       bookingID,
		DetailerID:      detailerID,
		Role:            role,
		AppointmentDate: datatypes.Date(calendar.At(slot.Start, 0)),
		AppointmentTime: datatypes.Time(slot.Start.Sub(calendar.At(slot.Start, 0))),
		DurationMin:     int(duration / time.Minute),
		ServiceType:     strings.TrimSpace(req.ServiceType),
		IsExpress:       req.IsExpress,
		Status:          model.JobStatusPending,
		Country:         strings.TrimSpace(req.Location.Country),
		City:            strings.TrimSpace(req.Location.City),
		Latitude:        req.Location.Latitude,
		Longitude:       req.Location.Longitude,
	}
	if reference != "" {
		j.BookingReference = &reference
	}
	if len(req.Metadata) > 0 {
		j.Metadata = datatypes.JSONMap(req.Metadata)
	}
	return j
}

// Событие уходит после коммита, ошибка публикации бронь не отменяет.
func (s *SchedulingService) publish(ctx context.Context, e events.JobEvent) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish job event failed",
			zap.String("type", e.Type),
			zap.String("job_id", e.JobID),
			zap.Error(err),
		)
	}
}

func bookingEvent(j *model.Job) events.JobEvent {
	iv := j.Interval()
	return events.JobEvent{
		Type:            events.TypeBookingCreated,
		BookingID:       j.BookingID.String(),
		JobID:           j.ID.String(),
		DetailerID:      j.DetailerID.String(),
		Role:            string(j.Role),
		Status:          string(j.Status),
		AppointmentDate: iv.Start.Format(calendar.DateLayout),
		AppointmentTime: calendar.FormatClock(iv.Start),
		DurationMin:     j.DurationMin,
		IsExpress:       j.IsExpress,
		Label:           calendar.FormatAppointment(iv.Start),
		OccurredAt:      time.Now(),
	}
}

func anyCovers(candidates []booking.Candidate, slot calendar.TimeRange) bool {
	for _, c := range candidates {
		if calendar.Covers(c.Calendar.Windows, slot) {
			return true
		}
	}
	return false
}

func parseDay(s string) (time.Time, error) {
	day, err := calendar.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return day, nil
}

func validateLocation(loc Location) error {
	if strings.TrimSpace(loc.Country) == "" || strings.TrimSpace(loc.City) == "" {
		return fmt.Errorf("%w: country and city are required", ErrInvalidParameters)
	}
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be given together", ErrInvalidParameters)
	}
	if loc.Latitude != nil && (!finite(*loc.Latitude) || !finite(*loc.Longitude)) {
		return fmt.Errorf("%w: coordinates must be finite numbers", ErrInvalidParameters)
	}
	if loc.Latitude != nil && (*loc.Latitude < -90 || *loc.Latitude > 90 || *loc.Longitude < -180 || *loc.Longitude > 180) {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidParameters)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func ptr[T any](v T) *T { return &v }
