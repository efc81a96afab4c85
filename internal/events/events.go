// Package events публикует события заказов для внешнего конвейера уведомлений.
package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	TypeBookingCreated   = "booking_created"
	TypeJobStatusChanged = "job_status_changed"
)

// JobEvent — запись в поток событий. Все поля уходят строками.
type JobEvent struct {
	Type            string
	BookingID       string
	JobID           string
	DetailerID      string
	Role            string
	Status          string
	PreviousStatus  string
	AppointmentDate string
	AppointmentTime string
	DurationMin     int
	IsExpress       bool
	Label           string
	OccurredAt      time.Time
}

// Fields разворачивает событие в плоские строковые поля для XADD.
// Пустые поля не пишутся.
func (e JobEvent) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"event_type":   e.Type,
		"job_id":       e.JobID,
		"is_express":   strconv.FormatBool(e.IsExpress),
		"duration_min": strconv.Itoa(e.DurationMin),
		"timestamp":    e.OccurredAt.UTC().Format(time.RFC3339),
	}
	optional := map[string]string{
		"booking_id":       e.BookingID,
		"detailer_id":      e.DetailerID,
		"role":             e.Role,
		"status":           e.Status,
		"previous_status":  e.PreviousStatus,
		"appointment_date": e.AppointmentDate,
		"appointment_time": e.AppointmentTime,
		"label":            e.Label,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

type Publisher interface {
	Publish(ctx context.Context, e JobEvent) error
}

// RedisStreamPublisher пишет события в redis stream с ограничением длины.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	log    *zap.Logger
}

func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64, log *zap.Logger) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen, log: log}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, e JobEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: e.Fields(),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.log.Debug("job event published",
		zap.String("stream", p.stream),
		zap.String("id", id),
		zap.String("type", e.Type),
		zap.String("job_id", e.JobID),
	)
	return nil
}

// NopPublisher — redis не настроен.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, JobEvent) error { return nil }

// Recorder запоминает события в памяти. Используется в тестах.
type Recorder struct {
	mu     sync.Mutex
	events []JobEvent
}

func (r *Recorder) Publish(_ context.Context, e JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JobEvent(nil), r.events...)
}
