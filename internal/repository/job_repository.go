package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/detailer-scheduling/internal/calendar"
	"github.com/Leganyst/detailer-scheduling/internal/model"
)

var (
	// ErrSlotTaken — на момент записи интервал уже занят другим заказом.
	ErrSlotTaken = errors.New("slot is no longer available")
	// ErrInvalidTransition — переход статуса запрещён.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type JobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error)
	// Все назначения брони по ключу идемпотентности, основной первым.
	ListByReference(ctx context.Context, reference string) ([]model.Job, error)
	// Живые заказы исполнителей на дату.
	ListLiveByDetailersAndDate(ctx context.Context, detailerIDs []uuid.UUID, date time.Time) ([]model.Job, error)
	// CreateBooking перепроверяет пересечения и создаёт заказы одной транзакцией.
	CreateBooking(ctx context.Context, jobs []*model.Job, buffer time.Duration) ([]*model.Job, error)
	// Transition меняет статус заказа по машине состояний.
	Transition(ctx context.Context, id uuid.UUID, next model.JobStatus) (*model.Job, model.JobStatus, error)
}

// Реализация на GORM.
type GormJobRepository struct {
	db *gorm.DB
}

func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

func (r *GormJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *GormJobRepository) ListByReference(ctx context.Context, reference string) ([]model.Job, error) {
	var jobs []model.Job
	err := r.db.WithContext(ctx).
		Where("booking_reference = ?", reference).
		Order("role ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *GormJobRepository) ListLiveByDetailersAndDate(
	ctx context.Context,
	detailerIDs []uuid.UUID,
	date time.Time,
) ([]model.Job, error) {
	return liveJobs(r.db.WithContext(ctx), detailerIDs, date)
}

func liveJobs(db *gorm.DB, detailerIDs []uuid.UUID, date time.Time) ([]model.Job, error) {
	if len(detailerIDs) == 0 {
		return []model.Job{}, nil
	}
	var jobs []model.Job
	err := db.
		Where("detailer_id IN ?", detailerIDs).
		Where("appointment_date = ?", datatypes.Date(date)).
		Where("status IN ?", model.LiveStatuses).
		Order("appointment_time ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateBooking:
//   - блокирует строки исполнителей (SELECT ... FOR UPDATE), чтобы параллельные
//     записи к тем же исполнителям шли по очереди;
//   - заново читает их живые заказы на дату и проверяет пересечение с буфером;
//   - jobs[0] — основной: при конфликте вся запись отменяется с ErrSlotTaken;
//   - остальные (второй исполнитель экспресса) при конфликте просто отбрасываются;
//   - пишет заказы и событие аудита.
//
// Все jobs должны быть на одну дату и время. Возвращает реально созданные заказы.
func (r *GormJobRepository) CreateBooking(
	ctx context.Context,
	jobs []*model.Job,
	buffer time.Duration,
) ([]*model.Job, error) {
	if len(jobs) == 0 {
		return nil, errors.New("create booking: no jobs")
	}

	// на postgres запись идёт в serializable, ошибка сериализации = проигранная гонка
	var txOpts []*sql.TxOptions
	if r.db.Dialector.Name() == "postgres" {
		txOpts = append(txOpts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	var created []*model.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created = created[:0]

		ids := make([]uuid.UUID, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.DetailerID)
		}
		lockOrder := slices.Clone(ids)
		slices.SortFunc(lockOrder, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

		// sqlite FOR UPDATE игнорирует, там запись сериализует сама база и Locker сервиса.
		var locked []model.Detailer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", lockOrder).
			Order("id ASC").
			Find(&locked).Error; err != nil {
			return err
		}

		primary := jobs[0]
		existing, err := liveJobs(tx, ids, time.Time(primary.AppointmentDate))
		if err != nil {
			return err
		}
		byDetailer := make(map[uuid.UUID][]calendar.TimeRange)
		for i := range existing {
			byDetailer[existing[i].DetailerID] = append(byDetailer[existing[i].DetailerID], existing[i].Interval())
		}

		for i, j := range jobs {
			if calendar.Conflicts(j.Interval(), byDetailer[j.DetailerID], buffer) {
				if i == 0 {
					return ErrSlotTaken
				}
				continue
			}
			created = append(created, j)
		}

		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		details, err := json.Marshal(bookingDetails(created))
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		bookingID := primary.BookingID
		return tx.Create(&model.Event{
			EventType: model.EventTypeBookingCreated,
			BookingID: &bookingID,
			JobID:     &primary.ID,
			Details:   string(details),
		}).Error
	}, txOpts...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

// Transition возвращает обновлённый заказ и его предыдущий статус.
func (r *GormJobRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	next model.JobStatus,
) (*model.Job, model.JobStatus, error) {
	var (
		job  model.Job
		prev model.JobStatus
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, "id = ?", id).Error; err != nil {
			return err
		}
		prev = job.Status
		if !prev.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
		}

		update := map[string]any{"status": next}
		if next == model.JobStatusCancelled {
			now := tx.NowFunc()
			update["cancelled_at"] = now
			job.CancelledAt = &now
		}
		if err := tx.Model(&model.Job{}).Where("id = ?", id).Updates(update).Error; err != nil {
			return err
		}
		job.Status = next

		details, err := json.Marshal(map[string]string{"from": string(prev), "to": string(next)})
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		return tx.Create(&model.Event{
			EventType: model.EventTypeJobStatusChanged,
			BookingID: &job.BookingID,
			JobID:     &job.ID,
			Details:   string(details),
		}).Error
	})
	if err != nil {
		// prev нужен вызывающему для текста ошибки перехода
		return nil, prev, err
	}
	return &job, prev, nil
}

type bookingDetail struct {
	JobID      string `json:"job_id"`
	DetailerID string `json:"detailer_id"`
	Role       string `json:"role"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

func bookingDetails(jobs []*model.Job) []bookingDetail {
	out := make([]bookingDetail, 0, len(jobs))
	for _, j := range jobs {
		iv := j.Interval()
		out = append(out, bookingDetail{
			JobID:      j.ID.String(),
			DetailerID: j.DetailerID.String(),
			Role:       string(j.Role),
			Start:      iv.Start.Format(time.RFC3339),
			End:        iv.End.Format(time.RFC3339),
		})
	}
	return out
}

// mapWriteError сводит проигранную гонку к ErrSlotTaken:
// уникальный индекс живых заказов или ошибка сериализации postgres.
func mapWriteError(err error) error {
	if errors.Is(err, ErrSlotTaken) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrSlotTaken
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ErrSlotTaken
		}
	}
	return err
}
