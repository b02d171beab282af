package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

var ErrQueuedNotFound = errors.New("queued booking not found")

// QueueRepository — долговременное хранилище локальной очереди одного неймспейса.
type QueueRepository interface {
	// Добавить запись в конец очереди.
	Insert(ctx context.Context, rec model.BookingRecord) error
	// Перезаписать запись по её QueueID (порядок в очереди не меняется).
	Update(ctx context.Context, rec model.BookingRecord) error
	// Все записи в порядке вставки. Битые записи не прерывают чтение:
	// они возвращаются вторым значением.
	List(ctx context.Context) ([]model.BookingRecord, []error, error)
	// Пометить запись отправленной: origin=local-synced, ID от бэкенда.
	MarkSynced(ctx context.Context, queueID, assignedID string, at time.Time) error
	// Удалить запись из очереди.
	Delete(ctx context.Context, queueID string) error
}

// Реализация на GORM.
type GormQueueRepository struct {
	db        *gorm.DB
	namespace string
}

func NewGormQueueRepository(db *gorm.DB, namespace string) *GormQueueRepository {
	if namespace == "" {
		namespace = model.DefaultQueueNamespace
	}
	return &GormQueueRepository{db: db, namespace: namespace}
}

func (r *GormQueueRepository) Insert(ctx context.Context, rec model.BookingRecord) error {
	row, err := model.NewQueuedBooking(r.namespace, rec)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert queued booking %s: %w", row.QueueID, err)
	}
	return nil
}

func (r *GormQueueRepository) Update(ctx context.Context, rec model.BookingRecord) error {
	row, err := model.NewQueuedBooking(r.namespace, rec)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&model.QueuedBooking{}).
		Where("namespace = ? AND queue_id = ?", r.namespace, row.QueueID).
		Updates(map[string]any{
			"reference":   row.Reference,
			"customer_id": row.CustomerID,
			"origin":      row.Origin,
			"assigned_id": row.AssignedID,
			"payload":     row.Payload,
			"updated_at":  row.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update queued booking %s: %w", row.QueueID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQueuedNotFound
	}
	return nil
}

func (r *GormQueueRepository) List(ctx context.Context) ([]model.BookingRecord, []error, error) {
	var rows []model.QueuedBooking
	if err := r.db.WithContext(ctx).
		Where("namespace = ?", r.namespace).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("list queued bookings: %w", err)
	}

	var (
		records = make([]model.BookingRecord, 0, len(rows))
		corrupt []error
	)
	for i := range rows {
		rec, err := rows[i].Record()
		if err != nil {
			corrupt = append(corrupt, err)
			continue
		}
		records = append(records, rec)
	}
	return records, corrupt, nil
}

func (r *GormQueueRepository) MarkSynced(ctx context.Context, queueID, assignedID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.QueuedBooking
		if err := tx.First(&row, "namespace = ? AND queue_id = ?", r.namespace, queueID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueuedNotFound
			}
			return fmt.Errorf("load queued booking %s: %w", queueID, err)
		}

		rec, err := row.Record()
		if err != nil {
			return err
		}
		rec.Origin = model.OriginLocalSynced
		rec.ID = assignedID
		rec.UpdatedAt = at

		updated, err := model.NewQueuedBooking(r.namespace, rec)
		if err != nil {
			return err
		}
		return tx.Model(&model.QueuedBooking{}).
			Where("seq = ?", row.Seq).
			Updates(map[string]any{
				"origin":      updated.Origin,
				"assigned_id": updated.AssignedID,
				"payload":     updated.Payload,
				"updated_at":  updated.UpdatedAt,
			}).Error
	})
}

func (r *GormQueueRepository) Delete(ctx context.Context, queueID string) error {
	return r.db.WithContext(ctx).
		Delete(&model.QueuedBooking{}, "namespace = ? AND queue_id = ?", r.namespace, queueID).
		Error
}
