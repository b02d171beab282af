package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

type SyncEventRepository interface {
	// Записать событие журнала.
	Create(ctx context.Context, event *model.SyncEvent) error
	// События области видимости, новые сверху, с пагинацией.
	ListByScope(ctx context.Context, scope string, limit, offset int) ([]model.SyncEvent, int64, error)
}

type GormSyncEventRepository struct {
	db *gorm.DB
}

func NewGormSyncEventRepository(db *gorm.DB) *GormSyncEventRepository {
	return &GormSyncEventRepository{db: db}
}

func (r *GormSyncEventRepository) Create(ctx context.Context, event *model.SyncEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *GormSyncEventRepository) ListByScope(
	ctx context.Context,
	scope string,
	limit, offset int,
) ([]model.SyncEvent, int64, error) {
	var (
		events []model.SyncEvent
		total  int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.SyncEvent{}).
		Where("scope = ?", scope)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
