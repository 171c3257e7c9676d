package repository

import (
	"context"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"gorm.io/gorm"
)

// AttemptRepository defines the data access contract for access-attempt
// records. The table is append-only; there are no update operations.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *model.AccessAttempt) error
	ListByLink(ctx context.Context, linkID string, from, to time.Time, limit, offset int) ([]model.AccessAttempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository returns a GORM-backed AttemptRepository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *model.AccessAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) ListByLink(ctx context.Context, linkID string, from, to time.Time, limit, offset int) ([]model.AccessAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := r.db.WithContext(ctx).Where("link_id = ?", linkID)
	if !from.IsZero() {
		q = q.Where("attempted_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("attempted_at <= ?", to)
	}

	var result []model.AccessAttempt
	if err := q.Order("attempted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
