package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

func (r *Repository) GetChainJobByIdempotencyKey(ctx context.Context, key string) (*models.ChainJob, error) {
	var job models.ChainJob
	err := r.db.WithContext(ctx).First(&job, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain job by idempotency key: %w", err)
	}
	return &job, nil
}

// CreateChainJob inserts the job. Losing the race on the idempotency key
// surfaces as gorm.ErrDuplicatedKey; the caller re-fetches the winner instead
// of treating it as a failure.
func (r *Repository) CreateChainJob(ctx context.Context, job *models.ChainJob, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(job).Error
}

func (r *Repository) SumChainJobUnits(ctx context.Context, jobType string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.ChainJob{}).
		Where("job_type = ?", jobType).
		Select("COALESCE(SUM(amount_units),0)").
		Scan(&sum).Error
	return sum, err
}
