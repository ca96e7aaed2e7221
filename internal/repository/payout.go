package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// GetPayoutJobByEventForUpdate locks the payout row for the duration of the
// transaction so concurrent attempts at the same payout serialize.
func (r *Repository) GetPayoutJobByEventForUpdate(ctx context.Context, eventID string, tx *gorm.DB) (*models.PayoutJob, error) {
	var job models.PayoutJob
	err := forUpdate(r.handle(tx).WithContext(ctx)).
		First(&job, "onchain_event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payout job: %w", err)
	}
	return &job, nil
}

func (r *Repository) CreatePayoutJob(ctx context.Context, job *models.PayoutJob, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(job).Error
}

func (r *Repository) UpdatePayoutJob(ctx context.Context, job *models.PayoutJob, tx *gorm.DB) error {
	if err := r.handle(tx).WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("failed to update payout job: %w", err)
	}
	return nil
}
