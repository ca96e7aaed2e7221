package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// CreateOnchainEvent inserts the event. A duplicate (tx_id, event_index)
// surfaces as gorm.ErrDuplicatedKey, which the gateway treats as "already
// processed", not as a failure.
func (r *Repository) CreateOnchainEvent(ctx context.Context, ev *models.OnchainEvent, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(ev).Error
}

func (r *Repository) GetOnchainEvent(ctx context.Context, txID string, eventIndex int) (*models.OnchainEvent, error) {
	var ev models.OnchainEvent
	err := r.db.WithContext(ctx).
		First(&ev, "tx_id = ? AND event_index = ?", txID, eventIndex).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get onchain event: %w", err)
	}
	return &ev, nil
}

// MarkOnchainEventConsumed stamps consumed_at once; later payout retries must
// not move it.
func (r *Repository) MarkOnchainEventConsumed(ctx context.Context, id string, at time.Time, tx *gorm.DB) error {
	res := r.handle(tx).WithContext(ctx).
		Model(&models.OnchainEvent{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to mark onchain event consumed: %w", res.Error)
	}
	return nil
}
