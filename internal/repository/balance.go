package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

func (r *Repository) GetTokenBalance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	var tb models.TokenBalance
	err := r.db.WithContext(ctx).First(&tb, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	return &tb, nil
}

// GetTokenBalanceForUpdate locks the user's balance row for the remainder of
// the transaction. Callers must hold the lock across the read-modify-write.
func (r *Repository) GetTokenBalanceForUpdate(ctx context.Context, userID string, tx *gorm.DB) (*models.TokenBalance, error) {
	var tb models.TokenBalance
	err := forUpdate(r.handle(tx).WithContext(ctx)).First(&tb, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock token balance: %w", err)
	}
	return &tb, nil
}

func (r *Repository) CreateTokenBalance(ctx context.Context, tb *models.TokenBalance, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(tb).Error
}

func (r *Repository) UpdateTokenBalanceUnits(ctx context.Context, id string, units int64, tx *gorm.DB) error {
	res := r.handle(tx).WithContext(ctx).
		Model(&models.TokenBalance{}).
		Where("id = ?", id).
		Update("balance_units", units)
	if res.Error != nil {
		return fmt.Errorf("failed to update token balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("token balance %s not found for update", id)
	}
	return nil
}
