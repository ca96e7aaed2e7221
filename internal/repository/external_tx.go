package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

func (r *Repository) GetExternalTxByProviderID(ctx context.Context, providerTxID string) (*models.ExternalTransaction, error) {
	var et models.ExternalTransaction
	err := r.db.WithContext(ctx).First(&et, "provider_tx_id = ?", providerTxID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external transaction: %w", err)
	}
	return &et, nil
}

// CreateExternalTx inserts the record; a duplicate provider_tx_id surfaces as
// gorm.ErrDuplicatedKey for the caller to recover from.
func (r *Repository) CreateExternalTx(ctx context.Context, et *models.ExternalTransaction, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(et).Error
}

// MarkExternalTxMinted flips RECEIVED to MINTED. The status guard in the
// WHERE clause makes the flip happen at most once.
func (r *Repository) MarkExternalTxMinted(ctx context.Context, id string, tx *gorm.DB) error {
	res := r.handle(tx).WithContext(ctx).
		Model(&models.ExternalTransaction{}).
		Where("id = ? AND status = ?", id, models.ExternalTxReceived).
		Update("status", models.ExternalTxMinted)
	if res.Error != nil {
		return fmt.Errorf("failed to mark external transaction minted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("external transaction %s not in RECEIVED state", id)
	}
	return nil
}

func (r *Repository) ListExternalTxs(ctx context.Context, limit int) ([]models.ExternalTransaction, error) {
	var txs []models.ExternalTransaction
	err := r.db.WithContext(ctx).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list external transactions: %w", err)
	}
	return txs, nil
}
