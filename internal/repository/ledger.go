package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// CreateLedgerPair writes both legs of a double-entry pair in one insert.
// There is no update or delete path for ledger entries.
func (r *Repository) CreateLedgerPair(ctx context.Context, entries []models.LedgerEntry, tx *gorm.DB) error {
	if len(entries) != 2 {
		return fmt.Errorf("ledger pair must have exactly 2 entries, got %d", len(entries))
	}
	if err := r.handle(tx).WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to write ledger pair: %w", err)
	}
	return nil
}

func (r *Repository) ListLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) ListLedgerEntriesByRef(ctx context.Context, refID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("ref_id = ?", refID).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries by ref: %w", err)
	}
	return entries, nil
}

// SumUserLedgerMovements returns the net of the user's user_token movements:
// debits minus credits, which must equal the cached balance.
func (r *Repository) SumUserLedgerMovements(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("user_id = ? AND account = ?", userID, models.AccountUserToken).
		Select(`COALESCE(SUM(CASE WHEN side = ? THEN amount_units ELSE -amount_units END),0)`, models.SideDebit).
		Scan(&sum).Error
	return sum, err
}
