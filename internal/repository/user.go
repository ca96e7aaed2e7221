package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(user).Error
}

func (r *Repository) GetWalletAccountByUser(ctx context.Context, userID string) (*models.WalletAccount, error) {
	var wa models.WalletAccount
	err := r.db.WithContext(ctx).First(&wa, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet account: %w", err)
	}
	return &wa, nil
}

func (r *Repository) CreateWalletAccount(ctx context.Context, wa *models.WalletAccount, tx *gorm.DB) error {
	return r.handle(tx).WithContext(ctx).Create(wa).Error
}
