package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// SeedDemoUser creates (or fetches) the demo identity, its wallet account and
// its zero token balance. Safe to call repeatedly.
func (s *Service) SeedDemoUser(ctx context.Context) (*models.User, *models.WalletAccount, error) {
	user, err := s.repo.GetUserByEmail(ctx, s.cfg.DemoUserEmail)
	if err != nil {
		return nil, nil, err
	}

	if user == nil {
		user = &models.User{
			ID:          uuid.NewString(),
			Email:       s.cfg.DemoUserEmail,
			DisplayName: "Demo User",
		}
		if err := s.repo.CreateUser(ctx, user, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to seed user: %w", err)
		}
	}

	wa, err := s.repo.GetWalletAccountByUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if wa == nil {
		wa = &models.WalletAccount{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			Provider:     "stub-wallet",
			ProviderAcct: s.cfg.WalletProviderAcct,
		}
		if err := s.repo.CreateWalletAccount(ctx, wa, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to seed wallet account: %w", err)
		}
	}

	tb, err := s.repo.GetTokenBalance(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if tb == nil {
		tb = &models.TokenBalance{ID: uuid.NewString(), UserID: user.ID}
		if err := s.repo.CreateTokenBalance(ctx, tb, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to seed token balance: %w", err)
		}
	}

	return user, wa, nil
}

// WalletCredit simulates an external PKR deposit at the wallet provider.
func (s *Service) WalletCredit(ctx context.Context, amount decimal.Decimal, memo string) (string, error) {
	if !amount.IsPositive() {
		return "", ErrAmountNotPositive
	}
	_, wa, err := s.SeedDemoUser(ctx)
	if err != nil {
		return "", err
	}
	return s.wallet.Credit(ctx, wa.ProviderAcct, amount, memo)
}
