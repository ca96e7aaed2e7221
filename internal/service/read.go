package service

import (
	"context"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// DemoUser returns the seeded demo identity.
func (s *Service) DemoUser(ctx context.Context) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, s.cfg.DemoUserEmail)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	return user, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	return s.repo.GetTokenBalance(ctx, userID)
}

func (s *Service) RecentLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, limit)
}

func (s *Service) RecentExternalTxs(ctx context.Context, limit int) ([]models.ExternalTransaction, error) {
	return s.repo.ListExternalTxs(ctx, limit)
}

type Summary struct {
	MintedUnits  int64 `json:"mints_units"`
	BurnedUnits  int64 `json:"burns_units"`
	NetUnits     int64 `json:"net_units"`
	CachedUnits  int64 `json:"token_balance_units"`
	OnchainUnits int64 `json:"chain_balance_units"`
	Match        bool  `json:"match"`
}

// DebugSummary cross-checks the job aggregates against the cached balance and
// the chain collaborator. net_units must equal token_balance_units whenever
// the system is consistent.
func (s *Service) DebugSummary(ctx context.Context) (*Summary, error) {
	user, err := s.DemoUser(ctx)
	if err != nil {
		return nil, err
	}

	minted, err := s.repo.SumChainJobUnits(ctx, models.JobTypeMint)
	if err != nil {
		return nil, err
	}
	burned, err := s.repo.SumChainJobUnits(ctx, models.JobTypeBurn)
	if err != nil {
		return nil, err
	}

	var cached int64
	if tb, err := s.repo.GetTokenBalance(ctx, user.ID); err != nil {
		return nil, err
	} else if tb != nil {
		cached = tb.BalanceUnits
	}

	onchain, err := s.chain.GetBalance(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	net := minted - burned
	return &Summary{
		MintedUnits:  minted,
		BurnedUnits:  burned,
		NetUnits:     net,
		CachedUnits:  cached,
		OnchainUnits: onchain,
		Match:        net == cached && cached == onchain,
	}, nil
}
