package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/models"
)

type IngestResult struct {
	Ingested int `json:"ingested"`
	Minted   int `json:"minted"`
}

// IngestSince pulls provider transactions since the given time, records the
// ones not seen before and auto-mints credits. Idempotent across overlapping
// windows: the unique provider_tx_id keeps a transaction from being ingested
// or minted twice.
func (s *Service) IngestSince(ctx context.Context, since time.Time) (*IngestResult, error) {
	user, wa, err := s.SeedDemoUser(ctx)
	if err != nil {
		return nil, err
	}

	txs, err := s.wallet.ListTransactions(ctx, wa.ProviderAcct, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider transactions: %w", err)
	}

	result := &IngestResult{}
	for _, t := range txs {
		existing, err := s.repo.GetExternalTxByProviderID(ctx, t.ProviderTxID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		et := &models.ExternalTransaction{
			ID:           uuid.NewString(),
			WalletAcctID: wa.ID,
			ProviderTxID: t.ProviderTxID,
			Direction:    t.Direction,
			AmountPKR:    t.AmountPKR,
			Memo:         t.Memo,
			Status:       models.ExternalTxReceived,
			OccurredAt:   t.OccurredAt,
		}
		if t.Direction != models.DirectionCredit {
			et.Status = models.ExternalTxIgnored
		}

		if err := s.repo.CreateExternalTx(ctx, et, nil); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, err
		}
		result.Ingested++

		if et.Status != models.ExternalTxReceived {
			continue
		}
		if _, err := s.MintFromExternalTx(ctx, user, et, "bank:"+et.ProviderTxID); err != nil {
			if errors.Is(err, ErrAmountNotPositive) {
				s.logger.Warnf("skipping mint for %s: %v", et.ProviderTxID, err)
				continue
			}
			return nil, err
		}
		result.Minted++
	}
	return result, nil
}
