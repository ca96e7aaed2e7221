package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/metrics"
	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// Redeem burns the requested units and debits the PKR equivalent from the
// user's wallet account. The burn runs before the transaction opens and the
// fiat debit after it commits; no collaborator call holds a database
// transaction. Job record, balance decrement and ledger pair commit as one
// atomic unit under the balance row lock.
func (s *Service) Redeem(ctx context.Context, user *models.User, amountUnits int64, memo, idempotencyKey string) (*models.ChainJob, error) {
	if amountUnits <= 0 {
		return nil, ErrAmountNotPositive
	}

	if idempotencyKey != "" {
		existing, err := s.repo.GetChainJobByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	// Unlocked pre-check so a short balance never reaches the chain. The
	// authoritative check repeats under the row lock below.
	tb, err := s.repo.GetTokenBalance(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if tb == nil {
		return nil, fmt.Errorf("token balance missing for user %s", user.ID)
	}
	if tb.BalanceUnits < amountUnits {
		return nil, ErrInsufficientBalance
	}

	wa, err := s.repo.GetWalletAccountByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if wa == nil {
		return nil, fmt.Errorf("wallet account missing for user %s", user.ID)
	}

	receipt, err := s.chain.Burn(ctx, user.ID, amountUnits, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("chain burn failed: %w", err)
	}

	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	tb, err = s.repo.GetTokenBalanceForUpdate(ctx, user.ID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if tb == nil {
		s.repo.Rollback(tx)
		return nil, fmt.Errorf("token balance missing for user %s", user.ID)
	}
	if tb.BalanceUnits < amountUnits {
		// A concurrent redeem took the balance after our burn went out. The
		// already-burned units are not compensated here (known MVP gap).
		s.repo.Rollback(tx)
		return nil, ErrInsufficientBalance
	}

	job := &models.ChainJob{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		JobType:        models.JobTypeBurn,
		AmountUnits:    amountUnits,
		TxHash:         receipt.TxHash,
		Status:         receipt.Status,
		IdempotencyKey: optionalKey(idempotencyKey),
	}
	if err := s.repo.CreateChainJob(ctx, job, tx); err != nil {
		s.repo.Rollback(tx)
		if errors.Is(err, gorm.ErrDuplicatedKey) && idempotencyKey != "" {
			winner, ferr := s.repo.GetChainJobByIdempotencyKey(ctx, idempotencyKey)
			if ferr != nil {
				return nil, ferr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("chain job create failed: %w", err)
	}

	if err := s.repo.UpdateTokenBalanceUnits(ctx, tb.ID, tb.BalanceUnits-amountUnits, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.CreateLedgerPair(ctx, ledgerPair(job), tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.Commit(tx); err != nil {
		return nil, err
	}

	if memo == "" {
		memo = "redeem"
	}
	amountPKR := s.conv.ToFiat(amountUnits)
	if _, err := s.wallet.Debit(ctx, wa.ProviderAcct, amountPKR, memo); err != nil {
		// Token side is committed and auditable via the ledger; the unpaid
		// debit needs an operational retry.
		return job, fmt.Errorf("wallet debit failed: %w", err)
	}

	metrics.BurnsTotal.Inc()
	s.logger.Infof("redeemed %d units for user %s (%s PKR)", amountUnits, user.ID, amountPKR.StringFixed(2))
	return job, nil
}
