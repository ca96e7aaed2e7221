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

var (
	// ErrAlreadyMinted rejects operational mint calls for transactions that
	// already produced a mint; webhook replays take the idempotent path at
	// the gateway instead.
	ErrAlreadyMinted = errors.New("transaction already minted")

	// ErrNotMintable covers debits and ignored transactions.
	ErrNotMintable = errors.New("transaction is not a mintable credit")
)

// MintByProviderTxID resolves an already-ingested provider transaction and
// mints it for the demo identity.
func (s *Service) MintByProviderTxID(ctx context.Context, providerTxID, idempotencyKey string) (*models.ChainJob, error) {
	et, err := s.repo.GetExternalTxByProviderID(ctx, providerTxID)
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, ErrUnknownTransaction
	}
	switch et.Status {
	case models.ExternalTxMinted:
		return nil, ErrAlreadyMinted
	case models.ExternalTxIgnored:
		return nil, ErrNotMintable
	}
	if et.Direction != models.DirectionCredit {
		return nil, ErrNotMintable
	}

	user, _, err := s.SeedDemoUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.MintFromExternalTx(ctx, user, et, idempotencyKey)
}

// MintFromExternalTx converts a credited PKR amount into token units, mints
// on chain, and records the job, balance bump, ledger pair and status flip as
// one atomic unit.
//
// The chain call happens before any row is written: a failure before it has
// no side effects, while a failure after it is returned to the caller rather
// than compensated (known MVP gap).
func (s *Service) MintFromExternalTx(ctx context.Context, user *models.User, et *models.ExternalTransaction, idempotencyKey string) (*models.ChainJob, error) {
	if idempotencyKey != "" {
		existing, err := s.repo.GetChainJobByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	amountUnits := s.conv.ToUnits(et.AmountPKR)
	if amountUnits <= 0 {
		return nil, ErrAmountNotPositive
	}

	receipt, err := s.chain.Mint(ctx, user.ID, amountUnits, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("chain mint failed: %w", err)
	}

	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	job := &models.ChainJob{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		JobType:         models.JobTypeMint,
		AmountUnits:     amountUnits,
		RefExternalTxID: &et.ID,
		TxHash:          receipt.TxHash,
		Status:          receipt.Status,
		IdempotencyKey:  optionalKey(idempotencyKey),
	}
	if err := s.repo.CreateChainJob(ctx, job, tx); err != nil {
		s.repo.Rollback(tx)
		if errors.Is(err, gorm.ErrDuplicatedKey) && idempotencyKey != "" {
			// Lost the key race: the winner's row is the answer.
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

	tb, err := s.repo.GetTokenBalanceForUpdate(ctx, user.ID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if tb == nil {
		s.repo.Rollback(tx)
		return nil, fmt.Errorf("token balance missing for user %s", user.ID)
	}
	if err := s.repo.UpdateTokenBalanceUnits(ctx, tb.ID, tb.BalanceUnits+amountUnits, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.CreateLedgerPair(ctx, ledgerPair(job), tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.MarkExternalTxMinted(ctx, et.ID, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.Commit(tx); err != nil {
		return nil, err
	}

	metrics.MintsTotal.Inc()
	s.logger.Infof("minted %d units for user %s from %s", amountUnits, user.ID, et.ProviderTxID)
	return job, nil
}

// ledgerPair builds the balanced double-entry pair for a job: issuer credit
// with user debit for a mint, the mirror for a burn.
func ledgerPair(job *models.ChainJob) []models.LedgerEntry {
	issuerSide, userSide := models.SideCredit, models.SideDebit
	if job.JobType == models.JobTypeBurn {
		issuerSide, userSide = models.SideDebit, models.SideCredit
	}
	userID := job.UserID
	return []models.LedgerEntry{
		{
			ID:          uuid.NewString(),
			Side:        issuerSide,
			Account:     models.AccountIssuerToken,
			AmountUnits: job.AmountUnits,
			RefType:     job.JobType,
			RefID:       job.ID,
		},
		{
			ID:          uuid.NewString(),
			UserID:      &userID,
			Side:        userSide,
			Account:     models.AccountUserToken,
			AmountUnits: job.AmountUnits,
			RefType:     job.JobType,
			RefID:       job.ID,
		},
	}
}

func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
