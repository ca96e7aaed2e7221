package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/metrics"
	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// ProcessOnchainEvent turns a burn event into a fiat payout attempt in three
// phases: claim the attempt under a row lock and commit, call the wallet with
// no transaction held, then record the outcome under the lock again. An
// already-successful payout returns unchanged; a failed wallet debit is
// recorded as FAILED_RETRYABLE on the job, not returned as an error. Retries
// arrive via redelivery or direct re-invocation.
func (s *Service) ProcessOnchainEvent(ctx context.Context, ev *models.OnchainEvent) (*models.PayoutJob, error) {
	var job *models.PayoutJob
	// Two passes at most: the second runs when the create inside claimPayout
	// loses its uniqueness race and the winner's row has to be locked instead.
	for attempt := 0; attempt < 2; attempt++ {
		j, retry, err := s.claimPayout(ctx, ev)
		if retry {
			continue
		}
		if err != nil {
			return nil, err
		}
		job = j
		break
	}
	if job == nil {
		return nil, fmt.Errorf("payout job for event %s could not be acquired", ev.ID)
	}
	if job.Status == models.PayoutSuccess {
		return job, nil
	}

	wa, err := s.repo.GetWalletAccountByUser(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if wa == nil {
		return nil, fmt.Errorf("wallet account missing for user %s", ev.UserID)
	}

	ref, debitErr := s.wallet.Debit(ctx, wa.ProviderAcct, job.AmountPKR, "burn payout "+ev.TxID)
	return s.settlePayout(ctx, ev, ref, debitErr)
}

// claimPayout gets-or-creates the job one-to-one with the event and, unless
// it already succeeded, commits an attempt increment. The committed increment
// is what makes a crash during the wallet call visible in the audit trail.
func (s *Service) claimPayout(ctx context.Context, ev *models.OnchainEvent) (*models.PayoutJob, bool, error) {
	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, false, err
	}

	job, err := s.repo.GetPayoutJobByEventForUpdate(ctx, ev.ID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, false, err
	}

	if job == nil {
		job = &models.PayoutJob{
			ID:             uuid.NewString(),
			OnchainEventID: ev.ID,
			UserID:         ev.UserID,
			AmountPKR:      s.conv.ToFiat(ev.AmountUnits),
			Status:         models.PayoutPending,
		}
		if err := s.repo.CreatePayoutJob(ctx, job, tx); err != nil {
			s.repo.Rollback(tx)
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("payout job create failed: %w", err)
		}
	}

	if job.Status == models.PayoutSuccess {
		s.repo.Rollback(tx)
		return job, false, nil
	}

	job.Attempts++
	if err := s.repo.UpdatePayoutJob(ctx, job, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, false, err
	}
	if err := s.repo.Commit(tx); err != nil {
		return nil, false, err
	}
	return job, false, nil
}

func (s *Service) settlePayout(ctx context.Context, ev *models.OnchainEvent, ref string, debitErr error) (*models.PayoutJob, error) {
	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.GetPayoutJobByEventForUpdate(ctx, ev.ID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if job == nil {
		s.repo.Rollback(tx)
		return nil, fmt.Errorf("payout job for event %s vanished before settlement", ev.ID)
	}
	if job.Status == models.PayoutSuccess {
		s.repo.Rollback(tx)
		return job, nil
	}

	if debitErr != nil {
		job.Status = models.PayoutFailedRetryable
		job.LastError = debitErr.Error()
		if err := s.repo.UpdatePayoutJob(ctx, job, tx); err != nil {
			s.repo.Rollback(tx)
			return nil, err
		}
		if err := s.repo.Commit(tx); err != nil {
			return nil, err
		}
		metrics.PayoutAttemptsTotal.WithLabelValues("failed_retryable").Inc()
		s.logger.Warnf("payout for event %s failed (attempt %d): %v", ev.ID, job.Attempts, debitErr)
		return job, nil
	}

	job.Status = models.PayoutSuccess
	job.PayoutRef = ref
	job.LastError = ""
	if err := s.repo.UpdatePayoutJob(ctx, job, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if err := s.repo.MarkOnchainEventConsumed(ctx, ev.ID, time.Now().UTC(), tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if err := s.repo.Commit(tx); err != nil {
		return nil, err
	}

	metrics.PayoutAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Infof("payout %s settled %s PKR for event %s", job.ID, job.AmountPKR.StringFixed(2), ev.ID)
	return job, nil
}
