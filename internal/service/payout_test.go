package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkrlabs/pkr-issuer/internal/chain"
	"github.com/pkrlabs/pkr-issuer/internal/models"
	"github.com/pkrlabs/pkr-issuer/internal/repository"
	"github.com/pkrlabs/pkr-issuer/internal/wallet"
	"github.com/pkrlabs/pkr-issuer/utils"
)

// flakyWallet fails debits on demand and delegates everything else.
type flakyWallet struct {
	wallet.Client
	failDebits bool
}

func (f *flakyWallet) Debit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) (string, error) {
	if f.failDebits {
		return "", errors.New("provider unavailable")
	}
	return f.Client.Debit(ctx, accountID, amount, memo)
}

func newPayoutFixture(t *testing.T) (*Service, *flakyWallet) {
	t.Helper()

	db := newTestDB(t)
	logger := utils.InitLogger()
	repo := repository.NewRepository(db, logger)
	fw := &flakyWallet{Client: wallet.NewStub(db, logger)}
	svc := NewService(repo, chain.NewStub(db, logger), fw, testConfig(), logger)
	return svc, fw
}

func seedBurnEvent(t *testing.T, svc *Service, units int64) *models.OnchainEvent {
	t.Helper()
	ctx := context.Background()

	user, _, err := svc.SeedDemoUser(ctx)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	ev := &models.OnchainEvent{
		ID:          uuid.NewString(),
		ChainID:     "testnet",
		TxID:        "0xABC",
		EventIndex:  0,
		EventType:   "ft_burn",
		UserID:      user.ID,
		AmountUnits: units,
		SeenAt:      time.Now().UTC(),
	}
	if err := svc.repo.CreateOnchainEvent(ctx, ev, nil); err != nil {
		t.Fatalf("event create failed: %v", err)
	}
	return ev
}

func TestPayoutTruncatesUnitsToPaisa(t *testing.T) {
	svc, _ := newPayoutFixture(t)
	ctx := context.Background()

	ev := seedBurnEvent(t, svc, 12_345)

	job, err := svc.ProcessOnchainEvent(ctx, ev)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if job.Status != models.PayoutSuccess {
		t.Fatalf("status = %s, want SUCCESS", job.Status)
	}
	if job.AmountPKR.StringFixed(2) != "0.01" {
		t.Fatalf("payout amount = %s PKR, want 0.01", job.AmountPKR.StringFixed(2))
	}
	if job.PayoutRef == "" {
		t.Fatal("payout ref is empty after success")
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}

	stored, err := svc.repo.GetOnchainEvent(ctx, ev.TxID, ev.EventIndex)
	if err != nil || stored == nil {
		t.Fatalf("event lookup failed: %v", err)
	}
	if stored.ConsumedAt == nil {
		t.Fatal("event not marked consumed after successful payout")
	}
}

func TestPayoutFailureIsRetryable(t *testing.T) {
	svc, fw := newPayoutFixture(t)
	ctx := context.Background()

	ev := seedBurnEvent(t, svc, 5_000_000)

	fw.failDebits = true
	job, err := svc.ProcessOnchainEvent(ctx, ev)
	if err != nil {
		t.Fatalf("failed attempt should not error: %v", err)
	}
	if job.Status != models.PayoutFailedRetryable {
		t.Fatalf("status = %s, want FAILED_RETRYABLE", job.Status)
	}
	if job.Attempts != 1 || job.LastError == "" {
		t.Fatalf("attempts=%d lastError=%q, want 1 and non-empty", job.Attempts, job.LastError)
	}

	stored, err := svc.repo.GetOnchainEvent(ctx, ev.TxID, ev.EventIndex)
	if err != nil || stored == nil {
		t.Fatalf("event lookup failed: %v", err)
	}
	if stored.ConsumedAt != nil {
		t.Fatal("event marked consumed despite failed payout")
	}

	fw.failDebits = false
	retried, err := svc.ProcessOnchainEvent(ctx, ev)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retried.ID != job.ID {
		t.Fatalf("retry created a new job: %s vs %s", retried.ID, job.ID)
	}
	if retried.Status != models.PayoutSuccess {
		t.Fatalf("status after retry = %s, want SUCCESS", retried.Status)
	}
	if retried.Attempts != 2 {
		t.Fatalf("attempts after retry = %d, want 2", retried.Attempts)
	}
	if retried.LastError != "" {
		t.Fatalf("lastError = %q after success, want empty", retried.LastError)
	}
}

func TestPayoutCreateRaceLocksWinner(t *testing.T) {
	rrSvc, rr := newRacingService(t)
	ctx := context.Background()

	ev := seedBurnEvent(t, rrSvc, 2_000_000)

	winner := &models.PayoutJob{
		ID:             uuid.NewString(),
		OnchainEventID: ev.ID,
		UserID:         ev.UserID,
		AmountPKR:      decimal.RequireFromString("2.00"),
		PayoutRef:      "TX-PRIOR",
		Status:         models.PayoutSuccess,
		Attempts:       1,
	}
	if err := rr.Repository.CreatePayoutJob(ctx, winner, nil); err != nil {
		t.Fatalf("winner create failed: %v", err)
	}

	// The locked lookup misses once, so the create collides on the event id
	// and the second pass has to lock the winner instead.
	rr.payoutMisses = 1
	job, err := rrSvc.ProcessOnchainEvent(ctx, ev)
	if err != nil {
		t.Fatalf("losing attempt should recover, got: %v", err)
	}
	if job.ID != winner.ID {
		t.Fatalf("loser returned job %s, want winner %s", job.ID, winner.ID)
	}
	if job.Status != models.PayoutSuccess || job.Attempts != 1 || job.PayoutRef != "TX-PRIOR" {
		t.Fatalf("winner mutated by lost race: %+v", job)
	}
}

func TestPayoutAlreadySettledReturnsUnchanged(t *testing.T) {
	svc, _ := newPayoutFixture(t)
	ctx := context.Background()

	ev := seedBurnEvent(t, svc, 1_000_000)

	first, err := svc.ProcessOnchainEvent(ctx, ev)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	second, err := svc.ProcessOnchainEvent(ctx, ev)
	if err != nil {
		t.Fatalf("replayed payout failed: %v", err)
	}
	if second.ID != first.ID || second.Attempts != first.Attempts {
		t.Fatalf("replay mutated the job: %+v vs %+v", second, first)
	}
}
