package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/pkrlabs/pkr-issuer/config"
	"github.com/pkrlabs/pkr-issuer/internal/chain"
	"github.com/pkrlabs/pkr-issuer/internal/models"
	"github.com/pkrlabs/pkr-issuer/internal/repository"
	"github.com/pkrlabs/pkr-issuer/internal/wallet"
	"github.com/pkrlabs/pkr-issuer/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "issuer.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.WalletAccount{},
		&models.ExternalTransaction{},
		&models.TokenBalance{},
		&models.ChainJob{},
		&models.LedgerEntry{},
		&models.OnchainEvent{},
		&models.PayoutJob{},
		&chain.StubBalance{},
		&wallet.StubAccount{},
		&wallet.StubTx{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		TokenDecimals:      6,
		DemoUserEmail:      "demo@pkr-issuer.local",
		WalletProviderAcct: "WALLET-001",
		BankWebhookSecret:  "test-secret",
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := newTestDB(t)
	logger := utils.InitLogger()
	repo := repository.NewRepository(db, logger)
	return NewService(repo, chain.NewStub(db, logger), wallet.NewStub(db, logger), testConfig(), logger)
}

// depositAndIngest simulates a settled PKR deposit at the provider and runs
// the ingestion poll, returning the seeded user.
func depositAndIngest(t *testing.T, svc *Service, amount string) *models.User {
	t.Helper()
	ctx := context.Background()

	user, _, err := svc.SeedDemoUser(ctx)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := svc.WalletCredit(ctx, decimal.RequireFromString(amount), "deposit"); err != nil {
		t.Fatalf("wallet credit failed: %v", err)
	}
	result, err := svc.IngestSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Minted != 1 {
		t.Fatalf("expected 1 minted transaction, got %d", result.Minted)
	}
	return user
}

// racingRepo simulates losing an idempotency race: the first lookups miss, as
// they would when a concurrent writer inserts between the pre-check and the
// create, so the create itself collides on the unique constraint and the
// recovery branch has to re-fetch the winner.
type racingRepo struct {
	Repository
	jobMisses    int
	payoutMisses int
}

func (r *racingRepo) GetChainJobByIdempotencyKey(ctx context.Context, key string) (*models.ChainJob, error) {
	if r.jobMisses > 0 {
		r.jobMisses--
		return nil, nil
	}
	return r.Repository.GetChainJobByIdempotencyKey(ctx, key)
}

func (r *racingRepo) GetPayoutJobByEventForUpdate(ctx context.Context, eventID string, tx *gorm.DB) (*models.PayoutJob, error) {
	if r.payoutMisses > 0 {
		r.payoutMisses--
		return nil, nil
	}
	return r.Repository.GetPayoutJobByEventForUpdate(ctx, eventID, tx)
}

func newRacingService(t *testing.T) (*Service, *racingRepo) {
	t.Helper()

	db := newTestDB(t)
	logger := utils.InitLogger()
	rr := &racingRepo{Repository: repository.NewRepository(db, logger)}
	svc := NewService(rr, chain.NewStub(db, logger), wallet.NewStub(db, logger), testConfig(), logger)
	return svc, rr
}

func balanceUnits(t *testing.T, svc *Service, userID string) int64 {
	t.Helper()
	tb, err := svc.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	if tb == nil {
		return 0
	}
	return tb.BalanceUnits
}
