package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/config"
	"github.com/pkrlabs/pkr-issuer/internal/chain"
	"github.com/pkrlabs/pkr-issuer/internal/models"
	"github.com/pkrlabs/pkr-issuer/internal/wallet"
	"github.com/pkrlabs/pkr-issuer/utils"
)

var (
	// ErrInsufficientBalance is the stable domain error for redeems that
	// exceed the cached balance.
	ErrInsufficientBalance = errors.New("insufficient_balance")

	// ErrAmountNotPositive rejects amounts that convert to zero or negative
	// token units.
	ErrAmountNotPositive = errors.New("amount must convert to positive units")

	// ErrUnknownUser covers payloads that resolve to no internal identity.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnknownTransaction covers mint requests for provider transaction
	// ids that were never ingested.
	ErrUnknownTransaction = errors.New("unknown provider transaction")

	ErrMissingField = errors.New("missing required field")
)

// Repository is the persistence surface the orchestrators need. Methods that
// take a *gorm.DB participate in the caller's transaction; nil means the base
// connection.
type Repository interface {
	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)

	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User, tx *gorm.DB) error
	GetWalletAccountByUser(ctx context.Context, userID string) (*models.WalletAccount, error)
	CreateWalletAccount(ctx context.Context, wa *models.WalletAccount, tx *gorm.DB) error

	GetTokenBalance(ctx context.Context, userID string) (*models.TokenBalance, error)
	GetTokenBalanceForUpdate(ctx context.Context, userID string, tx *gorm.DB) (*models.TokenBalance, error)
	CreateTokenBalance(ctx context.Context, tb *models.TokenBalance, tx *gorm.DB) error
	UpdateTokenBalanceUnits(ctx context.Context, id string, units int64, tx *gorm.DB) error

	GetExternalTxByProviderID(ctx context.Context, providerTxID string) (*models.ExternalTransaction, error)
	CreateExternalTx(ctx context.Context, et *models.ExternalTransaction, tx *gorm.DB) error
	MarkExternalTxMinted(ctx context.Context, id string, tx *gorm.DB) error
	ListExternalTxs(ctx context.Context, limit int) ([]models.ExternalTransaction, error)

	GetChainJobByIdempotencyKey(ctx context.Context, key string) (*models.ChainJob, error)
	CreateChainJob(ctx context.Context, job *models.ChainJob, tx *gorm.DB) error
	SumChainJobUnits(ctx context.Context, jobType string) (int64, error)

	CreateLedgerPair(ctx context.Context, entries []models.LedgerEntry, tx *gorm.DB) error
	ListLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error)
	ListLedgerEntriesByRef(ctx context.Context, refID string) ([]models.LedgerEntry, error)
	SumUserLedgerMovements(ctx context.Context, userID string) (int64, error)

	CreateOnchainEvent(ctx context.Context, ev *models.OnchainEvent, tx *gorm.DB) error
	GetOnchainEvent(ctx context.Context, txID string, eventIndex int) (*models.OnchainEvent, error)
	MarkOnchainEventConsumed(ctx context.Context, id string, at time.Time, tx *gorm.DB) error

	GetPayoutJobByEventForUpdate(ctx context.Context, eventID string, tx *gorm.DB) (*models.PayoutJob, error)
	CreatePayoutJob(ctx context.Context, job *models.PayoutJob, tx *gorm.DB) error
	UpdatePayoutJob(ctx context.Context, job *models.PayoutJob, tx *gorm.DB) error
}

type Service struct {
	repo   Repository
	chain  chain.Client
	wallet wallet.Client
	conv   utils.Converter
	cfg    *config.Config
	logger *utils.Logger
}

func NewService(repo Repository, chainClient chain.Client, walletClient wallet.Client, cfg *config.Config, logger *utils.Logger) *Service {
	return &Service{
		repo:   repo,
		chain:  chainClient,
		wallet: walletClient,
		conv:   utils.NewConverter(cfg.TokenDecimals),
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Service) Converter() utils.Converter {
	return s.conv
}
