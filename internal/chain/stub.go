package chain

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/google/uuid"
	"github.com/pkrlabs/pkr-issuer/utils"
)

// StubBalance simulates confirmed per-user on-chain state in a local table.
type StubBalance struct {
	ID           string `gorm:"primaryKey;size:36"`
	UserID       string `gorm:"uniqueIndex;size:36;not null"`
	BalanceUnits int64  `gorm:"not null;default:0"`
}

func (StubBalance) TableName() string {
	return "chain_stub_balances"
}

// Stub returns confirmed receipts immediately. It keeps its own db handle:
// it models an external system and never joins the caller's transaction.
type Stub struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewStub(db *gorm.DB, logger *utils.Logger) *Stub {
	return &Stub{db: db, logger: logger}
}

func (s *Stub) Mint(ctx context.Context, userID string, amountUnits int64, idempotencyKey string) (Receipt, error) {
	if err := s.adjust(ctx, userID, amountUnits); err != nil {
		return Receipt{}, fmt.Errorf("chain stub mint failed: %w", err)
	}
	s.logger.Infof("chain stub: minted %d units for user %s", amountUnits, userID)
	return Receipt{TxHash: "0xMINT", Status: "confirmed"}, nil
}

func (s *Stub) Burn(ctx context.Context, userID string, amountUnits int64, idempotencyKey string) (Receipt, error) {
	if err := s.adjust(ctx, userID, -amountUnits); err != nil {
		return Receipt{}, fmt.Errorf("chain stub burn failed: %w", err)
	}
	s.logger.Infof("chain stub: burned %d units for user %s", amountUnits, userID)
	return Receipt{TxHash: "0xBURN", Status: "confirmed"}, nil
}

func (s *Stub) GetBalance(ctx context.Context, userID string) (int64, error) {
	bal, err := s.ensure(ctx, userID)
	if err != nil {
		return 0, err
	}
	return bal.BalanceUnits, nil
}

func (s *Stub) ensure(ctx context.Context, userID string) (*StubBalance, error) {
	var bal StubBalance
	err := s.db.WithContext(ctx).
		Where(StubBalance{UserID: userID}).
		Attrs(StubBalance{ID: uuid.NewString()}).
		FirstOrCreate(&bal).Error
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (s *Stub) adjust(ctx context.Context, userID string, delta int64) error {
	bal, err := s.ensure(ctx, userID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&StubBalance{}).
		Where("id = ?", bal.ID).
		Update("balance_units", gorm.Expr("balance_units + ?", delta)).Error
}
