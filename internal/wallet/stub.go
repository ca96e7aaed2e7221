package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/utils"
)

// StubAccount backs the PKR reserve account at the stubbed provider.
type StubAccount struct {
	ID         string          `gorm:"primaryKey;size:36"`
	AccountID  string          `gorm:"uniqueIndex;size:50;not null"`
	BalancePKR decimal.Decimal `gorm:"type:numeric(18,2)"`
}

func (StubAccount) TableName() string {
	return "wallet_stub_accounts"
}

// StubTx is the provider's append-only transaction log.
type StubTx struct {
	ID           string          `gorm:"primaryKey;size:36"`
	AcctID       string          `gorm:"index;size:36;not null"`
	ProviderTxID string          `gorm:"uniqueIndex;size:100;not null"`
	Direction    string          `gorm:"size:10"`
	AmountPKR    decimal.Decimal `gorm:"type:numeric(18,2)"`
	Memo         string          `gorm:"type:text"`
	OccurredAt   time.Time       `gorm:"autoCreateTime"`
}

func (StubTx) TableName() string {
	return "wallet_stub_txs"
}

// Stub is a deterministic in-process wallet provider. Like the chain stub it
// owns its db handle and sits outside the caller's transaction.
type Stub struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewStub(db *gorm.DB, logger *utils.Logger) *Stub {
	return &Stub{db: db, logger: logger}
}

func (s *Stub) Credit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) (string, error) {
	return s.record(ctx, accountID, DirectionCredit, amount, memo)
}

func (s *Stub) Debit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) (string, error) {
	return s.record(ctx, accountID, DirectionDebit, amount, memo)
}

func (s *Stub) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := s.ensure(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.BalancePKR, nil
}

func (s *Stub) ListTransactions(ctx context.Context, accountID string, since time.Time) ([]ProviderTx, error) {
	acct, err := s.ensure(ctx, accountID)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("acct_id = ?", acct.ID).Order("occurred_at ASC")
	if !since.IsZero() {
		q = q.Where("occurred_at >= ?", since)
	}

	var rows []StubTx
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stub transactions: %w", err)
	}

	txs := make([]ProviderTx, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, ProviderTx{
			ProviderTxID: r.ProviderTxID,
			Direction:    r.Direction,
			AmountPKR:    r.AmountPKR,
			Memo:         r.Memo,
			OccurredAt:   r.OccurredAt,
		})
	}
	return txs, nil
}

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

func (s *Stub) ensure(ctx context.Context, accountID string) (*StubAccount, error) {
	var acct StubAccount
	err := s.db.WithContext(ctx).
		Where(StubAccount{AccountID: accountID}).
		Attrs(StubAccount{ID: uuid.NewString(), BalancePKR: decimal.Zero}).
		FirstOrCreate(&acct).Error
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Stub) record(ctx context.Context, accountID, direction string, amount decimal.Decimal, memo string) (string, error) {
	acct, err := s.ensure(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("wallet stub account lookup failed: %w", err)
	}

	tx := StubTx{
		ID:           uuid.NewString(),
		AcctID:       acct.ID,
		ProviderTxID: "TX-" + uuid.NewString()[:8],
		Direction:    direction,
		AmountPKR:    amount,
		Memo:         memo,
		OccurredAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return "", fmt.Errorf("wallet stub tx create failed: %w", err)
	}

	delta := amount
	if direction == DirectionDebit {
		delta = amount.Neg()
	}
	newBalance := acct.BalancePKR.Add(delta)
	err = s.db.WithContext(ctx).
		Model(&StubAccount{}).
		Where("id = ?", acct.ID).
		Update("balance_pkr", newBalance).Error
	if err != nil {
		return "", fmt.Errorf("wallet stub balance update failed: %w", err)
	}

	s.logger.Infof("wallet stub: %s %s PKR on %s (%s)", direction, amount.StringFixed(2), accountID, tx.ProviderTxID)
	return tx.ProviderTxID, nil
}
