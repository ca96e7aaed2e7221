package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"

	ExternalTxReceived = "RECEIVED"
	ExternalTxMinted   = "MINTED"
	ExternalTxIgnored  = "IGNORED"

	JobTypeMint = "mint"
	JobTypeBurn = "burn"

	SideDebit  = "debit"
	SideCredit = "credit"

	AccountIssuerToken = "issuer_token"
	AccountUserToken   = "user_token"

	PayoutPending         = "PENDING"
	PayoutSuccess         = "SUCCESS"
	PayoutFailedRetryable = "FAILED_RETRYABLE"
	PayoutFailedFinal     = "FAILED_FINAL"
)

type User struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Email       string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName string    `gorm:"size:200" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// WalletAccount links a user to their account at the external fiat provider.
// One active account per user.
type WalletAccount struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"index;size:36;not null" json:"user_id"`
	Provider     string    `gorm:"size:50" json:"provider"`
	ProviderAcct string    `gorm:"size:50" json:"provider_acct"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExternalTransaction is the immutable record of one fiat-provider
// transaction. ProviderTxID is unique: it is the idempotency boundary for
// fiat ingestion, so a redelivered webhook can never double-mint.
type ExternalTransaction struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	WalletAcctID string          `gorm:"index;size:36" json:"wallet_acct_id"`
	ProviderTxID string          `gorm:"uniqueIndex;size:100;not null" json:"provider_tx_id"`
	Direction    string          `gorm:"size:10" json:"direction"`
	AmountPKR    decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount_pkr"`
	Memo         string          `gorm:"type:text" json:"memo"`
	Status       string          `gorm:"size:20;default:RECEIVED" json:"status"`
	OccurredAt   time.Time       `json:"occurred_at"`
	RecordedAt   time.Time       `gorm:"autoCreateTime" json:"recorded_at"`
}

// TokenBalance caches the per-user token balance in integer units. It is
// maintained under a row lock in the same transaction as the ledger pair, so
// it always equals the net of the user's ledger movements.
type TokenBalance struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	UserID       string `gorm:"uniqueIndex;size:36;not null" json:"user_id"`
	BalanceUnits int64  `gorm:"not null;default:0" json:"balance_units"`
}

// ChainJob is the audit record of one mint or burn submitted to the chain
// collaborator. The nullable unique IdempotencyKey makes it double as the
// idempotency store: one key maps to at most one job, enforced by the
// constraint rather than by pre-checking.
type ChainJob struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	UserID          string     `gorm:"index;size:36;not null" json:"user_id"`
	JobType         string     `gorm:"size:10;not null" json:"job_type"`
	AmountUnits     int64      `gorm:"not null" json:"amount_units"`
	RefExternalTxID *string    `gorm:"size:36" json:"ref_external_tx_id,omitempty"`
	TxHash          string     `gorm:"size:100" json:"tx_hash"`
	Status          string     `gorm:"size:20" json:"status"`
	IdempotencyKey  *string    `gorm:"uniqueIndex;size:64" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
}

// LedgerEntry is one leg of a double-entry pair. Every mint or burn writes
// exactly two rows with opposite sides and equal magnitude; issuer-side rows
// carry no user. Entries are never updated or deleted.
type LedgerEntry struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      *string   `gorm:"index;size:36" json:"user_id,omitempty"`
	Side        string    `gorm:"size:10;not null" json:"side"`
	Account     string    `gorm:"size:50;not null" json:"account"`
	AmountUnits int64     `gorm:"not null" json:"amount_units"`
	RefType     string    `gorm:"size:20;not null" json:"ref_type"`
	RefID       string    `gorm:"size:36;not null" json:"ref_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// OnchainEvent records one event observed on chain. The (TxID, EventIndex)
// pair is unique because a reorg or redelivery may resend the same event.
type OnchainEvent struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	ChainID     string     `gorm:"size:50" json:"chain_id"`
	TxID        string     `gorm:"size:100;not null;uniqueIndex:idx_onchain_tx_event,priority:1" json:"tx_id"`
	EventIndex  int        `gorm:"not null;uniqueIndex:idx_onchain_tx_event,priority:2" json:"event_index"`
	EventType   string     `gorm:"size:50" json:"event_type"`
	UserID      string     `gorm:"index;size:36" json:"user_id"`
	AmountUnits int64      `json:"amount_units"`
	AssetID     string     `gorm:"size:200" json:"asset_id"`
	SeenAt      time.Time  `gorm:"autoCreateTime" json:"seen_at"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
}

// PayoutJob tracks the fiat payout owed for one burn event, one-to-one via
// the unique OnchainEventID. Mutated only by the payout orchestrator under a
// row lock.
type PayoutJob struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	OnchainEventID string          `gorm:"uniqueIndex;size:36;not null" json:"onchain_event_id"`
	UserID         string          `gorm:"index;size:36;not null" json:"user_id"`
	AmountPKR      decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount_pkr"`
	PayoutRef      string          `gorm:"size:100" json:"payout_ref"`
	Status         string          `gorm:"size:20;default:PENDING" json:"status"`
	Attempts       int             `gorm:"default:0" json:"attempts"`
	LastError      string          `gorm:"type:text" json:"last_error"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
