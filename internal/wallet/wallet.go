package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderTx is a provider-shaped transaction record as returned by
// ListTransactions, so ingestion code parses the same shape a real payment
// rail would deliver.
type ProviderTx struct {
	ProviderTxID string          `json:"provider_tx_id"`
	Direction    string          `json:"direction"`
	AmountPKR    decimal.Decimal `json:"amount_pkr"`
	Memo         string          `json:"memo"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Client is the capability boundary to the fiat wallet provider. Credits are
// deposits into the reserve, debits are payouts. Orchestration depends only
// on this interface.
type Client interface {
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) (string, error)
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, memo string) (string, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, accountID string, since time.Time) ([]ProviderTx, error)
}
