package chain

import "context"

// Receipt is the result of a submitted mint or burn.
type Receipt struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// Client is the capability boundary to the token ledger. Orchestration code
// depends only on this interface; the deterministic stub stands in for a real
// chain client that would submit signed transactions and await finality.
type Client interface {
	Mint(ctx context.Context, userID string, amountUnits int64, idempotencyKey string) (Receipt, error)
	Burn(ctx context.Context, userID string, amountUnits int64, idempotencyKey string) (Receipt, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
}
