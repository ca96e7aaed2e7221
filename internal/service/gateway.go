package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pkrlabs/pkr-issuer/internal/metrics"
	"github.com/pkrlabs/pkr-issuer/internal/models"
)

// BankDelivery is a verified bank webhook payload. Verification (signature,
// source IP) happens at the transport layer before this is built.
type BankDelivery struct {
	ProviderTxID string            `json:"provider_tx_id"`
	Direction    string            `json:"direction"`
	AmountPKR    decimal.Decimal   `json:"amount_pkr"`
	Status       string            `json:"status"`
	OccurredAt   string            `json:"occurred_at"`
	Memo         string            `json:"memo"`
	Metadata     map[string]string `json:"metadata"`
}

type BankDeliveryResult struct {
	Ignored    bool
	Idempotent bool
	Minted     bool
	Status     string
	TxHash     string
}

const deliveryStatusSettled = "settled"

// ProcessBankDelivery records the delivery and mints qualifying credits.
// Redeliveries of the same provider_tx_id are answered idempotently; the
// unique constraint on the id, not a pre-check, is what makes this safe under
// concurrent duplicates.
func (s *Service) ProcessBankDelivery(ctx context.Context, d BankDelivery) (*BankDeliveryResult, error) {
	if d.ProviderTxID == "" {
		return nil, fmt.Errorf("%w: provider_tx_id", ErrMissingField)
	}

	user, err := s.resolveUser(ctx, d.Metadata, d.Memo)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetExternalTxByProviderID(ctx, d.ProviderTxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replayDelivery(ctx, user, existing)
	}

	wa, err := s.repo.GetWalletAccountByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if wa == nil {
		return nil, ErrUnknownUser
	}

	qualifies := d.Direction == models.DirectionCredit &&
		d.Status == deliveryStatusSettled &&
		d.AmountPKR.IsPositive()

	et := &models.ExternalTransaction{
		ID:           uuid.NewString(),
		WalletAcctID: wa.ID,
		ProviderTxID: d.ProviderTxID,
		Direction:    d.Direction,
		AmountPKR:    d.AmountPKR,
		Memo:         d.Memo,
		Status:       models.ExternalTxReceived,
		OccurredAt:   parseOccurredAt(d.OccurredAt),
	}
	if !qualifies {
		et.Status = models.ExternalTxIgnored
	}

	if err := s.repo.CreateExternalTx(ctx, et, nil); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent delivery of the same id won the insert.
			winner, ferr := s.repo.GetExternalTxByProviderID(ctx, d.ProviderTxID)
			if ferr != nil {
				return nil, ferr
			}
			if winner != nil {
				return s.replayDelivery(ctx, user, winner)
			}
		}
		return nil, fmt.Errorf("external transaction create failed: %w", err)
	}

	if !qualifies {
		metrics.DeliveriesIgnoredTotal.Inc()
		s.logger.Infof("bank delivery %s ignored (direction=%s status=%s amount=%s)",
			d.ProviderTxID, d.Direction, d.Status, d.AmountPKR.StringFixed(2))
		return &BankDeliveryResult{Ignored: true, Status: et.Status}, nil
	}

	return s.mintDelivery(ctx, user, et)
}

// replayDelivery answers a redelivered provider_tx_id based on where the
// recorded transaction already got to.
func (s *Service) replayDelivery(ctx context.Context, user *models.User, et *models.ExternalTransaction) (*BankDeliveryResult, error) {
	switch et.Status {
	case models.ExternalTxMinted:
		return &BankDeliveryResult{Idempotent: true, Status: et.Status}, nil
	case models.ExternalTxIgnored:
		return &BankDeliveryResult{Ignored: true, Status: et.Status}, nil
	default:
		// RECEIVED but never minted, e.g. an earlier attempt died between
		// recording and minting. Resume it.
		return s.mintDelivery(ctx, user, et)
	}
}

func (s *Service) mintDelivery(ctx context.Context, user *models.User, et *models.ExternalTransaction) (*BankDeliveryResult, error) {
	job, err := s.MintFromExternalTx(ctx, user, et, "bank:"+et.ProviderTxID)
	if err != nil {
		return nil, err
	}
	return &BankDeliveryResult{Minted: true, Status: models.ExternalTxMinted, TxHash: job.TxHash}, nil
}

var memoUserPattern = regexp.MustCompile(`user:([A-Za-z0-9-]+)`)

// resolveUser maps a delivery to an internal identity: explicit user id, then
// explicit email, then a user:<id> tag in the memo, then the configured
// fallback. The fallback is a demo convenience, not a security model.
func (s *Service) resolveUser(ctx context.Context, metadata map[string]string, memo string) (*models.User, error) {
	if id := metadata["user_id"]; id != "" {
		user, err := s.repo.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	if email := metadata["email"]; email != "" {
		user, err := s.repo.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	if m := memoUserPattern.FindStringSubmatch(memo); m != nil {
		user, err := s.repo.GetUserByID(ctx, m[1])
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	user, err := s.repo.GetUserByEmail(ctx, s.cfg.DemoUserEmail)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	return user, nil
}

// parseOccurredAt accepts RFC3339 or a naive timestamp (assumed UTC) and
// falls back to receipt time.
func parseOccurredAt(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.UTC); err == nil {
		return t
	}
	return time.Now().UTC()
}

// BurnEventPayload is one event tuple in either notification shape.
type BurnEventPayload struct {
	TransactionID string      `json:"tx_id"`
	EventIndex    int         `json:"event_index"`
	Type          string      `json:"type"`
	Sender        string      `json:"sender"`
	Amount        json.Number `json:"amount"`
	AssetID       string      `json:"asset_identifier"`
}

// BurnTransactionPayload is the nested shape: events grouped under their
// transaction.
type BurnTransactionPayload struct {
	TxID   string             `json:"tx_id"`
	Events []BurnEventPayload `json:"events"`
}

// BurnNotification accepts both the flat and the nested payload shape.
type BurnNotification struct {
	ChainID      string                   `json:"chain_id"`
	Events       []BurnEventPayload       `json:"events"`
	Transactions []BurnTransactionPayload `json:"transactions"`
}

type burnTuple struct {
	txID       string
	eventIndex int
	eventType  string
	sender     string
	amount     int64
	assetID    string
}

var acceptedBurnTypes = map[string]bool{
	// The upstream parser treats these interchangeably and does not validate
	// the asset identifier against an expected token.
	"ft_burn":             true,
	"fungible_token_burn": true,
	"contract_event":      true,
}

// ProcessBurnNotification normalizes both payload shapes, deduplicates each
// (tx_id, event_index) pair and hands fresh events to the payout
// orchestrator. A bad tuple never aborts the batch; the return value is the
// number of newly processed events.
func (s *Service) ProcessBurnNotification(ctx context.Context, n BurnNotification) int {
	tuples := normalizeBurnEvents(n)

	processed := 0
	for _, t := range tuples {
		if t.txID == "" || !acceptedBurnTypes[t.eventType] || t.amount <= 0 {
			s.logger.Warnf("skipping malformed burn event %s[%d] (type=%q amount=%d)",
				t.txID, t.eventIndex, t.eventType, t.amount)
			continue
		}

		user, err := s.resolveBurnSender(ctx, t.sender)
		if err != nil || user == nil {
			s.logger.Warnf("skipping burn event %s[%d]: unresolvable sender %q",
				t.txID, t.eventIndex, t.sender)
			continue
		}

		ev := &models.OnchainEvent{
			ID:          uuid.NewString(),
			ChainID:     n.ChainID,
			TxID:        t.txID,
			EventIndex:  t.eventIndex,
			EventType:   t.eventType,
			UserID:      user.ID,
			AmountUnits: t.amount,
			AssetID:     t.assetID,
			SeenAt:      time.Now().UTC(),
		}
		if err := s.repo.CreateOnchainEvent(ctx, ev, nil); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				metrics.BurnEventsDedupedTotal.Inc()
				s.logger.Infof("burn event %s[%d] already processed", t.txID, t.eventIndex)
				continue
			}
			s.logger.Errorf("failed to record burn event %s[%d]: %v", t.txID, t.eventIndex, err)
			continue
		}

		if _, err := s.ProcessOnchainEvent(ctx, ev); err != nil {
			// Payout state is durable; redelivery retries it.
			s.logger.Errorf("payout for burn event %s[%d] errored: %v", t.txID, t.eventIndex, err)
		}
		processed++
	}
	return processed
}

func normalizeBurnEvents(n BurnNotification) []burnTuple {
	var tuples []burnTuple

	add := func(txID string, ev BurnEventPayload) {
		if txID == "" {
			txID = ev.TransactionID
		}
		amount, _ := ev.Amount.Int64()
		tuples = append(tuples, burnTuple{
			txID:       txID,
			eventIndex: ev.EventIndex,
			eventType:  ev.Type,
			sender:     ev.Sender,
			amount:     amount,
			assetID:    ev.AssetID,
		})
	}

	for _, ev := range n.Events {
		add("", ev)
	}
	for _, btx := range n.Transactions {
		for _, ev := range btx.Events {
			add(btx.TxID, ev)
		}
	}
	return tuples
}

// resolveBurnSender maps a chain address to a user. The address-as-email
// heuristic is a stand-in for a real address book; unknown senders fall back
// to the demo identity.
func (s *Service) resolveBurnSender(ctx context.Context, sender string) (*models.User, error) {
	if sender != "" {
		user, err := s.repo.GetUserByEmail(ctx, sender)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return s.repo.GetUserByEmail(ctx, s.cfg.DemoUserEmail)
}
