package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/pkrlabs/pkr-issuer/config"
	"github.com/pkrlabs/pkr-issuer/internal/chain"
	"github.com/pkrlabs/pkr-issuer/internal/models"
	"github.com/pkrlabs/pkr-issuer/internal/repository"
	"github.com/pkrlabs/pkr-issuer/internal/service"
	"github.com/pkrlabs/pkr-issuer/internal/wallet"
	"github.com/pkrlabs/pkr-issuer/utils"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *service.Service) {
	return newTestRouterWithConfig(t, &config.Config{
		TokenDecimals:      6,
		DemoUserEmail:      "demo@pkr-issuer.local",
		WalletProviderAcct: "WALLET-001",
		BankWebhookSecret:  testSecret,
	})
}

func newTestRouterWithConfig(t *testing.T, cfg *config.Config) (*gin.Engine, *service.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	logger := utils.InitLogger()
	repo := repository.NewRepository(db, logger)
	svc := service.NewService(repo, chain.NewStub(db, logger), wallet.NewStub(db, logger), cfg, logger)
	if _, _, err := svc.SeedDemoUser(context.Background()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	router := gin.New()
	NewHandler(svc, cfg, logger).RegisterRoutes(router)
	return router, svc
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postJSON(router *gin.Engine, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, w.Body.String())
	}
	return out
}

func bankDeliveryBody(providerTxID string) []byte {
	return []byte(`{"provider_tx_id":"` + providerTxID + `","direction":"credit","amount_pkr":"100.00","status":"settled"}`)
}

func TestBankWebhookRejectsBadSignature(t *testing.T) {
	router, _ := newTestRouter(t)

	body := bankDeliveryBody("BANK-1")
	cases := map[string]string{
		"missing signature": "",
		"wrong signature":   sign(body, "other-secret"),
		"not hex":           "zz-not-hex",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			w := postJSON(router, "/api/webhooks/bank", body, map[string]string{"X-Signature": sig})
			if w.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", w.Code)
			}
			if got := decodeBody(t, w)["error"]; got != "forbidden" {
				t.Fatalf("error = %v, want forbidden", got)
			}
		})
	}
}

func TestBankWebhookRejectsWhenSecretUnset(t *testing.T) {
	// An empty secret must reject everything, even a signature computed
	// over the empty string.
	router, _ := newTestRouterWithConfig(t, &config.Config{
		TokenDecimals:      6,
		DemoUserEmail:      "demo@pkr-issuer.local",
		WalletProviderAcct: "WALLET-001",
	})

	body := bankDeliveryBody("BANK-UNSET")
	w := postJSON(router, "/api/webhooks/bank", body, map[string]string{"X-Signature": sign(body, "")})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestBankWebhookMintsAndReplays(t *testing.T) {
	router, _ := newTestRouter(t)

	body := bankDeliveryBody("BANK-OK")
	headers := map[string]string{"X-Signature": sign(body, testSecret)}

	w := postJSON(router, "/api/webhooks/bank", body, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	first := decodeBody(t, w)
	if first["ok"] != true || first["minted"] != true || first["tx_hash"] != "0xMINT" {
		t.Fatalf("first response = %v, want ok/minted with 0xMINT", first)
	}

	w = postJSON(router, "/api/webhooks/bank", body, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", w.Code)
	}
	replay := decodeBody(t, w)
	if replay["ok"] != true || replay["idempotent"] != true || replay["status"] != models.ExternalTxMinted {
		t.Fatalf("replay response = %v, want ok/idempotent with MINTED", replay)
	}
}

func TestBankWebhookIgnoredDelivery(t *testing.T) {
	router, _ := newTestRouter(t)

	body := []byte(`{"provider_tx_id":"BANK-DEBIT","direction":"debit","amount_pkr":"10.00","status":"settled"}`)
	w := postJSON(router, "/api/webhooks/bank", body, map[string]string{"X-Signature": sign(body, testSecret)})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["ok"] != true || resp["ignored"] != true {
		t.Fatalf("response = %v, want ok/ignored", resp)
	}
}

func TestChainEventsCountsProcessed(t *testing.T) {
	router, _ := newTestRouter(t)

	body := []byte(`{"chain_id":"testnet","events":[{"tx_id":"0xH1","event_index":0,"type":"ft_burn","amount":12345}]}`)
	w := postJSON(router, "/api/webhooks/chain/events", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["ok"] != true || resp["events"] != float64(1) {
		t.Fatalf("response = %v, want ok with events=1", resp)
	}
}

func TestRedeemEndpointInsufficientBalance(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postJSON(router, "/api/redeem", []byte(`{"amount_units":1000000}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["error"]; got != "insufficient_balance" {
		t.Fatalf("error = %v, want insufficient_balance", got)
	}
}

func TestMintAndRedeemEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postJSON(router, "/api/demo/wallet/credit", []byte(`{"amount":"1000.00"}`), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("wallet credit status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	providerTxID, _ := decodeBody(t, w)["provider_tx_id"].(string)
	if providerTxID == "" {
		t.Fatal("wallet credit returned no provider_tx_id")
	}

	w = postJSON(router, "/api/ingest/wallet-transactions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, want 200 (%s)", w.Code, w.Body.String())
	}

	// The ingest already minted it, so the operational endpoint refuses.
	w = postJSON(router, "/api/mint", []byte(`{"provider_tx_id":"`+providerTxID+`"}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("mint status = %d, want 400 for already-minted (%s)", w.Code, w.Body.String())
	}

	w = postJSON(router, "/api/redeem", []byte(`{"amount_units":250000}`), map[string]string{"Idempotency-Key": "r-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("redeem status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["amount_units"] != float64(250000) || resp["tx_hash"] != "0xBURN" {
		t.Fatalf("redeem response = %v", resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d, want 200", rec.Code)
	}
	bal := decodeBody(t, rec)
	if bal["balance_units"] != float64(999750000) {
		t.Fatalf("balance_units = %v, want 999750000", bal["balance_units"])
	}
}
