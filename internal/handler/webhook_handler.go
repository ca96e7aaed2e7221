package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pkrlabs/pkr-issuer/internal/metrics"
	"github.com/pkrlabs/pkr-issuer/internal/service"
)

// BankWebhook handles signed bank delivery notifications. Rejections leak no
// detail; processing failures return a generic message with the cause kept in
// server logs only.
func (h *Handler) BankWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if !h.verifySignature(body, c.GetHeader("X-Signature")) {
		metrics.WebhookRejectedTotal.Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var delivery service.BankDelivery
	if err := json.Unmarshal(body, &delivery); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.svc.ProcessBankDelivery(c.Request.Context(), delivery)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingField):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUnknownUser):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown user"})
		default:
			h.logger.Errorf("bank webhook processing failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "processing failed"})
		}
		return
	}

	switch {
	case result.Idempotent:
		c.JSON(http.StatusOK, gin.H{"ok": true, "idempotent": true, "status": result.Status})
	case result.Ignored:
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "minted": true, "tx_hash": result.TxHash})
	}
}

// verifySignature compares hex(HMAC-SHA256(body, secret)) against the header
// value in constant time. An unconfigured secret rejects everything.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	if h.cfg.BankWebhookSecret == "" || signature == "" {
		return false
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.cfg.BankWebhookSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ChainEvents handles burn notifications in either supported shape. Per-event
// failures are counted and logged, never surfaced: the response is always 200
// so the notifier does not redeliver a partially-processed batch forever.
func (h *Handler) ChainEvents(c *gin.Context) {
	var n service.BurnNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	processed := h.svc.ProcessBurnNotification(c.Request.Context(), n)
	c.JSON(http.StatusOK, gin.H{"ok": true, "events": processed})
}
