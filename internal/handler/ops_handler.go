package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/pkrlabs/pkr-issuer/internal/service"
)

func (h *Handler) Seed(c *gin.Context) {
	user, wa, err := h.svc.SeedDemoUser(c.Request.Context())
	if err != nil {
		h.logger.Errorf("seed failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "seed failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"user_id":       user.ID,
		"email":         user.Email,
		"provider_acct": wa.ProviderAcct,
	})
}

type walletCreditRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Memo   string          `json:"memo"`
}

func (h *Handler) WalletCredit(c *gin.Context) {
	var req walletCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	providerTxID, err := h.svc.WalletCredit(c.Request.Context(), req.Amount, req.Memo)
	if err != nil {
		if errors.Is(err, service.ErrAmountNotPositive) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
			return
		}
		h.logger.Errorf("wallet credit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallet credit failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "provider_tx_id": providerTxID})
}

type ingestRequest struct {
	Since string `json:"since"`
}

func (h *Handler) Ingest(c *gin.Context) {
	// An empty body is fine; a present but malformed one is not.
	var req ingestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	var since time.Time
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = parsed
	}

	result, err := h.svc.IngestSince(c.Request.Context(), since)
	if err != nil {
		h.logger.Errorf("ingest failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type mintRequest struct {
	ProviderTxID string `json:"provider_tx_id" binding:"required"`
}

func (h *Handler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider_tx_id is required"})
		return
	}

	job, err := h.svc.MintByProviderTxID(c.Request.Context(), req.ProviderTxID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownTransaction):
			// Generic on purpose: the response must not reveal whether the
			// provider id exists.
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction cannot be minted"})
		case errors.Is(err, service.ErrAlreadyMinted),
			errors.Is(err, service.ErrNotMintable),
			errors.Is(err, service.ErrAmountNotPositive):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Errorf("mint failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "mint failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id":       job.ID,
		"tx_hash":      job.TxHash,
		"amount_units": job.AmountUnits,
	})
}

type redeemRequest struct {
	AmountUnits int64  `json:"amount_units" binding:"required"`
	Memo        string `json:"memo"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_units is required"})
		return
	}

	user, _, err := h.svc.SeedDemoUser(c.Request.Context())
	if err != nil {
		h.logger.Errorf("redeem seed failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		return
	}

	job, err := h.svc.Redeem(c.Request.Context(), user, req.AmountUnits, req.Memo, c.GetHeader("Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient_balance"})
		case errors.Is(err, service.ErrAmountNotPositive):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		default:
			h.logger.Errorf("redeem failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id":       job.ID,
		"tx_hash":      job.TxHash,
		"amount_units": job.AmountUnits,
	})
}
