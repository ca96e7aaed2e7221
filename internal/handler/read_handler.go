package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultListLimit = 50

func (h *Handler) Me(c *gin.Context) {
	user, err := h.svc.DemoUser(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "demo user not seeded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":      user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
	})
}

func (h *Handler) Balance(c *gin.Context) {
	user, err := h.svc.DemoUser(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "demo user not seeded"})
		return
	}

	var units int64
	tb, err := h.svc.Balance(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Errorf("balance lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	if tb != nil {
		units = tb.BalanceUnits
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       user.ID,
		"balance_units": units,
		"balance_pkr":   h.svc.Converter().ToFiat(units).StringFixed(2),
	})
}

func (h *Handler) Ledger(c *gin.Context) {
	entries, err := h.svc.RecentLedgerEntries(c.Request.Context(), listLimit(c))
	if err != nil {
		h.logger.Errorf("ledger listing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) ExternalTransactions(c *gin.Context) {
	txs, err := h.svc.RecentExternalTxs(c.Request.Context(), listLimit(c))
	if err != nil {
		h.logger.Errorf("transaction listing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) DebugSummary(c *gin.Context) {
	summary, err := h.svc.DebugSummary(c.Request.Context())
	if err != nil {
		h.logger.Errorf("summary failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func listLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
