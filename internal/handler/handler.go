package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pkrlabs/pkr-issuer/config"
	"github.com/pkrlabs/pkr-issuer/internal/middleware"
	"github.com/pkrlabs/pkr-issuer/internal/service"
	"github.com/pkrlabs/pkr-issuer/utils"
)

type Handler struct {
	svc    *service.Service
	cfg    *config.Config
	logger *utils.Logger
}

func NewHandler(svc *service.Service, cfg *config.Config, logger *utils.Logger) *Handler {
	return &Handler{svc: svc, cfg: cfg, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/health", h.Health)
	api.GET("/me", h.Me)
	api.GET("/balance", h.Balance)
	api.GET("/ledger", h.Ledger)
	api.GET("/external-transactions", h.ExternalTransactions)
	api.GET("/debug/summary", h.DebugSummary)

	api.POST("/demo/seed", h.Seed)
	api.POST("/demo/wallet/credit", h.WalletCredit)
	api.POST("/ingest/wallet-transactions", h.Ingest)
	api.POST("/mint", h.Mint)
	api.POST("/redeem", h.Redeem)

	hooks := api.Group("/webhooks")
	hooks.POST("/bank", middleware.IPAllowlist(h.cfg.BankWebhookAllowedCIDRs, h.logger), h.BankWebhook)
	hooks.POST("/chain/events", h.ChainEvents)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
