package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pkrlabs/pkr-issuer/config"
	"github.com/pkrlabs/pkr-issuer/db"
	"github.com/pkrlabs/pkr-issuer/internal/chain"
	"github.com/pkrlabs/pkr-issuer/internal/handler"
	"github.com/pkrlabs/pkr-issuer/internal/repository"
	"github.com/pkrlabs/pkr-issuer/internal/service"
	"github.com/pkrlabs/pkr-issuer/internal/wallet"
	"github.com/pkrlabs/pkr-issuer/utils"
)

func main() {
	logger := utils.InitLogger()
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	database, err := db.ConnectDb(cfg.DBURL, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}

	repo := repository.NewRepository(database, logger)
	chainClient := chain.NewStub(database, logger)
	walletClient := wallet.NewStub(database, logger)

	svc := service.NewService(repo, chainClient, walletClient, &cfg, logger)
	if _, _, err := svc.SeedDemoUser(context.Background()); err != nil {
		logger.Fatal("Failed to seed demo identity: ", err)
	}

	router := gin.Default()
	handler.NewHandler(svc, &cfg, logger).RegisterRoutes(router)

	logger.Infof("🚀 Listening on %s", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal(err)
	}
}
