package db

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/pkrlabs/pkr-issuer/internal/chain"
	"github.com/pkrlabs/pkr-issuer/internal/models"
	"github.com/pkrlabs/pkr-issuer/internal/wallet"
	"github.com/pkrlabs/pkr-issuer/utils"
)

func ConnectDb(url string, log *utils.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  url,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Error),
		// Unique-constraint violations must surface as gorm.ErrDuplicatedKey:
		// idempotency-race recovery depends on it.
		TranslateError: true,
	})

	if err != nil {
		return nil, err
	}

	log.Info("✅ Database connection successfully")

	log.Info("📦 Setting database connection pool...")
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(200)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func Migrate(db *gorm.DB, trigger bool, log *utils.Logger) error {

	if trigger {
		log.Info("📦 Migrating database...")
		tables := []interface{}{
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
		}

		if err := db.AutoMigrate(tables...); err != nil {
			log.Errorf("✖ Failed to migrate database: %v", err)
			return err
		}
	}

	log.Info("✅ Database migration complete")
	return nil
}
