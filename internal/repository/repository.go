package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pkrlabs/pkr-issuer/utils"
)

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// handle returns the transaction when one is in flight, else the base db.
func (r *Repository) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// forUpdate adds a FOR UPDATE row lock. SQLite (used in tests) has no such
// clause and serializes writers on its own.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *Repository) BeginTransaction(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		r.logger.Errorf("Failed to start transaction: %v", tx.Error)
		return nil, tx.Error
	}
	return tx, nil
}

func (r *Repository) Commit(tx *gorm.DB) error {
	if err := tx.Commit().Error; err != nil {
		r.logger.Errorf("Failed to commit transaction: %v", err)
		return err
	}
	return nil
}

func (r *Repository) Rollback(tx *gorm.DB) {
	_ = tx.Rollback().Error
}
