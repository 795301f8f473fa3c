package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
)

// GormTransactionScope implements reconcile.TransactionScope using GORM
// transactions. Everything written through the repositories handed to fn
// commits together or not at all.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction. An error from fn rolls the
// transaction back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos reconcile.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// RegistrantRepo returns the registrant repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RegistrantRepo() registrant.Repository {
	return NewGormRegistrantRepository(r.tx)
}

// SummaryRepo returns the invoice summary repository scoped to the current transaction.
func (r *gormTransactionalRepositories) SummaryRepo() invoice.SummaryRepository {
	return NewGormInvoiceSummaryRepository(r.tx)
}

// ChangeRequestRepo returns the change request repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ChangeRequestRepo() invoice.ChangeRequestRepository {
	return NewGormChangeRequestRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ reconcile.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ reconcile.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
