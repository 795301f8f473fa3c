// Package reconcile imports external billing records into the local store
// and keeps invoice payment state and roster changes consistent with the
// billing service.
package reconcile

import (
	"context"

	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
)

// TransactionScope provides transactional access to the reconciliation repositories.
// Everything written through the repositories handed to fn is committed or
// rolled back as one unit.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type TransactionalRepositories interface {
	// RegistrantRepo returns the registrant repository scoped to the current transaction
	RegistrantRepo() registrant.Repository
	// SummaryRepo returns the invoice summary repository scoped to the current transaction
	SummaryRepo() invoice.SummaryRepository
	// ChangeRequestRepo returns the change request repository scoped to the current transaction
	ChangeRequestRepo() invoice.ChangeRequestRepository
}
