package invoice

import (
	"context"

	"github.com/google/uuid"

	"github.com/chessreg/backend/internal/domain/shared"
)

// SummaryRepository defines the interface for invoice summary persistence
type SummaryRepository interface {
	// FindByID finds a summary by its external invoice id
	FindByID(ctx context.Context, id string) (*InvoiceSummary, error)

	// FindOpen finds summaries whose status is not terminal
	FindOpen(ctx context.Context, filter shared.Filter) ([]*InvoiceSummary, error)

	// Save creates or updates a summary
	Save(ctx context.Context, s *InvoiceSummary) error
}

// ChangeRequestRepository defines the interface for change request persistence
type ChangeRequestRepository interface {
	// FindByID finds a change request by id
	FindByID(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)

	// Save creates or updates a change request
	Save(ctx context.Context, cr *ChangeRequest) error

	// SaveWithLock updates a change request only if its stored version is
	// one behind cr.Version
	SaveWithLock(ctx context.Context, cr *ChangeRequest) error
}
