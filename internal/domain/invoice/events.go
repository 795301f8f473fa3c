package invoice

import (
	"github.com/google/uuid"

	"github.com/chessreg/backend/internal/domain/shared"
)

// Event type constants
const (
	EventTypeInvoiceSuperseded    = "invoice.superseded"
	EventTypeChangeRequestDenied  = "change_request.denied"
	EventTypeInvoiceStatusChanged = "invoice.status_changed"
)

// InvoiceSupersededEvent is published after a replacement invoice is committed
type InvoiceSupersededEvent struct {
	shared.BaseDomainEvent
	OriginalInvoiceID string    `json:"original_invoice_id"`
	SuccessorID       string    `json:"successor_id"`
	SuccessorNumber   string    `json:"successor_number"`
	ChangeRequestID   uuid.UUID `json:"change_request_id"`
}

// NewInvoiceSupersededEvent creates a new InvoiceSupersededEvent
func NewInvoiceSupersededEvent(original, successor *InvoiceSummary, requestID uuid.UUID) *InvoiceSupersededEvent {
	return &InvoiceSupersededEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeInvoiceSuperseded, AggregateTypeInvoiceSummary, original.ID),
		OriginalInvoiceID: original.ID,
		SuccessorID:       successor.ID,
		SuccessorNumber:   successor.InvoiceNumber,
		ChangeRequestID:   requestID,
	}
}

// ChangeRequestDeniedEvent is published when a change request is denied
type ChangeRequestDeniedEvent struct {
	shared.BaseDomainEvent
	RequestID uuid.UUID `json:"request_id"`
	InvoiceID string    `json:"invoice_id"`
	DeniedBy  string    `json:"denied_by"`
}

// NewChangeRequestDeniedEvent creates a new ChangeRequestDeniedEvent
func NewChangeRequestDeniedEvent(cr *ChangeRequest) *ChangeRequestDeniedEvent {
	return &ChangeRequestDeniedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeChangeRequestDenied, AggregateTypeChangeRequest, cr.ID.String()),
		RequestID:       cr.ID,
		InvoiceID:       cr.InvoiceID,
		DeniedBy:        cr.ApprovedBy,
	}
}

// InvoiceStatusChangedEvent is published when a refresh moves an invoice to a new status
type InvoiceStatusChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceID string `json:"invoice_id"`
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
}

// NewInvoiceStatusChangedEvent creates a new InvoiceStatusChangedEvent
func NewInvoiceStatusChangedEvent(s *InvoiceSummary, old Status) *InvoiceStatusChangedEvent {
	return &InvoiceStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceStatusChanged, AggregateTypeInvoiceSummary, s.ID),
		InvoiceID:       s.ID,
		OldStatus:       old,
		NewStatus:       s.Status,
	}
}
