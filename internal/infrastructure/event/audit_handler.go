package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/shared"
)

// AuditLogHandler writes one structured log line per reconciliation event.
// It is the default subscriber; notification delivery can subscribe next to it.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates a new AuditLogHandler
func NewAuditLogHandler(logger *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: logger.Named("audit")}
}

// EventTypes returns the event types the handler logs
func (h *AuditLogHandler) EventTypes() []string {
	return []string{
		registrant.EventTypeRegistrantCreated,
		invoice.EventTypeInvoiceSuperseded,
		invoice.EventTypeInvoiceStatusChanged,
		invoice.EventTypeChangeRequestDenied,
	}
}

// Handle logs the event
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *registrant.RegistrantCreatedEvent:
		fields = append(fields,
			zap.String("full_name", e.FullName),
			zap.Bool("placeholder", e.Placeholder))
	case *invoice.InvoiceSupersededEvent:
		fields = append(fields,
			zap.String("successor_id", e.SuccessorID),
			zap.String("successor_number", e.SuccessorNumber),
			zap.String("change_request_id", e.ChangeRequestID.String()))
	case *invoice.InvoiceStatusChangedEvent:
		fields = append(fields,
			zap.String("old_status", e.OldStatus.String()),
			zap.String("new_status", e.NewStatus.String()))
	case *invoice.ChangeRequestDeniedEvent:
		fields = append(fields,
			zap.String("invoice_id", e.InvoiceID),
			zap.String("denied_by", e.DeniedBy))
	}

	h.logger.Info("domain event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
