package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/shared"
)

const defaultRefreshTimeout = 20 * time.Second

// StatusSnapshot is the reconciled payment state of one invoice
type StatusSnapshot struct {
	InvoiceID      string                 `json:"invoiceId"`
	InvoiceNumber  string                 `json:"invoiceNumber"`
	Status         invoice.Status         `json:"status"`
	TotalPaid      decimal.Decimal        `json:"totalPaid"`
	TotalAmount    decimal.Decimal        `json:"totalAmount"`
	BalanceDue     decimal.Decimal        `json:"balanceDue"`
	PaymentHistory []invoice.PaymentEntry `json:"paymentHistory"`
}

func newStatusSnapshot(s *invoice.InvoiceSummary) *StatusSnapshot {
	return &StatusSnapshot{
		InvoiceID:      s.ID,
		InvoiceNumber:  s.InvoiceNumber,
		Status:         s.Status,
		TotalPaid:      s.TotalPaid,
		TotalAmount:    s.TotalAmount,
		BalanceDue:     s.BalanceDue(),
		PaymentHistory: s.PaymentHistory,
	}
}

// StatusServiceConfig holds the dependencies of StatusService
type StatusServiceConfig struct {
	Processor      integration.PaymentProcessor
	Summaries      invoice.SummaryRepository
	Locker         shared.KeyedLocker
	EventPublisher shared.EventPublisher
	Logger         *zap.Logger
	Timeout        time.Duration
}

// StatusService merges processor payments into invoice summaries and derives
// their status. Refreshes of one invoice are serialized through the locker.
type StatusService struct {
	processor      integration.PaymentProcessor
	summaries      invoice.SummaryRepository
	locker         shared.KeyedLocker
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	timeout        time.Duration
}

// NewStatusService creates a new StatusService
func NewStatusService(cfg StatusServiceConfig) *StatusService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &StatusService{
		processor:      cfg.Processor,
		summaries:      cfg.Summaries,
		locker:         cfg.Locker,
		eventPublisher: cfg.EventPublisher,
		logger:         logger,
		timeout:        timeout,
	}
}

// RefreshInvoiceStatus pulls the processor's payment history for an invoice,
// merges it into the stored history and stores the derived status
func (s *StatusService) RefreshInvoiceStatus(ctx context.Context, invoiceID string) (*StatusSnapshot, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Invoice id is required")
	}

	ctx, span := tracer.Start(ctx, "reconcile.RefreshInvoiceStatus")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID))

	snapshot, err := s.refresh(ctx, invoiceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("invoice.status", string(snapshot.Status)))
	return snapshot, nil
}

func (s *StatusService) refresh(ctx context.Context, invoiceID string) (*StatusSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock, err := s.locker.Lock(callCtx, lockKeyInvoice+invoiceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	summary, err := s.summaries.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	history, err := s.processor.GetPaymentHistory(callCtx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("payment history of invoice %s: %w", summary.InvoiceNumber, err)
	}

	result := invoice.MergePaymentHistory(summary.PaymentHistory, history.Payments, history.TotalPaid)
	oldStatus := summary.Status
	nextStatus := oldStatus
	if !oldStatus.IsTerminal() {
		nextStatus = invoice.DeriveStatus(summary.TotalAmount, result.TotalPaid, history.Status)
	}

	if nextStatus == oldStatus &&
		result.TotalPaid.Equal(summary.TotalPaid) &&
		sameHistory(result.History, summary.PaymentHistory) {
		return newStatusSnapshot(summary), nil
	}

	summary.ApplyReconciliation(result, history.Status)
	if err := s.summaries.Save(ctx, summary); err != nil {
		return nil, fmt.Errorf("save invoice summary: %w", err)
	}

	s.logger.Info("Invoice status refreshed",
		zap.String("invoice_id", summary.ID),
		zap.String("invoice_number", summary.InvoiceNumber),
		zap.String("old_status", oldStatus.String()),
		zap.String("new_status", summary.Status.String()),
		zap.String("total_paid", summary.TotalPaid.StringFixed(2)))

	if summary.Status != oldStatus && s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(ctx, invoice.NewInvoiceStatusChangedEvent(summary, oldStatus)); err != nil {
			s.logger.Warn("Failed to publish status change", zap.String("invoice_id", summary.ID), zap.Error(err))
		}
	}
	return newStatusSnapshot(summary), nil
}

func sameHistory(a, b []invoice.PaymentEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || !x.Amount.Equal(y.Amount) || x.Method != y.Method ||
			x.ProcessorPaymentID != y.ProcessorPaymentID || !x.Date.Equal(y.Date) ||
			x.Note != y.Note || x.Source != y.Source {
			return false
		}
	}
	return true
}
