package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chessreg/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeInvoiceSummary = "InvoiceSummary"
	AggregateTypeChangeRequest  = "ChangeRequest"
)

// InvoiceSummary is the reconciled local record of one external invoice
type InvoiceSummary struct {
	shared.BaseAggregateRoot
	ID                  string
	InvoiceNumber       string
	Title               string
	OrderID             string
	CustomerID          string
	School              string
	District            string
	PurchaserName       string
	PurchaserEmail      string
	Selections          Selections
	BaseRegistrationFee decimal.Decimal
	TotalAmount         decimal.Decimal
	TotalPaid           decimal.Decimal
	Status              Status
	PaymentHistory      []PaymentEntry
	PublicURL           string
	PreviousVersionID   string
	SupersededByID      string
	CancellationNote    string
}

// NewInvoiceSummary creates a summary for an external invoice id
func NewInvoiceSummary(id, number string) (*InvoiceSummary, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_ID", "Invoice id cannot be empty")
	}
	return &InvoiceSummary{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		ID:                  id,
		InvoiceNumber:       number,
		Selections:          make(Selections),
		BaseRegistrationFee: decimal.Zero,
		TotalAmount:         decimal.Zero,
		TotalPaid:           decimal.Zero,
		Status:              StatusUnpaid,
		PaymentHistory:      make([]PaymentEntry, 0),
	}, nil
}

// BalanceDue returns the unpaid amount, never negative
func (s *InvoiceSummary) BalanceDue() decimal.Decimal {
	due := s.TotalAmount.Sub(s.TotalPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// MergeImport folds a freshly imported shape of the same external invoice
// into the stored record. Externally owned fields are refreshed; the payment
// history, locally enriched selection details, supersession links and a
// terminal local status survive. It reports whether anything changed.
func (s *InvoiceSummary) MergeImport(fresh *InvoiceSummary) bool {
	changed := false
	setStr := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	setDec := func(dst *decimal.Decimal, v decimal.Decimal) {
		if !dst.Equal(v) {
			*dst = v
			changed = true
		}
	}

	setStr(&s.InvoiceNumber, fresh.InvoiceNumber)
	setStr(&s.Title, fresh.Title)
	setStr(&s.OrderID, fresh.OrderID)
	setStr(&s.CustomerID, fresh.CustomerID)
	setStr(&s.School, fresh.School)
	setStr(&s.District, fresh.District)
	setStr(&s.PurchaserName, fresh.PurchaserName)
	setStr(&s.PurchaserEmail, fresh.PurchaserEmail)
	setStr(&s.PublicURL, fresh.PublicURL)
	setDec(&s.BaseRegistrationFee, fresh.BaseRegistrationFee)
	setDec(&s.TotalAmount, fresh.TotalAmount)

	if !s.Status.IsTerminal() {
		if next := DeriveStatus(s.TotalAmount, s.TotalPaid, fresh.Status); next != s.Status {
			s.Status = next
			changed = true
		}
	}

	merged := s.Selections.MergeImported(fresh.Selections)
	if !merged.Equal(s.Selections) {
		s.Selections = merged
		changed = true
	}

	if changed {
		s.Touch()
	}
	return changed
}

// ApplyReconciliation records a merged payment history and the status
// derived from it. A terminal local status is kept as is.
func (s *InvoiceSummary) ApplyReconciliation(result MergeResult, processorStatus Status) {
	s.PaymentHistory = result.History
	s.TotalPaid = result.TotalPaid
	if !s.Status.IsTerminal() {
		s.Status = DeriveStatus(s.TotalAmount, s.TotalPaid, processorStatus)
	}
	s.Touch()
}

// Replacement describes the invoice issued in place of a superseded one
type Replacement struct {
	InvoiceID     string
	InvoiceNumber string
	PublicURL     string
	Status        Status
	TotalAmount   decimal.Decimal
}

// Supersede cancels the summary in favor of its replacement
func (s *InvoiceSummary) Supersede(r Replacement, at time.Time) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Invoice %s is %s and cannot be superseded", s.InvoiceNumber, s.Status))
	}
	s.Status = StatusCanceled
	s.SupersededByID = r.InvoiceID
	s.CancellationNote = fmt.Sprintf("Superseded by invoice #%s on %s", r.InvoiceNumber, at.Format(time.RFC3339))
	s.UpdatedAt = at
	s.IncrementVersion()
	return nil
}

// Successor builds the summary of the replacement invoice. Everything except
// identity, number, url, status, total, selections and timestamps is carried
// over from s.
func (s *InvoiceSummary) Successor(r Replacement, selections Selections) *InvoiceSummary {
	history := make([]PaymentEntry, len(s.PaymentHistory))
	copy(history, s.PaymentHistory)

	status := r.Status
	if !status.IsValid() {
		status = StatusUnpaid
	}
	return &InvoiceSummary{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		ID:                  r.InvoiceID,
		InvoiceNumber:       r.InvoiceNumber,
		Title:               s.Title,
		OrderID:             s.OrderID,
		CustomerID:          s.CustomerID,
		School:              s.School,
		District:            s.District,
		PurchaserName:       s.PurchaserName,
		PurchaserEmail:      s.PurchaserEmail,
		Selections:          selections.Clone(),
		BaseRegistrationFee: s.BaseRegistrationFee,
		TotalAmount:         r.TotalAmount,
		TotalPaid:           s.TotalPaid,
		Status:              status,
		PaymentHistory:      history,
		PublicURL:           r.PublicURL,
		PreviousVersionID:   s.ID,
	}
}
