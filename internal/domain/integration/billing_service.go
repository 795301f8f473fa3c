package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chessreg/backend/internal/domain/invoice"
)

// ---------------------------------------------------------------------------
// Billing Errors
// ---------------------------------------------------------------------------

var (
	ErrBillingNotConfigured   = errors.New("integration: billing service not configured")
	ErrServiceUnavailable     = errors.New("integration: billing service temporarily unavailable")
	ErrRequestFailed          = errors.New("integration: billing request failed")
	ErrRateLimited            = errors.New("integration: billing service rate limited")
	ErrInvalidResponse        = errors.New("integration: invalid billing response")
	ErrAuthFailed             = errors.New("integration: billing authentication failed")
	ErrRecordNotFound         = errors.New("integration: billing record not found")
	ErrInvoiceCreationFailed  = errors.New("integration: replacement invoice could not be created")
	ErrInvalidReplacementSpec = errors.New("integration: invalid replacement invoice request")
)

// StatusError carries the HTTP status of a failed billing call. It unwraps to
// the sentinel matching the status class.
type StatusError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: HTTP %d", e.Unwrap(), e.StatusCode)
	}
	return fmt.Sprintf("%v: HTTP %d: %s", e.Unwrap(), e.StatusCode, e.Detail)
}

// Unwrap maps the status code to a sentinel error
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuthFailed
	case e.StatusCode == 404:
		return ErrRecordNotFound
	case e.StatusCode >= 500:
		return ErrServiceUnavailable
	default:
		return ErrRequestFailed
	}
}

// Retryable reports whether the call may succeed when retried
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ---------------------------------------------------------------------------
// Validated payloads
// ---------------------------------------------------------------------------

// ExternalInvoice is an invoice as listed by the billing service
type ExternalInvoice struct {
	ID         string
	Number     string
	Title      string
	OrderID    string
	CustomerID string
	Status     invoice.Status
	PublicURL  string
	Version    int64
	CreatedAt  time.Time
}

// InvoicePage is one page of the invoice listing
type InvoicePage struct {
	Invoices []ExternalInvoice
	Cursor   string
}

// LineItem is one line of an order
type LineItem struct {
	UID           string
	Name          string
	Note          string
	VariationName string
	Quantity      decimal.Decimal
	TotalMoney    decimal.Decimal
}

// Order is the order behind an invoice
type Order struct {
	ID         string
	LineItems  []LineItem
	TotalMoney decimal.Decimal
}

// Customer is the purchaser record of an invoice
type Customer struct {
	ID           string
	CompanyName  string
	EmailAddress string
	GivenName    string
	FamilyName   string
	Nickname     string
	PhoneNumber  string
}

// DisplayName returns the purchaser's name, falling back to the nickname
func (c *Customer) DisplayName() string {
	name := c.GivenName
	if c.FamilyName != "" {
		if name != "" {
			name += " "
		}
		name += c.FamilyName
	}
	if name == "" {
		return c.Nickname
	}
	return name
}

// PaymentHistory is what the processor reports for one invoice
type PaymentHistory struct {
	Status      invoice.Status
	TotalPaid   decimal.Decimal
	TotalAmount decimal.Decimal
	Payments    []invoice.ProcessorPayment
}

// RosterLine is one registrant on a replacement invoice
type RosterLine struct {
	RegistrantID string
	Name         string
	Section      string
	USCFStatus   string
	IsRegistered bool
}

// ReplacementRequest asks the invoice-creation path for a new invoice
type ReplacementRequest struct {
	OriginalInvoiceID   string
	CustomerID          string
	Title               string
	Roster              []RosterLine
	BaseRegistrationFee decimal.Decimal
	MembershipFee       decimal.Decimal
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// BillingService reads invoices, orders and customers from the billing service
type BillingService interface {
	// ListInvoices returns one page of invoices; an empty cursor starts at the beginning
	ListInvoices(ctx context.Context, cursor string) (*InvoicePage, error)
	// GetOrder returns the order with the given id
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// GetCustomer returns the customer with the given id
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	// GetInvoice returns the invoice with the given id
	GetInvoice(ctx context.Context, invoiceID string) (*ExternalInvoice, error)
}

// PaymentProcessor reports payments collected against an invoice
type PaymentProcessor interface {
	GetPaymentHistory(ctx context.Context, invoiceID string) (*PaymentHistory, error)
}

// InvoiceCreator issues replacement invoices
type InvoiceCreator interface {
	CreateReplacementInvoice(ctx context.Context, req ReplacementRequest) (*invoice.Replacement, error)
}
