package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/shared"
)

// ErrorKind classifies a reconciliation failure
type ErrorKind string

const (
	// KindConfiguration is a missing or rejected credential; nothing can run until fixed
	KindConfiguration ErrorKind = "configuration"
	// KindTransient is a network, timeout or throttling failure that may pass on retry
	KindTransient ErrorKind = "transient"
	// KindData is a record that needs human correction before it can be processed
	KindData ErrorKind = "data"
	// KindConsistency is a request that references records that cannot be resolved
	KindConsistency ErrorKind = "consistency"
	// KindInfo is an expected outcome reported through the error list
	KindInfo ErrorKind = "info"
)

// Data errors raised while importing one invoice
var (
	ErrMissingOrderID    = errors.New("invoice has no order id")
	ErrMissingCustomerID = errors.New("invoice has no customer id")
)

// msgNoInvoicesInRange is reported when a range filter matches nothing
const msgNoInvoicesInRange = "No invoices found in the specified range."

// ItemError is one itemized failure of a batch operation
type ItemError struct {
	InvoiceNumber string    `json:"invoiceNumber,omitempty"`
	Kind          ErrorKind `json:"kind"`
	Retryable     bool      `json:"retryable"`
	Message       string    `json:"message"`
}

// Classify maps an error onto the failure taxonomy
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, integration.ErrBillingNotConfigured),
		errors.Is(err, integration.ErrAuthFailed):
		return KindConfiguration
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, integration.ErrServiceUnavailable),
		errors.Is(err, integration.ErrRateLimited),
		errors.Is(err, shared.ErrLockTimeout),
		errors.Is(err, shared.ErrConcurrencyConflict):
		return KindTransient
	case errors.Is(err, shared.ErrUnresolvable):
		return KindConsistency
	}
	var statusErr *integration.StatusError
	if errors.As(err, &statusErr) && statusErr.Retryable() {
		return KindTransient
	}
	return KindData
}

// IsRetryable reports whether an operation that failed with err may succeed when retried
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

func newItemError(invoiceNumber string, err error) ItemError {
	kind := Classify(err)
	return ItemError{
		InvoiceNumber: invoiceNumber,
		Kind:          kind,
		Retryable:     kind == KindTransient,
		Message:       fmt.Sprintf("Invoice #%s: %v", invoiceNumber, err),
	}
}

func unresolvable(format string, args ...any) error {
	return shared.NewDomainError(shared.ErrUnresolvable.Code, fmt.Sprintf(format, args...))
}
