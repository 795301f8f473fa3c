package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Status represents the canonical status of an invoice
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPublished         Status = "PUBLISHED"
	StatusUnpaid            Status = "UNPAID"
	StatusPartiallyPaid     Status = "PARTIALLY_PAID"
	StatusPaid              Status = "PAID"
	StatusCanceled          Status = "CANCELED"
	StatusVoided            Status = "VOIDED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
	StatusFailed            Status = "FAILED"
)

// progressRank orders the main payment line. Side states have no rank.
var progressRank = map[Status]int{
	StatusDraft:         0,
	StatusPublished:     1,
	StatusUnpaid:        1,
	StatusPartiallyPaid: 2,
	StatusPaid:          3,
}

// processorAliases maps billing-service statuses that have no local
// counterpart onto the closest local state
var processorAliases = map[string]Status{
	"SCHEDULED":       StatusPublished,
	"PAYMENT_PENDING": StatusUnpaid,
}

// ParseStatus converts a processor-reported status string. Unknown or empty
// values read as UNPAID.
func ParseStatus(s string) Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	if st := Status(s); st.IsValid() {
		return st
	}
	if st, ok := processorAliases[s]; ok {
		return st
	}
	return StatusUnpaid
}

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusUnpaid, StatusPartiallyPaid, StatusPaid,
		StatusCanceled, StatusVoided, StatusRefunded, StatusPartiallyRefunded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCanceled || s == StatusVoided
}

// IsSideState reports whether s is reachable only as a side transition
func (s Status) IsSideState() bool {
	switch s {
	case StatusCanceled, StatusVoided, StatusRefunded, StatusPartiallyRefunded, StatusFailed:
		return true
	}
	return false
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether moving from s to next is allowed. Terminal
// states are final, side states are reachable from any non-terminal state and
// the main line only moves forward.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	if s == next || next.IsSideState() {
		return true
	}
	from, fromRanked := progressRank[s]
	to := progressRank[next]
	if !fromRanked {
		return next != StatusDraft
	}
	return to >= from
}

// DeriveStatus computes an invoice's status from its totals and the status
// the processor last reported. Processor side states win; otherwise paid in
// full is PAID, anything paid is PARTIALLY_PAID and the result never ranks
// below the processor's own status.
func DeriveStatus(totalInvoiced, totalPaid decimal.Decimal, processor Status) Status {
	if !processor.IsValid() {
		processor = StatusUnpaid
	}
	if processor.IsSideState() {
		return processor
	}

	derived := processor
	switch {
	case totalPaid.GreaterThanOrEqual(totalInvoiced):
		derived = StatusPaid
	case totalPaid.IsPositive():
		derived = StatusPartiallyPaid
	}

	if progressRank[derived] < progressRank[processor] {
		return processor
	}
	return derived
}
