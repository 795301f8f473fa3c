package invoice

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSource is the provenance of a payment entry
type PaymentSource string

const (
	PaymentSourceLocal     PaymentSource = "local"
	PaymentSourceProcessor PaymentSource = "processor"
)

// PaymentMethod identifies how a payment was made
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCheck      PaymentMethod = "check"
	PaymentMethodExternal   PaymentMethod = "external"
	PaymentMethodOther      PaymentMethod = "other"
)

// cardMatchTolerance is the amount difference under which a manually
// recorded card payment is taken to be the same as a processor payment
var cardMatchTolerance = decimal.New(1, -2)

// PaymentEntry is one payment in an invoice's history. Entries are immutable
// once merged.
type PaymentEntry struct {
	ID                 string          `json:"id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Method             PaymentMethod   `json:"method"`
	ProcessorPaymentID string          `json:"processorPaymentId,omitempty"`
	Date               time.Time       `json:"date"`
	Note               string          `json:"note,omitempty"`
	Source             PaymentSource   `json:"source"`
}

// ProcessorPayment is a payment as reported by the payment processor
type ProcessorPayment struct {
	ID     string
	Amount decimal.Decimal
	Method PaymentMethod
	Date   time.Time
}

// MergeResult is the reconciled payment history of one invoice
type MergeResult struct {
	History   []PaymentEntry
	TotalPaid decimal.Decimal
}

// MergePaymentHistory combines the stored history of an invoice with the
// payments reported by the processor. A processor payment is skipped when an
// entry already carries its id, or when an unlinked local card payment is
// within one cent of it. The result is sorted by date and TotalPaid is the larger of the
// processor's own total and the sum of the merged entries.
//
// The function is pure: neither input is modified and equal inputs always
// produce equal output.
func MergePaymentHistory(local []PaymentEntry, processor []ProcessorPayment, processorTotalPaid decimal.Decimal) MergeResult {
	history := make([]PaymentEntry, len(local), len(local)+len(processor))
	copy(history, local)

	knownIDs := make(map[string]bool, len(local))
	for _, e := range local {
		if e.ProcessorPaymentID != "" {
			knownIDs[e.ProcessorPaymentID] = true
		}
	}

	incoming := make([]ProcessorPayment, len(processor))
	copy(incoming, processor)
	sort.SliceStable(incoming, func(i, j int) bool {
		if !incoming[i].Date.Equal(incoming[j].Date) {
			return incoming[i].Date.Before(incoming[j].Date)
		}
		return incoming[i].ID < incoming[j].ID
	})

	for _, p := range incoming {
		if p.ID != "" && knownIDs[p.ID] {
			continue
		}
		if hasUnlinkedCardPayment(local, p.Amount) {
			continue
		}
		history = append(history, PaymentEntry{
			ID:                 p.ID,
			Amount:             p.Amount,
			Method:             p.Method,
			ProcessorPaymentID: p.ID,
			Date:               p.Date,
			Source:             PaymentSourceProcessor,
		})
		if p.ID != "" {
			knownIDs[p.ID] = true
		}
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Date.Before(history[j].Date)
	})

	sum := decimal.Zero
	for _, e := range history {
		sum = sum.Add(e.Amount)
	}

	return MergeResult{
		History:   history,
		TotalPaid: decimal.Max(processorTotalPaid, sum),
	}
}

func hasUnlinkedCardPayment(local []PaymentEntry, amount decimal.Decimal) bool {
	for _, e := range local {
		if e.Source == PaymentSourceProcessor || e.ProcessorPaymentID != "" {
			continue
		}
		if e.Method != PaymentMethodCreditCard {
			continue
		}
		if e.Amount.Sub(amount).Abs().LessThan(cardMatchTolerance) {
			return true
		}
	}
	return false
}
