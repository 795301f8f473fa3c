package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	d := decimal.NewFromInt

	tests := []struct {
		name      string
		invoiced  decimal.Decimal
		paid      decimal.Decimal
		processor Status
		expected  Status
	}{
		{"paid in full", d(100), d(100), StatusUnpaid, StatusPaid},
		{"overpaid", d(100), d(120), StatusUnpaid, StatusPaid},
		{"partially paid", d(100), d(40), StatusUnpaid, StatusPartiallyPaid},
		{"nothing paid keeps processor status", d(100), d(0), StatusUnpaid, StatusUnpaid},
		{"nothing paid on published invoice", d(100), d(0), StatusPublished, StatusPublished},
		{"never below processor status", d(100), d(40), StatusPaid, StatusPaid},
		{"processor refund wins", d(100), d(100), StatusRefunded, StatusRefunded},
		{"processor cancel wins", d(100), d(0), StatusCanceled, StatusCanceled},
		{"unknown processor status reads as unpaid", d(100), d(0), Status("WEIRD"), StatusUnpaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveStatus(tt.invoiced, tt.paid, tt.processor))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.True(t, StatusVoided.IsTerminal())
	assert.False(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusPartiallyPaid.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     Status
		to       Status
		expected bool
	}{
		{StatusDraft, StatusPublished, true},
		{StatusUnpaid, StatusPartiallyPaid, true},
		{StatusPartiallyPaid, StatusPaid, true},
		{StatusPartiallyPaid, StatusUnpaid, false},
		{StatusUnpaid, StatusCanceled, true},
		{StatusPartiallyPaid, StatusRefunded, true},
		{StatusPaid, StatusRefunded, false},
		{StatusCanceled, StatusUnpaid, false},
		{StatusFailed, StatusUnpaid, true},
		{StatusFailed, StatusDraft, false},
		{StatusUnpaid, Status("BOGUS"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusPaid, ParseStatus("paid"))
	assert.Equal(t, StatusPartiallyRefunded, ParseStatus("PARTIALLY_REFUNDED"))
	assert.Equal(t, StatusPublished, ParseStatus("SCHEDULED"))
	assert.Equal(t, StatusUnpaid, ParseStatus("PAYMENT_PENDING"))
	assert.Equal(t, StatusUnpaid, ParseStatus(""))
}
