package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/shared"
)

func TestClassifyLineItem(t *testing.T) {
	tests := []struct {
		name             string
		itemName         string
		wantRegistration bool
		wantMembership   bool
	}{
		{"registration", "Tournament Registration", true, false},
		{"uscf", "USCF Membership", false, true},
		{"membership only", "Annual membership", false, true},
		{"both", "Registration + USCF", true, true},
		{"neither", "T-Shirt", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := classifyLineItem(tt.itemName)
			assert.Equal(t, tt.wantRegistration, c.has(categoryRegistration))
			assert.Equal(t, tt.wantMembership, c.has(categoryMembership))
		})
	}
}

func TestCandidateTexts(t *testing.T) {
	li := integration.LineItem{
		Name:          "USCF Membership (Ana Ruiz NEW)",
		Note:          "  Juan Perez 12345678 ",
		VariationName: "",
	}
	assert.Equal(t, []string{"Juan Perez 12345678", "Ana Ruiz NEW"}, candidateTexts(li))
	assert.Empty(t, candidateTexts(integration.LineItem{Name: "Tournament Registration"}))
}

func TestReadOrderLines(t *testing.T) {
	order := &integration.Order{LineItems: []integration.LineItem{
		{Name: "Tournament Registration", Note: "Juan Perez 12345678", Quantity: decimal.NewFromInt(1), TotalMoney: decimal.NewFromInt(35)},
		{Name: "Late Registration", Note: "Ana Ruiz\nLeo Diaz 87654321", Quantity: decimal.NewFromInt(2), TotalMoney: decimal.NewFromInt(90)},
		{Name: "USCF Membership", Note: "Ana Ruiz NEW", Quantity: decimal.NewFromInt(1), TotalMoney: decimal.NewFromInt(24)},
	}}

	lines := readOrderLines(order)

	assert.True(t, decimal.NewFromInt(45).Equal(lines.baseFee), "base fee is the largest per-unit registration fee")
	require.Len(t, lines.sightings, 4)
	assert.Equal(t, []string{"12345678", "87654321"}, lines.stableIDs())

	membership := lines.sightings[3]
	assert.Equal(t, "Ana", membership.candidate.FirstName)
	assert.False(t, membership.candidate.HasStableID())
	assert.Equal(t, registrant.MembershipNew, membership.selection().USCFStatus)
	assert.False(t, membership.selection().IsRegistered)
	assert.True(t, lines.sightings[0].selection().IsRegistered)
	assert.Empty(t, lines.sightings[0].selection().USCFStatus)
}

func TestUnitFee_ZeroQuantity(t *testing.T) {
	fee := unitFee(integration.LineItem{Quantity: decimal.Zero, TotalMoney: decimal.NewFromInt(30)})
	assert.True(t, decimal.NewFromInt(30).Equal(fee))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"timeout", fmt.Errorf("fetch order: %w", context.DeadlineExceeded), KindTransient},
		{"server error", &integration.StatusError{StatusCode: 502}, KindTransient},
		{"throttled", &integration.StatusError{StatusCode: 429}, KindTransient},
		{"lock timeout", shared.ErrLockTimeout, KindTransient},
		{"auth", &integration.StatusError{StatusCode: 401}, KindConfiguration},
		{"not configured", integration.ErrBillingNotConfigured, KindConfiguration},
		{"unresolvable", unresolvable("%s is not on invoice #%s", "Ana", "1"), KindConsistency},
		{"missing customer", ErrMissingCustomerID, KindData},
		{"bad request", &integration.StatusError{StatusCode: 400}, KindData},
		{"other", errors.New("boom"), KindData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestNewItemError(t *testing.T) {
	itemErr := newItemError("42", ErrMissingOrderID)
	assert.Equal(t, ItemError{
		InvoiceNumber: "42",
		Kind:          KindData,
		Retryable:     false,
		Message:       "Invoice #42: invoice has no order id",
	}, itemErr)
}
