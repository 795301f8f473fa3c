package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/persistence"
)

func newSummary(t *testing.T, id, number string, status invoice.Status) *invoice.InvoiceSummary {
	t.Helper()
	s, err := invoice.NewInvoiceSummary(id, number)
	require.NoError(t, err)
	s.Status = status
	s.TotalAmount = decimal.RequireFromString("88.00")
	s.Selections["12345678"] = invoice.Selection{IsRegistered: true, USCFStatus: "renewing", Section: "K-12"}
	return s
}

func TestPersistence_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewTestDB(t)
	ctx := context.Background()
	registrants := persistence.NewGormRegistrantRepository(testDB.DB)
	summaries := persistence.NewGormInvoiceSummaryRepository(testDB.DB)
	changeRequests := persistence.NewGormChangeRequestRepository(testDB.DB)

	t.Run("migrations are at the latest version", func(t *testing.T) {
		version, dirty, err := testDB.Migrator.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(3), version)
		assert.False(t, dirty)
	})

	t.Run("registrant history round trips through jsonb", func(t *testing.T) {
		r, err := registrant.NewRegistrant("12345678", "12345678", registrant.Observation{
			FirstName: "José",
			LastName:  "Peña",
			School:    "Lamar High School",
			District:  "Houston ISD",
		}, "External Import")
		require.NoError(t, err)
		require.NoError(t, registrants.Save(ctx, r))

		found, err := registrants.FindByID(ctx, "12345678")
		require.NoError(t, err)
		require.Len(t, found.History, 1)
		assert.Equal(t, "External Import", found.History[0].Editor)

		byName, err := registrants.FindByNameKey(ctx, registrant.NameKey("JOSE", "PENA"))
		require.NoError(t, err)
		require.Len(t, byName, 1)
	})

	t.Run("summary payments round trip with exact decimals", func(t *testing.T) {
		s := newSummary(t, "inv_1", "1001", invoice.StatusPartiallyPaid)
		s.PaymentHistory = append(s.PaymentHistory, invoice.PaymentEntry{
			ID:     "local-1",
			Amount: decimal.RequireFromString("40.01"),
			Method: invoice.PaymentMethodCheck,
			Date:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			Source: invoice.PaymentSourceLocal,
		})
		s.TotalPaid = decimal.RequireFromString("40.01")
		require.NoError(t, summaries.Save(ctx, s))

		found, err := summaries.FindByID(ctx, "inv_1")
		require.NoError(t, err)
		assert.True(t, found.TotalPaid.Equal(decimal.RequireFromString("40.01")))
		assert.Equal(t, s.Selections, found.Selections)
		require.Len(t, found.PaymentHistory, 1)
	})

	t.Run("open summaries exclude terminal statuses", func(t *testing.T) {
		for i, st := range []invoice.Status{invoice.StatusPaid, invoice.StatusUnpaid, invoice.StatusVoided} {
			require.NoError(t, summaries.Save(ctx, newSummary(t, fmt.Sprintf("inv_open_%d", i), fmt.Sprintf("20%02d", i), st)))
		}

		open, err := summaries.FindOpen(ctx, shared.Filter{Page: 1, PageSize: 10, OrderBy: "invoice_number", OrderDir: "asc"})
		require.NoError(t, err)
		numbers := make([]string, 0, len(open))
		for _, s := range open {
			numbers = append(numbers, s.InvoiceNumber)
		}
		assert.ElementsMatch(t, []string{"1001", "2001"}, numbers)
	})

	t.Run("stale change request write is a concurrency conflict", func(t *testing.T) {
		cr, err := invoice.NewChangeRequest("inv_1", "José Peña", invoice.RequestTypeWithdrawal, "Withdraw José Peña", "coach@example.com")
		require.NoError(t, err)
		require.NoError(t, changeRequests.Save(ctx, cr))

		first, err := changeRequests.FindByID(ctx, cr.ID)
		require.NoError(t, err)
		second, err := changeRequests.FindByID(ctx, cr.ID)
		require.NoError(t, err)

		require.NoError(t, first.Deny("director", time.Now()))
		require.NoError(t, changeRequests.SaveWithLock(ctx, first))
		require.NoError(t, second.Deny("other", time.Now()))
		err = changeRequests.SaveWithLock(ctx, second)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("transaction scope rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		scope := persistence.NewGormTransactionScope(testDB.DB)
		err := scope.Execute(ctx, func(repos reconcile.TransactionalRepositories) error {
			if err := repos.SummaryRepo().Save(ctx, newSummary(t, "inv_tx", "3001", invoice.StatusUnpaid)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = summaries.FindByID(ctx, "inv_tx")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("migrations roll back and reapply", func(t *testing.T) {
		require.NoError(t, testDB.Migrator.Down())
		version, _, err := testDB.Migrator.Version()
		require.NoError(t, err)
		assert.Zero(t, version)

		require.NoError(t, testDB.Migrator.Up())
		_, err = summaries.FindByID(ctx, "inv_1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
