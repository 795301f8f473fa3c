package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/tests/testutil"
)

func TestGormInvoiceSummaryRepository_FindOpen_PostgresSQL(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormInvoiceSummaryRepository(mockDB.DB)

	mockDB.Mock.ExpectQuery(`SELECT \* FROM "invoice_summaries" WHERE status NOT IN \(\$1,\$2,\$3\) ORDER BY invoice_number`).
		WithArgs("PAID", "CANCELED", "VOIDED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_number", "status"}))

	open, err := repo.FindOpen(context.Background(), shared.Filter{OrderBy: "invoice_number", OrderDir: "asc"})

	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestGormInvoiceSummaryRepository_FindByID_DriverError(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormInvoiceSummaryRepository(mockDB.DB)

	mockDB.Mock.ExpectQuery(`SELECT \* FROM "invoice_summaries" WHERE id = \$1`).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.FindByID(context.Background(), "inv-9")

	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestGormChangeRequestRepository_FindByID_NoRows(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormChangeRequestRepository(mockDB.DB)

	mockDB.Mock.ExpectQuery(`SELECT \* FROM "change_requests" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, shared.ErrNotFound)
}
