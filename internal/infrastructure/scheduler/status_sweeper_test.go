package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/infrastructure/config"
	"github.com/chessreg/backend/internal/infrastructure/persistence"
	"github.com/chessreg/backend/tests/testutil"
)

type MockRefresher struct {
	mock.Mock
	calls atomic.Int64
}

func (m *MockRefresher) RefreshInvoiceStatus(ctx context.Context, invoiceID string) (*reconcile.StatusSnapshot, error) {
	m.calls.Add(1)
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.StatusSnapshot), args.Error(1)
}

func seedSummaries(t *testing.T, repo invoice.SummaryRepository, statuses ...invoice.Status) {
	t.Helper()
	for i, status := range statuses {
		s, err := invoice.NewInvoiceSummary(fmt.Sprintf("inv-%d", i+1), fmt.Sprint(i+1))
		require.NoError(t, err)
		s.TotalAmount = decimal.NewFromInt(50)
		s.Status = status
		require.NoError(t, repo.Save(context.Background(), s))
	}
}

func testSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:    true,
		Interval:   20 * time.Millisecond,
		Workers:    2,
		JobTimeout: time.Second,
		BatchSize:  2,
	}
}

func TestStatusSweeper_RunOnce(t *testing.T) {
	repo := persistence.NewGormInvoiceSummaryRepository(testutil.NewTestDB(t))
	seedSummaries(t, repo,
		invoice.StatusUnpaid,
		invoice.StatusPaid,
		invoice.StatusPartiallyPaid,
		invoice.StatusCanceled,
		invoice.StatusUnpaid,
		invoice.StatusPublished,
	)

	refresher := new(MockRefresher)
	refresher.On("RefreshInvoiceStatus", mock.Anything, "inv-1").Return(&reconcile.StatusSnapshot{Status: invoice.StatusPaid}, nil)
	refresher.On("RefreshInvoiceStatus", mock.Anything, "inv-3").Return(&reconcile.StatusSnapshot{Status: invoice.StatusPartiallyPaid}, nil)
	refresher.On("RefreshInvoiceStatus", mock.Anything, "inv-5").Return(nil, context.DeadlineExceeded)
	refresher.On("RefreshInvoiceStatus", mock.Anything, "inv-6").Return(&reconcile.StatusSnapshot{Status: invoice.StatusPublished}, nil)

	sweeper := NewStatusSweeper(testSweeperConfig(), repo, refresher, zap.NewNop())
	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Checked, "terminal invoices are skipped")
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, 1, result.Failed)
	refresher.AssertExpectations(t)
	refresher.AssertNotCalled(t, "RefreshInvoiceStatus", mock.Anything, "inv-2")
	refresher.AssertNotCalled(t, "RefreshInvoiceStatus", mock.Anything, "inv-4")
}

func TestStatusSweeper_RunOnce_RejectsOverlap(t *testing.T) {
	repo := persistence.NewGormInvoiceSummaryRepository(testutil.NewTestDB(t))
	seedSummaries(t, repo, invoice.StatusUnpaid)

	release := make(chan time.Time)
	refresher := new(MockRefresher)
	refresher.On("RefreshInvoiceStatus", mock.Anything, "inv-1").
		WaitUntil(release).
		Return(&reconcile.StatusSnapshot{Status: invoice.StatusUnpaid}, nil)

	sweeper := NewStatusSweeper(testSweeperConfig(), repo, refresher, zap.NewNop())
	done := make(chan error, 1)
	go func() {
		_, err := sweeper.RunOnce(context.Background())
		done <- err
	}()

	testutil.AssertEventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, err := sweeper.RunOnce(context.Background())
	assert.True(t, errors.Is(err, ErrSweepInProgress))

	close(release)
	assert.NoError(t, <-done)
}

func TestStatusSweeper_StartStop(t *testing.T) {
	repo := persistence.NewGormInvoiceSummaryRepository(testutil.NewTestDB(t))
	seedSummaries(t, repo, invoice.StatusUnpaid)

	refresher := new(MockRefresher)
	refresher.On("RefreshInvoiceStatus", mock.Anything, "inv-1").Return(&reconcile.StatusSnapshot{Status: invoice.StatusUnpaid}, nil)

	sweeper := NewStatusSweeper(testSweeperConfig(), repo, refresher, zap.NewNop())
	require.NoError(t, sweeper.Start(context.Background()))
	assert.True(t, sweeper.IsRunning())
	require.NoError(t, sweeper.Start(context.Background()), "second start is a no-op")

	testutil.AssertEventually(t, func() bool { return refresher.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(ctx))
	assert.False(t, sweeper.IsRunning())
}

func TestStatusSweeper_Disabled(t *testing.T) {
	cfg := testSweeperConfig()
	cfg.Enabled = false
	sweeper := NewStatusSweeper(cfg, nil, nil, nil)

	require.NoError(t, sweeper.Start(context.Background()))
	assert.False(t, sweeper.IsRunning())
	require.NoError(t, sweeper.Stop(context.Background()))
}

func TestSweeperConfig(t *testing.T) {
	cfg := SweeperConfigFrom(config.SweepConfig{Enabled: true, Interval: time.Minute})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, DefaultSweeperConfig().Workers, cfg.Workers)
	assert.NoError(t, cfg.Validate())

	cfg.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
