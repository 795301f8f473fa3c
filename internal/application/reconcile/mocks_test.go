package reconcile_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/lock"
	"github.com/chessreg/backend/internal/infrastructure/persistence"
	"github.com/chessreg/backend/tests/testutil"
)

// =============================================================================
// Mock billing ports
// =============================================================================

type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) ListInvoices(ctx context.Context, cursor string) (*integration.InvoicePage, error) {
	args := m.Called(ctx, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.InvoicePage), args.Error(1)
}

func (m *MockBillingService) GetOrder(ctx context.Context, orderID string) (*integration.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

func (m *MockBillingService) GetCustomer(ctx context.Context, customerID string) (*integration.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Customer), args.Error(1)
}

func (m *MockBillingService) GetInvoice(ctx context.Context, invoiceID string) (*integration.ExternalInvoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ExternalInvoice), args.Error(1)
}

type MockPaymentProcessor struct {
	mock.Mock
}

func (m *MockPaymentProcessor) GetPaymentHistory(ctx context.Context, invoiceID string) (*integration.PaymentHistory, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PaymentHistory), args.Error(1)
}

type MockInvoiceCreator struct {
	mock.Mock
}

func (m *MockInvoiceCreator) CreateReplacementInvoice(ctx context.Context, req integration.ReplacementRequest) (*invoice.Replacement, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Replacement), args.Error(1)
}

// sequenceSuffixes issues S1, S2, ... so placeholder ids are predictable
type sequenceSuffixes struct {
	n atomic.Int64
}

func (s *sequenceSuffixes) Suffix() string {
	return fmt.Sprintf("S%d", s.n.Add(1))
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	registrants    *persistence.GormRegistrantRepository
	summaries      *persistence.GormInvoiceSummaryRepository
	changeRequests *persistence.GormChangeRequestRepository
	txScope        *persistence.GormTransactionScope
	locker         shared.KeyedLocker
	events         *testutil.RecordingPublisher
	billing        *MockBillingService
	processor      *MockPaymentProcessor
	creator        *MockInvoiceCreator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	return &fixture{
		registrants:    persistence.NewGormRegistrantRepository(db),
		summaries:      persistence.NewGormInvoiceSummaryRepository(db),
		changeRequests: persistence.NewGormChangeRequestRepository(db),
		txScope:        persistence.NewGormTransactionScope(db),
		locker:         lock.NewMemoryLocker(),
		events:         testutil.NewRecordingPublisher(),
		billing:        new(MockBillingService),
		processor:      new(MockPaymentProcessor),
		creator:        new(MockInvoiceCreator),
	}
}

func (f *fixture) importService(workers int) *reconcile.ImportService {
	return reconcile.NewImportService(reconcile.ImportServiceConfig{
		Billing:           f.billing,
		Registrants:       f.registrants,
		Summaries:         f.summaries,
		TxScope:           f.txScope,
		Locker:            f.locker,
		EventPublisher:    f.events,
		IDs:               &sequenceSuffixes{},
		Logger:            zap.NewNop(),
		Workers:           workers,
		Actor:             "External Import",
		PlaceholderPrefix: "TEMP",
	})
}

func (f *fixture) statusService() *reconcile.StatusService {
	return reconcile.NewStatusService(reconcile.StatusServiceConfig{
		Processor:      f.processor,
		Summaries:      f.summaries,
		Locker:         f.locker,
		EventPublisher: f.events,
	})
}

func (f *fixture) supersessionService() *reconcile.SupersessionService {
	return reconcile.NewSupersessionService(reconcile.SupersessionServiceConfig{
		Creator:        f.creator,
		Registrants:    f.registrants,
		Summaries:      f.summaries,
		ChangeRequests: f.changeRequests,
		TxScope:        f.txScope,
		Locker:         f.locker,
		EventPublisher: f.events,
	})
}

// recordingLocker records every key set it is asked to lock
type recordingLocker struct {
	inner shared.KeyedLocker
	mu    sync.Mutex
	calls [][]string
}

func (l *recordingLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	l.mu.Lock()
	l.calls = append(l.calls, append([]string(nil), keys...))
	l.mu.Unlock()
	return l.inner.Lock(ctx, keys...)
}

func (l *recordingLocker) Calls() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.calls...)
}
