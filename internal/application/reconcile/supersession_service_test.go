package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/shared"
)

// seedRoster stores Juan Perez and Ana Ruiz on invoice #1 and Ben Cole off it
func seedRoster(t *testing.T, f *fixture) *invoice.InvoiceSummary {
	t.Helper()
	ctx := context.Background()
	for _, r := range []struct{ id, membership, first, last string }{
		{"12345678", "12345678", "Juan", "Perez"},
		{"TEMP-1-AR", "", "Ana", "Ruiz"},
		{"98765432", "98765432", "Ben", "Cole"},
		{"TEMP-2-MC", "", "Mia", "Cruz"},
	} {
		reg, err := registrant.NewRegistrant(r.id, r.membership, registrant.Observation{FirstName: r.first, LastName: r.last}, "Operator")
		require.NoError(t, err)
		require.NoError(t, f.registrants.Save(ctx, reg))
	}

	s, err := invoice.NewInvoiceSummary("inv-1", "1")
	require.NoError(t, err)
	s.Title = "Spring Scholastic"
	s.CustomerID = "cus-1"
	s.School = "Lincoln Elementary"
	s.District = "Austin ISD"
	s.PurchaserName = "Pat Lee"
	s.PurchaserEmail = "coach@example.com"
	s.BaseRegistrationFee = decimal.NewFromInt(40)
	s.TotalAmount = decimal.NewFromInt(80)
	s.Selections = invoice.Selections{
		"12345678":  {IsRegistered: true, Section: "Varsity"},
		"TEMP-1-AR": {IsRegistered: true, Section: "Novice"},
	}
	require.NoError(t, f.summaries.Save(ctx, s))
	return s
}

func seedChangeRequest(t *testing.T, f *fixture, name string, reqType invoice.RequestType, details string) *invoice.ChangeRequest {
	t.Helper()
	cr, err := invoice.NewChangeRequest("inv-1", name, reqType, details, "coach@example.com")
	require.NoError(t, err)
	require.NoError(t, f.changeRequests.Save(context.Background(), cr))
	return cr
}

func replacementInvoice() *invoice.Replacement {
	return &invoice.Replacement{
		InvoiceID:     "inv-1b",
		InvoiceNumber: "1001",
		PublicURL:     "https://pay.example.com/inv-1b",
		Status:        invoice.StatusUnpaid,
		TotalAmount:   decimal.NewFromInt(40),
	}
}

func TestSupersessionService_ApproveChangeRequest_Withdrawal(t *testing.T) {
	f := newFixture(t)
	seedRoster(t, f)
	cr := seedChangeRequest(t, f, "Ana Ruiz", invoice.RequestTypeWithdrawal, "Ana cannot attend")
	ctx := context.Background()

	f.creator.On("CreateReplacementInvoice", mock.Anything, mock.MatchedBy(func(req integration.ReplacementRequest) bool {
		return req.OriginalInvoiceID == "inv-1" &&
			req.CustomerID == "cus-1" &&
			len(req.Roster) == 1 &&
			req.Roster[0].RegistrantID == "12345678" &&
			req.Roster[0].Name == "Juan Perez" &&
			req.Roster[0].Section == "Varsity" &&
			req.BaseRegistrationFee.Equal(decimal.NewFromInt(40))
	})).Return(replacementInvoice(), nil)

	result, err := f.supersessionService().ApproveChangeRequest(ctx, cr.ID, "director@example.com")
	require.NoError(t, err)
	assert.Equal(t, "inv-1b", result.NewInvoiceID)
	assert.Equal(t, "1001", result.NewInvoiceNumber)
	f.creator.AssertExpectations(t)

	original, err := f.summaries.FindByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCanceled, original.Status)
	assert.Equal(t, "inv-1b", original.SupersededByID)
	assert.Contains(t, original.CancellationNote, "#1001")

	successor, err := f.summaries.FindByID(ctx, "inv-1b")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", successor.PreviousVersionID)
	assert.Equal(t, "1001", successor.InvoiceNumber)
	assert.Equal(t, "Spring Scholastic", successor.Title)
	assert.Equal(t, "Lincoln Elementary", successor.School)
	assert.Equal(t, "Pat Lee", successor.PurchaserName)
	assert.True(t, decimal.NewFromInt(40).Equal(successor.TotalAmount))
	assert.Equal(t, invoice.Selections{"12345678": {IsRegistered: true, Section: "Varsity"}}, successor.Selections)

	stored, err := f.changeRequests.FindByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.RequestStatusApproved, stored.Status)
	assert.Equal(t, "director@example.com", stored.ApprovedBy)
	assert.Equal(t, "inv-1b", stored.ProcessedInBatch)
	assert.NotNil(t, stored.ProcessedAt)

	assert.Len(t, f.events.EventsOfType(invoice.EventTypeInvoiceSuperseded), 1)
}

func TestSupersessionService_ApproveChangeRequest_Substitution(t *testing.T) {
	tests := []struct {
		name        string
		details     string
		structured  string
		replacement string
		wantUSCF    string
	}{
		{name: "name taken from details", details: "Swap Juan Perez with Ben Cole.", replacement: "98765432", wantUSCF: registrant.MembershipRenewing},
		{name: "structured name wins", details: "Swap with Ben Cole", structured: "Mia Cruz", replacement: "TEMP-2-MC", wantUSCF: registrant.MembershipNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seedRoster(t, f)
			cr, err := invoice.NewChangeRequest("inv-1", "Juan Perez", invoice.RequestTypeSubstitution, tt.details, "coach@example.com")
			require.NoError(t, err)
			cr.ReplacementName = tt.structured
			require.NoError(t, f.changeRequests.Save(context.Background(), cr))
			f.creator.On("CreateReplacementInvoice", mock.Anything, mock.Anything).Return(replacementInvoice(), nil)

			_, err = f.supersessionService().ApproveChangeRequest(context.Background(), cr.ID, "director@example.com")
			require.NoError(t, err)

			successor, err := f.summaries.FindByID(context.Background(), "inv-1b")
			require.NoError(t, err)
			assert.Equal(t, invoice.Selections{
				"TEMP-1-AR":    {IsRegistered: true, Section: "Novice"},
				tt.replacement: {IsRegistered: true, Section: "Varsity", USCFStatus: tt.wantUSCF},
			}, successor.Selections)
		})
	}
}

func TestSupersessionService_ApproveChangeRequest_CreationFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	seedRoster(t, f)
	cr := seedChangeRequest(t, f, "Ana Ruiz", invoice.RequestTypeWithdrawal, "")
	ctx := context.Background()
	f.creator.On("CreateReplacementInvoice", mock.Anything, mock.Anything).
		Return(nil, integration.ErrInvoiceCreationFailed)

	_, err := f.supersessionService().ApproveChangeRequest(ctx, cr.ID, "director@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrInvoiceCreationFailed)

	original, err := f.summaries.FindByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, original.Status)
	assert.Empty(t, original.SupersededByID)

	stored, err := f.changeRequests.FindByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.RequestStatusPending, stored.Status)
	assert.Empty(t, f.events.Events())
}

func TestSupersessionService_ApproveChangeRequest_Unresolvable(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		reqType invoice.RequestType
		details string
	}{
		{name: "registrant not on invoice", target: "Ben Cole", reqType: invoice.RequestTypeWithdrawal},
		{name: "replacement unknown", target: "Juan Perez", reqType: invoice.RequestTypeSubstitution, details: "Replace with Nobody Known"},
		{name: "replacement missing", target: "Juan Perez", reqType: invoice.RequestTypeSubstitution, details: "Replace please"},
		{name: "replacement already on invoice", target: "Juan Perez", reqType: invoice.RequestTypeSubstitution, details: "Replace with Ana Ruiz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seedRoster(t, f)
			cr := seedChangeRequest(t, f, tt.target, tt.reqType, tt.details)
			ctx := context.Background()

			_, err := f.supersessionService().ApproveChangeRequest(ctx, cr.ID, "director@example.com")
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrUnresolvable)
			assert.Equal(t, reconcile.KindConsistency, reconcile.Classify(err))
			f.creator.AssertNotCalled(t, "CreateReplacementInvoice", mock.Anything, mock.Anything)

			stored, err := f.changeRequests.FindByID(ctx, cr.ID)
			require.NoError(t, err)
			assert.Equal(t, invoice.RequestStatusPending, stored.Status)
		})
	}
}

// failingScope runs the real transaction but fails the change request write
type failingScope struct {
	inner reconcile.TransactionScope
}

func (s failingScope) Execute(ctx context.Context, fn func(repos reconcile.TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos reconcile.TransactionalRepositories) error {
		return fn(failingRepos{TransactionalRepositories: repos})
	})
}

type failingRepos struct {
	reconcile.TransactionalRepositories
}

func (r failingRepos) ChangeRequestRepo() invoice.ChangeRequestRepository {
	return failingChangeRequests{ChangeRequestRepository: r.TransactionalRepositories.ChangeRequestRepo()}
}

type failingChangeRequests struct {
	invoice.ChangeRequestRepository
}

func (failingChangeRequests) SaveWithLock(context.Context, *invoice.ChangeRequest) error {
	return errors.New("disk full")
}

func TestSupersessionService_ApproveChangeRequest_LocalWritesAreAtomic(t *testing.T) {
	f := newFixture(t)
	seedRoster(t, f)
	cr := seedChangeRequest(t, f, "Ana Ruiz", invoice.RequestTypeWithdrawal, "")
	ctx := context.Background()
	f.creator.On("CreateReplacementInvoice", mock.Anything, mock.Anything).Return(replacementInvoice(), nil)

	svc := reconcile.NewSupersessionService(reconcile.SupersessionServiceConfig{
		Creator:        f.creator,
		Registrants:    f.registrants,
		Summaries:      f.summaries,
		ChangeRequests: f.changeRequests,
		TxScope:        failingScope{inner: f.txScope},
		Locker:         f.locker,
		EventPublisher: f.events,
	})

	_, err := svc.ApproveChangeRequest(ctx, cr.ID, "director@example.com")
	require.Error(t, err)

	original, err := f.summaries.FindByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, original.Status)

	_, err = f.summaries.FindByID(ctx, "inv-1b")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	stored, err := f.changeRequests.FindByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.RequestStatusPending, stored.Status)
}

func TestSupersessionService_ApproveChangeRequest_AlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	seedRoster(t, f)
	cr := seedChangeRequest(t, f, "Ana Ruiz", invoice.RequestTypeWithdrawal, "")
	svc := f.supersessionService()
	ctx := context.Background()
	require.NoError(t, svc.DenyChangeRequest(ctx, cr.ID, "director@example.com"))

	_, err := svc.ApproveChangeRequest(ctx, cr.ID, "director@example.com")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSupersessionService_DenyChangeRequest(t *testing.T) {
	f := newFixture(t)
	seedRoster(t, f)
	cr := seedChangeRequest(t, f, "Ana Ruiz", invoice.RequestTypeWithdrawal, "")
	svc := f.supersessionService()
	ctx := context.Background()

	require.NoError(t, svc.DenyChangeRequest(ctx, cr.ID, "director@example.com"))

	stored, err := f.changeRequests.FindByID(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.RequestStatusDenied, stored.Status)
	assert.Equal(t, "director@example.com", stored.ApprovedBy)
	assert.Len(t, f.events.EventsOfType(invoice.EventTypeChangeRequestDenied), 1)

	original, err := f.summaries.FindByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, original.Status)

	assert.ErrorIs(t, svc.DenyChangeRequest(ctx, cr.ID, "director@example.com"), shared.ErrInvalidState)
	assert.ErrorIs(t, svc.DenyChangeRequest(ctx, uuid.New(), "director@example.com"), shared.ErrNotFound)
	assert.ErrorIs(t, svc.DenyChangeRequest(ctx, cr.ID, ""), shared.ErrInvalidInput)
}
