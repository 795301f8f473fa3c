package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/shared"
)

const defaultCreateTimeout = 60 * time.Second

// ApproveResult identifies the replacement invoice of an approved change request
type ApproveResult struct {
	RequestID        uuid.UUID       `json:"requestId"`
	NewInvoiceID     string          `json:"newInvoiceId"`
	NewInvoiceNumber string          `json:"newInvoiceNumber"`
	NewInvoiceURL    string          `json:"newInvoiceUrl,omitempty"`
	NewStatus        invoice.Status  `json:"newStatus"`
	NewTotalAmount   decimal.Decimal `json:"newTotalAmount"`
}

// SupersessionServiceConfig holds the dependencies of SupersessionService
type SupersessionServiceConfig struct {
	Creator        integration.InvoiceCreator
	Registrants    registrant.Repository
	Summaries      invoice.SummaryRepository
	ChangeRequests invoice.ChangeRequestRepository
	TxScope        TransactionScope
	Locker         shared.KeyedLocker
	EventPublisher shared.EventPublisher
	Logger         *zap.Logger
	MembershipFee  decimal.Decimal
	CreateTimeout  time.Duration
}

// SupersessionService applies approved roster changes by replacing the
// affected invoice
type SupersessionService struct {
	creator        integration.InvoiceCreator
	registrants    registrant.Repository
	summaries      invoice.SummaryRepository
	changeRequests invoice.ChangeRequestRepository
	txScope        TransactionScope
	locker         shared.KeyedLocker
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	membershipFee  decimal.Decimal
	createTimeout  time.Duration
	now            func() time.Time
}

// NewSupersessionService creates a new SupersessionService
func NewSupersessionService(cfg SupersessionServiceConfig) *SupersessionService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.CreateTimeout
	if timeout <= 0 {
		timeout = defaultCreateTimeout
	}
	return &SupersessionService{
		creator:        cfg.Creator,
		registrants:    cfg.Registrants,
		summaries:      cfg.Summaries,
		changeRequests: cfg.ChangeRequests,
		txScope:        cfg.TxScope,
		locker:         cfg.Locker,
		eventPublisher: cfg.EventPublisher,
		logger:         logger,
		membershipFee:  cfg.MembershipFee,
		createTimeout:  timeout,
		now:            time.Now,
	}
}

// ApproveChangeRequest issues a replacement invoice reflecting the request,
// cancels the original and approves the request. The local records change
// together or not at all; if the replacement cannot be issued nothing
// changes and the request stays pending.
func (s *SupersessionService) ApproveChangeRequest(ctx context.Context, requestID uuid.UUID, approver string) (*ApproveResult, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Approver is required")
	}

	ctx, span := tracer.Start(ctx, "reconcile.ApproveChangeRequest")
	defer span.End()
	span.SetAttributes(attribute.String("change_request.id", requestID.String()))

	result, err := s.approve(ctx, requestID, approver)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		s.logger.Warn("Change request approval failed",
			zap.String("request_id", requestID.String()),
			zap.String("kind", string(Classify(err))),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *SupersessionService) approve(ctx context.Context, requestID uuid.UUID, approver string) (*ApproveResult, error) {
	cr, err := s.changeRequests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if cr.Status != invoice.RequestStatusPending {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Change request is already %s", cr.Status))
	}

	unlock, err := s.locker.Lock(ctx, lockKeyInvoice+cr.InvoiceID, lockKeyChangeRequest+cr.ID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	original, err := s.summaries.FindByID(ctx, cr.InvoiceID)
	if err != nil {
		return nil, err
	}
	if original.Status.IsTerminal() {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Invoice #%s is %s and cannot be replaced", original.InvoiceNumber, original.Status))
	}

	selections, err := s.applyRequest(ctx, cr, original)
	if err != nil {
		return nil, err
	}
	roster, err := s.roster(ctx, selections)
	if err != nil {
		return nil, err
	}

	createCtx, cancel := context.WithTimeout(ctx, s.createTimeout)
	defer cancel()
	replacement, err := s.creator.CreateReplacementInvoice(createCtx, integration.ReplacementRequest{
		OriginalInvoiceID:   original.ID,
		CustomerID:          original.CustomerID,
		Title:               original.Title,
		Roster:              roster,
		BaseRegistrationFee: original.BaseRegistrationFee,
		MembershipFee:       s.membershipFee,
	})
	if err != nil {
		return nil, fmt.Errorf("replacement for invoice #%s: %w", original.InvoiceNumber, err)
	}

	now := s.now()
	successor := original.Successor(*replacement, selections)
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := original.Supersede(*replacement, now); err != nil {
			return err
		}
		if err := repos.SummaryRepo().Save(ctx, original); err != nil {
			return fmt.Errorf("save superseded invoice: %w", err)
		}
		if err := repos.SummaryRepo().Save(ctx, successor); err != nil {
			return fmt.Errorf("save replacement invoice: %w", err)
		}
		if err := cr.Approve(approver, replacement.InvoiceID, now); err != nil {
			return err
		}
		return repos.ChangeRequestRepo().SaveWithLock(ctx, cr)
	})
	if err != nil {
		// The replacement exists upstream but nothing was recorded locally.
		s.logger.Error("Replacement invoice issued but local supersession failed",
			zap.String("original_invoice_id", original.ID),
			zap.String("replacement_invoice_id", replacement.InvoiceID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Invoice superseded",
		zap.String("request_id", cr.ID.String()),
		zap.String("original_invoice", original.InvoiceNumber),
		zap.String("replacement_invoice", successor.InvoiceNumber),
		zap.String("approver", approver))

	if s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(ctx, invoice.NewInvoiceSupersededEvent(original, successor, cr.ID)); err != nil {
			s.logger.Warn("Failed to publish supersession", zap.String("invoice_id", original.ID), zap.Error(err))
		}
	}

	return &ApproveResult{
		RequestID:        cr.ID,
		NewInvoiceID:     successor.ID,
		NewInvoiceNumber: successor.InvoiceNumber,
		NewInvoiceURL:    successor.PublicURL,
		NewStatus:        successor.Status,
		NewTotalAmount:   successor.TotalAmount,
	}, nil
}

// DenyChangeRequest marks a pending request denied
func (s *SupersessionService) DenyChangeRequest(ctx context.Context, requestID uuid.UUID, approver string) error {
	if strings.TrimSpace(approver) == "" {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "Approver is required")
	}

	unlock, err := s.locker.Lock(ctx, lockKeyChangeRequest+requestID.String())
	if err != nil {
		return err
	}
	defer unlock()

	cr, err := s.changeRequests.FindByID(ctx, requestID)
	if err != nil {
		return err
	}
	if err := cr.Deny(approver, s.now()); err != nil {
		return err
	}
	if err := s.changeRequests.SaveWithLock(ctx, cr); err != nil {
		return err
	}

	s.logger.Info("Change request denied",
		zap.String("request_id", cr.ID.String()),
		zap.String("invoice_id", cr.InvoiceID),
		zap.String("approver", approver))

	if s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(ctx, invoice.NewChangeRequestDeniedEvent(cr)); err != nil {
			s.logger.Warn("Failed to publish denial", zap.String("request_id", cr.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// applyRequest returns the selection map after the requested change
func (s *SupersessionService) applyRequest(ctx context.Context, cr *invoice.ChangeRequest, original *invoice.InvoiceSummary) (invoice.Selections, error) {
	selections := original.Selections.Clone()

	switch cr.Type {
	case invoice.RequestTypeWithdrawal:
		key, err := s.targetKey(ctx, cr, original)
		if err != nil {
			return nil, err
		}
		delete(selections, key)

	case invoice.RequestTypeSubstitution:
		key, err := s.targetKey(ctx, cr, original)
		if err != nil {
			return nil, err
		}
		name, ok := cr.ReplacementPlayerName()
		if !ok {
			return nil, unresolvable("Change request does not name a replacement player")
		}
		replacement, err := s.uniqueByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if _, onInvoice := selections[replacement.ID]; onInvoice && replacement.ID != key {
			return nil, unresolvable("Replacement %s is already on invoice #%s", name, original.InvoiceNumber)
		}
		old := selections[key]
		delete(selections, key)
		selections[replacement.ID] = invoice.Selection{
			IsRegistered: true,
			Section:      old.Section,
			USCFStatus:   lo.Ternary(replacement.MembershipID == "", registrant.MembershipNew, registrant.MembershipRenewing),
		}

	default:
		if cr.RegistrantID != "" || cr.RegistrantName != "" {
			if _, err := s.targetKey(ctx, cr, original); err != nil {
				return nil, err
			}
		}
	}
	return selections, nil
}

// targetKey finds the selection key the request refers to, by registrant id
// and otherwise by folded name among the registrants on the invoice
func (s *SupersessionService) targetKey(ctx context.Context, cr *invoice.ChangeRequest, original *invoice.InvoiceSummary) (string, error) {
	if cr.RegistrantID != "" {
		if _, ok := original.Selections[cr.RegistrantID]; ok {
			return cr.RegistrantID, nil
		}
	}
	key := registrant.NameKey(cr.RegistrantName)
	if key == "" {
		return "", unresolvable("Change request does not name a registrant on invoice #%s", original.InvoiceNumber)
	}
	onInvoice, err := s.registrants.FindByIDs(ctx, original.Selections.Keys())
	if err != nil {
		return "", err
	}
	matches := lo.Filter(onInvoice, func(r *registrant.Registrant, _ int) bool { return r.NameKey() == key })
	switch len(matches) {
	case 1:
		return matches[0].ID, nil
	case 0:
		return "", unresolvable("%s is not on invoice #%s", cr.RegistrantName, original.InvoiceNumber)
	default:
		return "", unresolvable("%s matches %d registrants on invoice #%s", cr.RegistrantName, len(matches), original.InvoiceNumber)
	}
}

func (s *SupersessionService) uniqueByName(ctx context.Context, name string) (*registrant.Registrant, error) {
	found, err := s.registrants.FindByNameKey(ctx, registrant.NameKey(name))
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, unresolvable("Replacement player %s was not found", name)
	default:
		return nil, unresolvable("Replacement player %s matches %d registrants", name, len(found))
	}
}

// roster lists the active selections with registrant names, ordered by id
func (s *SupersessionService) roster(ctx context.Context, selections invoice.Selections) ([]integration.RosterLine, error) {
	keys := selections.Keys()
	rs, err := s.registrants.FindByIDs(ctx, keys)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(rs, func(r *registrant.Registrant) string { return r.ID })

	lines := make([]integration.RosterLine, 0, len(keys))
	for _, id := range keys {
		sel := selections[id]
		if sel.Withdrawn {
			continue
		}
		r, ok := byID[id]
		if !ok {
			return nil, unresolvable("Registrant %s on the roster no longer exists", id)
		}
		lines = append(lines, integration.RosterLine{
			RegistrantID: id,
			Name:         r.FullName(),
			Section:      sel.Section,
			USCFStatus:   sel.USCFStatus,
			IsRegistered: sel.IsRegistered,
		})
	}
	return lines, nil
}
