package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/school"
	"github.com/chessreg/backend/internal/domain/shared"
)

var tracer = otel.Tracer("github.com/chessreg/backend/internal/application/reconcile")

// Lock key prefixes shared by every service that writes these records
const (
	lockKeyInvoice       = "invoice:"
	lockKeyRegistrant    = "registrant:"
	lockKeyChangeRequest = "change-request:"

	maxRosterLockAttempts = 3
)

const (
	defaultImportWorkers  = 4
	defaultInvoiceTimeout = 30 * time.Second
	defaultImportActor    = "External Import"
	defaultPlaceholder    = "TEMP"
)

// ImportServiceConfig holds the dependencies of ImportService
type ImportServiceConfig struct {
	Billing        integration.BillingService
	Registrants    registrant.Repository
	Summaries      invoice.SummaryRepository
	TxScope        TransactionScope
	Locker         shared.KeyedLocker
	EventPublisher shared.EventPublisher
	Resolver       *school.Resolver
	IDs            SuffixGenerator
	Logger         *zap.Logger

	Workers           int
	InvoiceTimeout    time.Duration
	Actor             string
	PlaceholderPrefix string
}

// ImportService pulls invoices from the billing service and upserts the
// reconciled registrants and invoice summaries
type ImportService struct {
	billing        integration.BillingService
	registrants    registrant.Repository
	summaries      invoice.SummaryRepository
	txScope        TransactionScope
	locker         shared.KeyedLocker
	eventPublisher shared.EventPublisher
	resolver       *school.Resolver
	matcher        *Matcher
	logger         *zap.Logger
	workers        int
	invoiceTimeout time.Duration
}

// NewImportService creates a new ImportService
func NewImportService(cfg ImportServiceConfig) *ImportService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = school.NewResolver(nil)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultImportWorkers
	}
	timeout := cfg.InvoiceTimeout
	if timeout <= 0 {
		timeout = defaultInvoiceTimeout
	}
	actor := lo.Ternary(cfg.Actor != "", cfg.Actor, defaultImportActor)
	prefix := lo.Ternary(cfg.PlaceholderPrefix != "", cfg.PlaceholderPrefix, defaultPlaceholder)

	return &ImportService{
		billing:        cfg.Billing,
		registrants:    cfg.Registrants,
		summaries:      cfg.Summaries,
		txScope:        cfg.TxScope,
		locker:         cfg.Locker,
		eventPublisher: cfg.EventPublisher,
		resolver:       resolver,
		matcher:        NewMatcher(actor, prefix, cfg.IDs),
		logger:         logger,
		workers:        workers,
		invoiceTimeout: timeout,
	}
}

// ImportRange imports every external invoice whose number falls within
// [start, end]. Per-invoice failures are itemized in the result; an error is
// returned only when the range is invalid or the listing cannot be read.
func (s *ImportService) ImportRange(ctx context.Context, start, end int) (*ImportResult, error) {
	if start > end {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("Start number %d is greater than end number %d", start, end))
	}

	ctx, span := tracer.Start(ctx, "reconcile.ImportRange")
	defer span.End()
	span.SetAttributes(attribute.Int("import.start", start), attribute.Int("import.end", end))

	all, err := s.listAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list invoices")
		return nil, err
	}

	inRange := lo.Filter(all, func(inv integration.ExternalInvoice, _ int) bool {
		n := invoiceNumber(inv)
		return n >= start && n <= end
	})
	sort.SliceStable(inRange, func(i, j int) bool {
		ni, nj := invoiceNumber(inRange[i]), invoiceNumber(inRange[j])
		if ni != nj {
			return ni < nj
		}
		return inRange[i].ID < inRange[j].ID
	})

	result := newImportResult()
	if len(inRange) == 0 {
		result.Errors = append(result.Errors, ItemError{Kind: KindInfo, Message: msgNoInvoicesInRange})
		return result, nil
	}
	span.SetAttributes(attribute.Int("import.invoices", len(inRange)))

	outcomes := make([]invoiceOutcome, len(inRange))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, inv := range inRange {
		g.Go(func() error {
			outcomes[i] = s.importOne(ctx, inv)
			return nil
		})
	}
	_ = g.Wait()

	result.collect(outcomes)

	s.logger.Info("Invoice import finished",
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Int("notifications", len(result.Notifications)))
	span.SetAttributes(
		attribute.Int("import.created", result.Created),
		attribute.Int("import.updated", result.Updated),
		attribute.Int("import.failed", result.Failed))
	return result, nil
}

func (s *ImportService) listAll(ctx context.Context) ([]integration.ExternalInvoice, error) {
	var all []integration.ExternalInvoice
	seen := make(map[string]bool)
	cursor := ""
	for {
		page, err := s.billing.ListInvoices(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("list invoices: %w", err)
		}
		all = append(all, page.Invoices...)
		if page.Cursor == "" || seen[page.Cursor] {
			return all, nil
		}
		seen[page.Cursor] = true
		cursor = page.Cursor
	}
}

// invoiceNumber parses the human-facing number; unparsable numbers count as 0
func invoiceNumber(inv integration.ExternalInvoice) int {
	n, err := strconv.Atoi(strings.TrimSpace(inv.Number))
	if err != nil {
		return 0
	}
	return n
}

// importOne imports a single invoice. It never panics and never returns an
// error; failures are carried in the outcome.
func (s *ImportService) importOne(ctx context.Context, inv integration.ExternalInvoice) (out invoiceOutcome) {
	out.number = inv.Number
	if err := ctx.Err(); err != nil {
		out.err = fmt.Errorf("import stopped before this invoice: %w", err)
		return out
	}

	ctx, span := tracer.Start(ctx, "reconcile.importInvoice")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", inv.ID), attribute.String("invoice.number", inv.Number))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while importing invoice",
				zap.String("invoice_id", inv.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = invoiceOutcome{number: inv.Number, err: fmt.Errorf("unexpected failure: %v", r)}
		}
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, string(Classify(out.err)))
			s.logger.Warn("Invoice import failed",
				zap.String("invoice_id", inv.ID),
				zap.String("invoice_number", inv.Number),
				zap.String("kind", string(Classify(out.err))),
				zap.Error(out.err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.invoiceTimeout)
	defer cancel()

	if strings.TrimSpace(inv.OrderID) == "" {
		out.err = ErrMissingOrderID
		return out
	}
	if strings.TrimSpace(inv.CustomerID) == "" {
		out.err = ErrMissingCustomerID
		return out
	}

	order, err := s.billing.GetOrder(ctx, inv.OrderID)
	if err != nil {
		out.err = fmt.Errorf("fetch order %s: %w", inv.OrderID, err)
		return out
	}
	customer, err := s.billing.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		out.err = fmt.Errorf("fetch customer %s: %w", inv.CustomerID, err)
		return out
	}

	placement := s.resolver.Resolve(lo.CoalesceOrEmpty(customer.CompanyName, customer.Nickname))
	lines := readOrderLines(order)

	existing, unlock, err := s.lockInvoice(ctx, inv.ID, lines.stableIDs())
	if err != nil {
		out.err = err
		return out
	}
	defer unlock()

	known, err := s.knownRoster(ctx, existing)
	if err != nil {
		out.err = err
		return out
	}
	batch := NewBatch(s.registrants, known)

	contact := Contact{Email: customer.EmailAddress, Phone: customer.PhoneNumber}
	selections := make(invoice.Selections)
	for _, sight := range lines.sightings {
		id, err := s.matcher.MatchOrCreate(ctx, sight.candidate, placement, contact, batch)
		if err != nil {
			out.err = fmt.Errorf("match %q: %w", sight.candidate.FullName(), err)
			return out
		}
		selections[id] = selections[id].Combine(sight.selection())
	}

	fresh, err := invoice.NewInvoiceSummary(inv.ID, inv.Number)
	if err != nil {
		out.err = err
		return out
	}
	fresh.Title = inv.Title
	fresh.OrderID = inv.OrderID
	fresh.CustomerID = inv.CustomerID
	fresh.School = placement.School
	fresh.District = placement.District
	fresh.PurchaserName = customer.DisplayName()
	fresh.PurchaserEmail = customer.EmailAddress
	fresh.Selections = selections
	fresh.BaseRegistrationFee = lines.baseFee
	fresh.TotalAmount = order.TotalMoney
	fresh.PublicURL = inv.PublicURL
	fresh.Status = invoice.DeriveStatus(fresh.TotalAmount, fresh.TotalPaid, inv.Status)

	target := fresh
	writeSummary := true
	if existing != nil {
		target = existing
		writeSummary = existing.MergeImport(fresh)
	}

	pending := batch.Pending()
	if len(pending) > 0 || writeSummary {
		err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			if len(pending) > 0 {
				if err := repos.RegistrantRepo().SaveBatch(ctx, pending); err != nil {
					return fmt.Errorf("save registrants: %w", err)
				}
			}
			if writeSummary {
				if err := repos.SummaryRepo().Save(ctx, target); err != nil {
					return fmt.Errorf("save invoice summary: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			out.err = err
			return out
		}
	}

	s.publishEvents(ctx, batch.Registrants())

	out.created = existing == nil
	out.registrants = batch.Registrants()
	for _, r := range out.registrants {
		out.notifications = append(out.notifications, registrantNotifications(inv.Number, r)...)
	}
	return out
}

// lockInvoice locks the invoice together with every registrant the import may
// write: the membership ids on the order and the stored roster, placeholders
// included. The roster is read before the lock is held, so the lock is taken
// again when a concurrent import changed it in between.
func (s *ImportService) lockInvoice(ctx context.Context, invoiceID string, stableIDs []string) (*invoice.InvoiceSummary, func(), error) {
	existing, err := s.loadSummary(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	roster := rosterIDs(existing)

	for attempt := 1; ; attempt++ {
		keys := []string{lockKeyInvoice + invoiceID}
		for _, id := range lo.Union(stableIDs, roster) {
			keys = append(keys, lockKeyRegistrant+id)
		}
		unlock, err := s.locker.Lock(ctx, keys...)
		if err != nil {
			return nil, nil, err
		}

		existing, err = s.loadSummary(ctx, invoiceID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		current := rosterIDs(existing)
		if len(lo.Without(current, roster...)) == 0 {
			return existing, unlock, nil
		}
		unlock()
		if attempt == maxRosterLockAttempts {
			return nil, nil, fmt.Errorf("roster of invoice %s kept changing: %w", invoiceID, shared.ErrConcurrencyConflict)
		}
		roster = current
	}
}

// loadSummary returns the stored summary, or nil when there is none
func (s *ImportService) loadSummary(ctx context.Context, invoiceID string) (*invoice.InvoiceSummary, error) {
	existing, err := s.summaries.FindByID(ctx, invoiceID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice summary: %w", err)
	}
	return existing, nil
}

func rosterIDs(summary *invoice.InvoiceSummary) []string {
	if summary == nil {
		return nil
	}
	ids := summary.Selections.Keys()
	sort.Strings(ids)
	return ids
}

// knownRoster maps name keys to the registrant ids already on the invoice
func (s *ImportService) knownRoster(ctx context.Context, existing *invoice.InvoiceSummary) (map[string]string, error) {
	known := make(map[string]string)
	if existing == nil || len(existing.Selections) == 0 {
		return known, nil
	}
	rs, err := s.registrants.FindByIDs(ctx, existing.Selections.Keys())
	if err != nil {
		return nil, fmt.Errorf("load invoice roster: %w", err)
	}
	for _, r := range rs {
		if key := r.NameKey(); key != "" {
			if _, taken := known[key]; !taken {
				known[key] = r.ID
			}
		}
	}
	return known, nil
}

func (s *ImportService) publishEvents(ctx context.Context, rs []*registrant.Registrant) {
	var events []shared.DomainEvent
	for _, r := range rs {
		events = append(events, r.GetDomainEvents()...)
		r.ClearDomainEvents()
	}
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish import events", zap.Int("events", len(events)), zap.Error(err))
	}
}
