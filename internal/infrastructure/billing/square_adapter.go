// Package billing talks to the Square API on behalf of the reconciliation
// engine. SquareAdapter implements the integration.BillingService,
// integration.PaymentProcessor and integration.InvoiceCreator ports.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
)

const (
	// maxSquareResponseSize limits the response body size to prevent memory exhaustion
	maxSquareResponseSize = 10 * 1024 * 1024 // 10MB max response
	// centsExponent converts minor units to a decimal amount
	centsExponent = -2

	registrationItemName = "Tournament Registration"
	membershipItemName   = "USCF Membership"
)

// SquareAdapter implements the billing ports over Square's REST API
type SquareAdapter struct {
	config     *SquareConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewSquareAdapter creates a new adapter with the given configuration
func NewSquareAdapter(config *SquareConfig, logger *zap.Logger) (*SquareAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SquareAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:     logger.Named("square"),
	}, nil
}

// ---------------------------------------------------------------------------
// BillingService
// ---------------------------------------------------------------------------

// ListInvoices returns one page of invoices for the configured location
func (a *SquareAdapter) ListInvoices(ctx context.Context, cursor string) (*integration.InvoicePage, error) {
	q := url.Values{}
	q.Set("location_id", a.config.LocationID)
	q.Set("limit", strconv.Itoa(a.config.PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp squareListInvoicesResponse
	if err := a.doRequest(ctx, http.MethodGet, "/v2/invoices?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	page := &integration.InvoicePage{
		Invoices: make([]integration.ExternalInvoice, 0, len(resp.Invoices)),
		Cursor:   resp.Cursor,
	}
	for i := range resp.Invoices {
		page.Invoices = append(page.Invoices, convertInvoice(&resp.Invoices[i]))
	}
	return page, nil
}

// GetInvoice returns one invoice
func (a *SquareAdapter) GetInvoice(ctx context.Context, invoiceID string) (*integration.ExternalInvoice, error) {
	inv, err := a.fetchInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	out := convertInvoice(inv)
	return &out, nil
}

// GetOrder returns the order with its line items
func (a *SquareAdapter) GetOrder(ctx context.Context, orderID string) (*integration.Order, error) {
	order, err := a.fetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	out := &integration.Order{
		ID:         order.ID,
		LineItems:  make([]integration.LineItem, 0, len(order.LineItems)),
		TotalMoney: moneyToDecimal(order.TotalMoney),
	}
	for _, li := range order.LineItems {
		qty, err := decimal.NewFromString(strings.TrimSpace(li.Quantity))
		if err != nil {
			return nil, fmt.Errorf("%w: order %s line %q has quantity %q", integration.ErrInvalidResponse, order.ID, li.Name, li.Quantity)
		}
		out.LineItems = append(out.LineItems, integration.LineItem{
			UID:           li.UID,
			Name:          li.Name,
			Note:          li.Note,
			VariationName: li.VariationName,
			Quantity:      qty,
			TotalMoney:    moneyToDecimal(li.TotalMoney),
		})
	}
	return out, nil
}

// GetCustomer returns the customer record
func (a *SquareAdapter) GetCustomer(ctx context.Context, customerID string) (*integration.Customer, error) {
	var resp squareCustomerResponse
	if err := a.doRequest(ctx, http.MethodGet, "/v2/customers/"+url.PathEscape(customerID), nil, &resp); err != nil {
		return nil, err
	}
	c := resp.Customer
	return &integration.Customer{
		ID:           c.ID,
		CompanyName:  c.CompanyName,
		EmailAddress: c.EmailAddress,
		GivenName:    c.GivenName,
		FamilyName:   c.FamilyName,
		Nickname:     c.Nickname,
		PhoneNumber:  c.PhoneNumber,
	}, nil
}

// ---------------------------------------------------------------------------
// PaymentProcessor
// ---------------------------------------------------------------------------

// GetPaymentHistory reports the invoice status, the amounts requested and
// collected, and the individual payments tendered against its order
func (a *SquareAdapter) GetPaymentHistory(ctx context.Context, invoiceID string) (*integration.PaymentHistory, error) {
	inv, err := a.fetchInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	history := &integration.PaymentHistory{
		Status:      invoice.ParseStatus(inv.Status),
		TotalPaid:   decimal.Zero,
		TotalAmount: decimal.Zero,
		Payments:    make([]invoice.ProcessorPayment, 0),
	}
	for _, pr := range inv.PaymentRequests {
		history.TotalAmount = history.TotalAmount.Add(moneyToDecimal(pr.ComputedAmountMoney))
		history.TotalPaid = history.TotalPaid.Add(moneyToDecimal(pr.TotalCompletedAmountMoney))
	}
	if inv.OrderID == "" {
		return history, nil
	}

	order, err := a.fetchOrder(ctx, inv.OrderID)
	if err != nil {
		return nil, err
	}
	for _, tender := range order.Tenders {
		id := tender.PaymentID
		if id == "" {
			id = tender.ID
		}
		history.Payments = append(history.Payments, invoice.ProcessorPayment{
			ID:     id,
			Amount: moneyToDecimal(tender.AmountMoney),
			Method: mapTenderType(tender.Type),
			Date:   parseTime(tender.CreatedAt),
		})
	}
	return history, nil
}

// ---------------------------------------------------------------------------
// InvoiceCreator
// ---------------------------------------------------------------------------

// CreateReplacementInvoice creates an order for the roster, drafts an invoice
// for it and publishes the invoice. No local state is touched here; a failure
// at any step leaves the caller free to abort.
func (a *SquareAdapter) CreateReplacementInvoice(ctx context.Context, req integration.ReplacementRequest) (*invoice.Replacement, error) {
	if req.CustomerID == "" || len(req.Roster) == 0 {
		return nil, integration.ErrInvalidReplacementSpec
	}
	items := a.rosterLineItems(req)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: roster has no billable lines", integration.ErrInvalidReplacementSpec)
	}

	var orderResp squareOrderResponse
	err := a.doRequest(ctx, http.MethodPost, "/v2/orders", createOrderRequest{
		IdempotencyKey: uuid.NewString(),
		Order: squareOrder{
			LocationID: a.config.LocationID,
			CustomerID: req.CustomerID,
			LineItems:  items,
		},
	}, &orderResp)
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %w", integration.ErrInvoiceCreationFailed, err)
	}

	var draft squareInvoiceResponse
	err = a.doRequest(ctx, http.MethodPost, "/v2/invoices", createInvoiceRequest{
		IdempotencyKey: uuid.NewString(),
		Invoice: squareInvoice{
			LocationID:       a.config.LocationID,
			OrderID:          orderResp.Order.ID,
			Title:            req.Title,
			DeliveryMethod:   "EMAIL",
			PrimaryRecipient: &squareRecipient{CustomerID: req.CustomerID},
			PaymentRequests: []squarePaymentRequest{{
				RequestType: "BALANCE",
				DueDate:     time.Now().AddDate(0, 0, 14).Format(time.DateOnly),
			}},
			AcceptedPaymentMethods: &squareAcceptedPaymentMethods{Card: true},
		},
	}, &draft)
	if err != nil {
		return nil, fmt.Errorf("%w: create invoice: %w", integration.ErrInvoiceCreationFailed, err)
	}

	var published squareInvoiceResponse
	err = a.doRequest(ctx, http.MethodPost, "/v2/invoices/"+url.PathEscape(draft.Invoice.ID)+"/publish", publishInvoiceRequest{
		IdempotencyKey: uuid.NewString(),
		Version:        draft.Invoice.Version,
	}, &published)
	if err != nil {
		return nil, fmt.Errorf("%w: publish invoice %s: %w", integration.ErrInvoiceCreationFailed, draft.Invoice.ID, err)
	}

	a.logger.Info("Created replacement invoice",
		zap.String("original_invoice_id", req.OriginalInvoiceID),
		zap.String("invoice_id", published.Invoice.ID),
		zap.String("invoice_number", published.Invoice.InvoiceNumber))

	return &invoice.Replacement{
		InvoiceID:     published.Invoice.ID,
		InvoiceNumber: published.Invoice.InvoiceNumber,
		PublicURL:     published.Invoice.PublicURL,
		Status:        invoice.ParseStatus(published.Invoice.Status),
		TotalAmount:   moneyToDecimal(orderResp.Order.TotalMoney),
	}, nil
}

// rosterLineItems bills one registration per registered player and one
// membership per player whose membership is new or renewing. The player name
// goes in the note so a later import can read it back.
func (a *SquareAdapter) rosterLineItems(req integration.ReplacementRequest) []squareLineItem {
	items := make([]squareLineItem, 0, len(req.Roster)*2)
	for _, line := range req.Roster {
		if line.IsRegistered {
			items = append(items, squareLineItem{
				Name:           registrationItemName,
				Note:           line.Name,
				VariationName:  line.Section,
				Quantity:       "1",
				BasePriceMoney: decimalToMoney(req.BaseRegistrationFee),
			})
		}
		if line.USCFStatus != "" {
			items = append(items, squareLineItem{
				Name:           membershipItemName,
				Note:           line.Name,
				Quantity:       "1",
				BasePriceMoney: decimalToMoney(req.MembershipFee),
			})
		}
	}
	return items
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

func (a *SquareAdapter) fetchInvoice(ctx context.Context, invoiceID string) (*squareInvoice, error) {
	var resp squareInvoiceResponse
	if err := a.doRequest(ctx, http.MethodGet, "/v2/invoices/"+url.PathEscape(invoiceID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Invoice, nil
}

func (a *SquareAdapter) fetchOrder(ctx context.Context, orderID string) (*squareOrder, error) {
	var resp squareOrderResponse
	if err := a.doRequest(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// doRequest performs an HTTP request and decodes the JSON response into out
func (a *SquareAdapter) doRequest(ctx context.Context, method, path string, body, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("square: rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("square: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("square: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)
	req.Header.Set("Square-Version", a.config.APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", integration.ErrServiceUnavailable, ctxErr)
		}
		return fmt.Errorf("%w: %v", integration.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxSquareResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", integration.ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		a.logger.Debug("Square request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &integration.StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
	}
	return nil
}

func errorDetail(body []byte) string {
	var resp squareErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		switch {
		case e.Detail != "":
			parts = append(parts, e.Code+": "+e.Detail)
		default:
			parts = append(parts, e.Code)
		}
	}
	return strings.Join(parts, "; ")
}

func convertInvoice(inv *squareInvoice) integration.ExternalInvoice {
	out := integration.ExternalInvoice{
		ID:        inv.ID,
		Number:    inv.InvoiceNumber,
		Title:     inv.Title,
		OrderID:   inv.OrderID,
		Status:    invoice.ParseStatus(inv.Status),
		PublicURL: inv.PublicURL,
		Version:   inv.Version,
		CreatedAt: parseTime(inv.CreatedAt),
	}
	if inv.PrimaryRecipient != nil {
		out.CustomerID = inv.PrimaryRecipient.CustomerID
	}
	return out
}

func mapTenderType(t string) invoice.PaymentMethod {
	switch strings.ToUpper(t) {
	case "CARD", "SQUARE_GIFT_CARD", "WALLET":
		return invoice.PaymentMethodCreditCard
	case "CASH":
		return invoice.PaymentMethodCash
	case "CHECK":
		return invoice.PaymentMethodCheck
	case "OTHER", "BANK_ACCOUNT", "BUY_NOW_PAY_LATER":
		return invoice.PaymentMethodExternal
	default:
		return invoice.PaymentMethodOther
	}
}

func moneyToDecimal(m *squareMoney) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	return decimal.New(m.Amount, centsExponent)
}

func decimalToMoney(d decimal.Decimal) *squareMoney {
	return &squareMoney{Amount: d.Shift(2).Round(0).IntPart(), Currency: "USD"}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Ensure SquareAdapter implements the billing ports
var (
	_ integration.BillingService   = (*SquareAdapter)(nil)
	_ integration.PaymentProcessor = (*SquareAdapter)(nil)
	_ integration.InvoiceCreator   = (*SquareAdapter)(nil)
)
