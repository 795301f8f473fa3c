package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestSquareConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *SquareConfig
		wantErr error
	}{
		{
			name:   "valid config",
			config: &SquareConfig{AccessToken: "token", LocationID: "LOC"},
		},
		{
			name:    "missing access token",
			config:  &SquareConfig{LocationID: "LOC"},
			wantErr: ErrSquareConfigMissingAccessToken,
		},
		{
			name:    "missing location",
			config:  &SquareConfig{AccessToken: "token"},
			wantErr: ErrSquareConfigMissingLocationID,
		},
		{
			name:    "negative rate",
			config:  &SquareConfig{AccessToken: "token", LocationID: "LOC", RequestsPerSecond: -1},
			wantErr: ErrSquareConfigInvalidRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, SquareProductionAPIURL, tt.config.APIBaseURL)
			assert.Equal(t, defaultPageSize, tt.config.PageSize)
			assert.Equal(t, defaultRequestTimeout, tt.config.RequestTimeout)
		})
	}
}

func TestNewSquareConfig(t *testing.T) {
	cfg, err := NewSquareConfig(config.BillingConfig{
		AccessToken:   "token",
		LocationID:    "LOC",
		PageSize:      500,
		MembershipFee: "24.00",
	})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, cfg.PageSize)
	assert.True(t, cfg.MembershipFee.Equal(decimal.RequireFromString("24")))

	_, err = NewSquareConfig(config.BillingConfig{AccessToken: "token", LocationID: "LOC", MembershipFee: "abc"})
	assert.ErrorIs(t, err, ErrSquareConfigInvalidFee)
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

func newTestAdapter(t *testing.T, handler http.Handler) *SquareAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := NewSquareAdapter(&SquareConfig{
		AccessToken:       "test-token",
		LocationID:        "LOC1",
		APIBaseURL:        server.URL,
		RequestsPerSecond: 1000,
		Burst:             100,
		PageSize:          2,
		MembershipFee:     decimal.RequireFromString("24.00"),
	}, nil)
	require.NoError(t, err)
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSquareAdapter_ListInvoices(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, defaultAPIVersion, r.Header.Get("Square-Version"))
		assert.Equal(t, "/v2/invoices", r.URL.Path)
		assert.Equal(t, "LOC1", r.URL.Query().Get("location_id"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"invoices": []map[string]any{
					{"id": "inv_1", "invoice_number": "1001", "order_id": "ord_1", "status": "UNPAID",
						"primary_recipient": map[string]any{"customer_id": "cus_1"}, "created_at": "2024-09-01T10:00:00Z"},
					{"id": "inv_2", "invoice_number": "1002", "status": "SCHEDULED"},
				},
				"cursor": "next",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoices": []map[string]any{}})
	}))

	page, err := a.ListInvoices(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	assert.Equal(t, "next", page.Cursor)
	assert.Equal(t, "cus_1", page.Invoices[0].CustomerID)
	assert.Equal(t, invoice.StatusUnpaid, page.Invoices[0].Status)
	assert.Equal(t, invoice.StatusPublished, page.Invoices[1].Status)
	assert.Equal(t, 2024, page.Invoices[0].CreatedAt.Year())

	last, err := a.ListInvoices(context.Background(), "next")
	require.NoError(t, err)
	assert.Empty(t, last.Invoices)
	assert.Empty(t, last.Cursor)
}

func TestSquareAdapter_GetOrder(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/orders/ord_1":
			writeJSON(w, http.StatusOK, map[string]any{"order": map[string]any{
				"id": "ord_1",
				"line_items": []map[string]any{
					{"uid": "a", "name": "Tournament Registration", "note": "Ana Ruiz 12345678", "quantity": "2",
						"total_money": map[string]any{"amount": 8000, "currency": "USD"}},
				},
				"total_money": map[string]any{"amount": 8000, "currency": "USD"},
			}})
		case "/v2/orders/ord_bad":
			writeJSON(w, http.StatusOK, map[string]any{"order": map[string]any{
				"id":         "ord_bad",
				"line_items": []map[string]any{{"name": "x", "quantity": "two"}},
			}})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"errors": []map[string]any{{"code": "NOT_FOUND", "detail": "no such order"}}})
		}
	}))
	ctx := context.Background()

	order, err := a.GetOrder(ctx, "ord_1")
	require.NoError(t, err)
	require.Len(t, order.LineItems, 1)
	assert.True(t, order.LineItems[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, order.LineItems[0].TotalMoney.Equal(decimal.RequireFromString("80.00")))
	assert.True(t, order.TotalMoney.Equal(decimal.RequireFromString("80")))

	_, err = a.GetOrder(ctx, "ord_bad")
	assert.ErrorIs(t, err, integration.ErrInvalidResponse)

	_, err = a.GetOrder(ctx, "ord_missing")
	assert.ErrorIs(t, err, integration.ErrRecordNotFound)
	var statusErr *integration.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Contains(t, statusErr.Detail, "no such order")
}

func TestSquareAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusUnauthorized, integration.ErrAuthFailed},
		{http.StatusTooManyRequests, integration.ErrRateLimited},
		{http.StatusBadGateway, integration.ErrServiceUnavailable},
		{http.StatusBadRequest, integration.ErrRequestFailed},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			_, err := a.GetCustomer(context.Background(), "cus_1")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		_, err := a.GetCustomer(context.Background(), "cus_1")
		assert.ErrorIs(t, err, integration.ErrInvalidResponse)
	})

	t.Run("cancelled context", func(t *testing.T) {
		a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := a.GetCustomer(ctx, "cus_1")
		assert.Error(t, err)
	})
}

func TestSquareAdapter_GetPaymentHistory(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/invoices/inv_1":
			writeJSON(w, http.StatusOK, map[string]any{"invoice": map[string]any{
				"id": "inv_1", "order_id": "ord_1", "status": "PARTIALLY_PAID",
				"payment_requests": []map[string]any{{
					"computed_amount_money":        map[string]any{"amount": 8800},
					"total_completed_amount_money": map[string]any{"amount": 4000},
				}},
			}})
		case "/v2/orders/ord_1":
			writeJSON(w, http.StatusOK, map[string]any{"order": map[string]any{
				"id": "ord_1",
				"tenders": []map[string]any{
					{"id": "t1", "type": "CARD", "payment_id": "pay_1", "created_at": "2024-09-02T12:00:00Z",
						"amount_money": map[string]any{"amount": 4000}},
					{"id": "t2", "type": "CASH", "created_at": "2024-09-03T12:00:00Z",
						"amount_money": map[string]any{"amount": 500}},
				},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	history, err := a.GetPaymentHistory(context.Background(), "inv_1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPartiallyPaid, history.Status)
	assert.True(t, history.TotalAmount.Equal(decimal.RequireFromString("88")))
	assert.True(t, history.TotalPaid.Equal(decimal.RequireFromString("40")))
	require.Len(t, history.Payments, 2)
	assert.Equal(t, "pay_1", history.Payments[0].ID)
	assert.Equal(t, invoice.PaymentMethodCreditCard, history.Payments[0].Method)
	assert.Equal(t, "t2", history.Payments[1].ID)
	assert.Equal(t, invoice.PaymentMethodCash, history.Payments[1].Method)
}

func TestSquareAdapter_CreateReplacementInvoice(t *testing.T) {
	var mu sync.Mutex
	var order createOrderRequest
	calls := make([]string, 0)

	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/v2/orders":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&order))
			writeJSON(w, http.StatusOK, map[string]any{"order": map[string]any{
				"id": "ord_new", "total_money": map[string]any{"amount": 10400},
			}})
		case "/v2/invoices":
			var req createInvoiceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ord_new", req.Invoice.OrderID)
			assert.Equal(t, "cus_1", req.Invoice.PrimaryRecipient.CustomerID)
			writeJSON(w, http.StatusOK, map[string]any{"invoice": map[string]any{"id": "inv_new", "version": 0, "status": "DRAFT"}})
		case "/v2/invoices/inv_new/publish":
			writeJSON(w, http.StatusOK, map[string]any{"invoice": map[string]any{
				"id": "inv_new", "invoice_number": "1042", "status": "UNPAID", "public_url": "https://pay.example/inv_new",
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	rep, err := a.CreateReplacementInvoice(context.Background(), integration.ReplacementRequest{
		OriginalInvoiceID: "inv_1",
		CustomerID:        "cus_1",
		Title:             "Fall Scholastic",
		Roster: []integration.RosterLine{
			{RegistrantID: "12345678", Name: "Ana Ruiz", Section: "K-12", IsRegistered: true},
			{RegistrantID: "TEMP-X-BC", Name: "Ben Cole", Section: "K-12", IsRegistered: true, USCFStatus: "new"},
		},
		BaseRegistrationFee: decimal.RequireFromString("40.00"),
		MembershipFee:       decimal.RequireFromString("24.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, "inv_new", rep.InvoiceID)
	assert.Equal(t, "1042", rep.InvoiceNumber)
	assert.Equal(t, invoice.StatusUnpaid, rep.Status)
	assert.True(t, rep.TotalAmount.Equal(decimal.RequireFromString("104")))
	assert.Equal(t, []string{"POST /v2/orders", "POST /v2/invoices", "POST /v2/invoices/inv_new/publish"}, calls)

	require.Len(t, order.Order.LineItems, 3)
	assert.Equal(t, registrationItemName, order.Order.LineItems[0].Name)
	assert.Equal(t, "Ana Ruiz", order.Order.LineItems[0].Note)
	assert.Equal(t, int64(4000), order.Order.LineItems[0].BasePriceMoney.Amount)
	assert.Equal(t, membershipItemName, order.Order.LineItems[2].Name)
	assert.Equal(t, int64(2400), order.Order.LineItems[2].BasePriceMoney.Amount)
}

func TestSquareAdapter_CreateReplacementInvoice_Failures(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		a := newTestAdapter(t, http.NotFoundHandler())
		_, err := a.CreateReplacementInvoice(context.Background(), integration.ReplacementRequest{CustomerID: "cus_1"})
		assert.ErrorIs(t, err, integration.ErrInvalidReplacementSpec)
	})

	t.Run("publish fails", func(t *testing.T) {
		a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v2/orders":
				writeJSON(w, http.StatusOK, map[string]any{"order": map[string]any{"id": "ord_new"}})
			case "/v2/invoices":
				writeJSON(w, http.StatusOK, map[string]any{"invoice": map[string]any{"id": "inv_new"}})
			default:
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}))
		_, err := a.CreateReplacementInvoice(context.Background(), integration.ReplacementRequest{
			CustomerID: "cus_1",
			Roster:     []integration.RosterLine{{Name: "Ana Ruiz", IsRegistered: true}},
		})
		assert.ErrorIs(t, err, integration.ErrInvoiceCreationFailed)
		assert.ErrorIs(t, err, integration.ErrServiceUnavailable)
	})
}

func TestMapTenderType(t *testing.T) {
	assert.Equal(t, invoice.PaymentMethodCreditCard, mapTenderType("card"))
	assert.Equal(t, invoice.PaymentMethodCash, mapTenderType("CASH"))
	assert.Equal(t, invoice.PaymentMethodExternal, mapTenderType("OTHER"))
	assert.Equal(t, invoice.PaymentMethodOther, mapTenderType("NO_SALE"))
}
