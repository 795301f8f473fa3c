package billing

// Wire types for the subset of the Square API the adapter uses. Money is
// expressed in the smallest currency unit.

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Field    string `json:"field,omitempty"`
}

type squareErrorResponse struct {
	Errors []squareError `json:"errors"`
}

type squareRecipient struct {
	CustomerID string `json:"customer_id"`
}

type squarePaymentRequest struct {
	UID                       string       `json:"uid,omitempty"`
	RequestType               string       `json:"request_type,omitempty"`
	DueDate                   string       `json:"due_date,omitempty"`
	ComputedAmountMoney       *squareMoney `json:"computed_amount_money,omitempty"`
	TotalCompletedAmountMoney *squareMoney `json:"total_completed_amount_money,omitempty"`
}

type squareAcceptedPaymentMethods struct {
	Card bool `json:"card"`
}

type squareInvoice struct {
	ID                     string                        `json:"id,omitempty"`
	Version                int64                         `json:"version,omitempty"`
	LocationID             string                        `json:"location_id,omitempty"`
	OrderID                string                        `json:"order_id,omitempty"`
	InvoiceNumber          string                        `json:"invoice_number,omitempty"`
	Title                  string                        `json:"title,omitempty"`
	Status                 string                        `json:"status,omitempty"`
	PublicURL              string                        `json:"public_url,omitempty"`
	CreatedAt              string                        `json:"created_at,omitempty"`
	DeliveryMethod         string                        `json:"delivery_method,omitempty"`
	PrimaryRecipient       *squareRecipient              `json:"primary_recipient,omitempty"`
	PaymentRequests        []squarePaymentRequest        `json:"payment_requests,omitempty"`
	AcceptedPaymentMethods *squareAcceptedPaymentMethods `json:"accepted_payment_methods,omitempty"`
}

type squareListInvoicesResponse struct {
	Invoices []squareInvoice `json:"invoices"`
	Cursor   string          `json:"cursor"`
}

type squareInvoiceResponse struct {
	Invoice squareInvoice `json:"invoice"`
}

type squareLineItem struct {
	UID            string       `json:"uid,omitempty"`
	Name           string       `json:"name"`
	Note           string       `json:"note,omitempty"`
	VariationName  string       `json:"variation_name,omitempty"`
	Quantity       string       `json:"quantity"`
	BasePriceMoney *squareMoney `json:"base_price_money,omitempty"`
	TotalMoney     *squareMoney `json:"total_money,omitempty"`
}

type squareTender struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	CreatedAt   string       `json:"created_at"`
	PaymentID   string       `json:"payment_id,omitempty"`
	AmountMoney *squareMoney `json:"amount_money"`
}

type squareOrder struct {
	ID         string           `json:"id,omitempty"`
	LocationID string           `json:"location_id,omitempty"`
	CustomerID string           `json:"customer_id,omitempty"`
	State      string           `json:"state,omitempty"`
	LineItems  []squareLineItem `json:"line_items"`
	Tenders    []squareTender   `json:"tenders,omitempty"`
	TotalMoney *squareMoney     `json:"total_money,omitempty"`
}

type squareOrderResponse struct {
	Order squareOrder `json:"order"`
}

type squareCustomer struct {
	ID           string `json:"id"`
	CompanyName  string `json:"company_name"`
	EmailAddress string `json:"email_address"`
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	Nickname     string `json:"nickname"`
	PhoneNumber  string `json:"phone_number"`
}

type squareCustomerResponse struct {
	Customer squareCustomer `json:"customer"`
}

type createOrderRequest struct {
	IdempotencyKey string      `json:"idempotency_key"`
	Order          squareOrder `json:"order"`
}

type createInvoiceRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	Invoice        squareInvoice `json:"invoice"`
}

type publishInvoiceRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Version        int64  `json:"version"`
}
