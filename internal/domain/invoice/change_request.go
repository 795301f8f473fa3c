package invoice

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chessreg/backend/internal/domain/shared"
)

// RequestType is the kind of roster change requested
type RequestType string

const (
	RequestTypeWithdrawal    RequestType = "withdrawal"
	RequestTypeSubstitution  RequestType = "substitution"
	RequestTypeSectionChange RequestType = "section_change"
	RequestTypeOther         RequestType = "other"
)

// IsValid checks if the request type is a known value
func (t RequestType) IsValid() bool {
	switch t {
	case RequestTypeWithdrawal, RequestTypeSubstitution, RequestTypeSectionChange, RequestTypeOther:
		return true
	}
	return false
}

// RequestStatus is the processing state of a change request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "Pending"
	RequestStatusApproved RequestStatus = "Approved"
	RequestStatusDenied   RequestStatus = "Denied"
)

// IsTerminal returns true for Approved and Denied
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDenied
}

// replacementPattern reads the replacement player out of free-text details
// such as "Swap Ana Ruiz with Ben Cole".
var replacementPattern = regexp.MustCompile(`(?i)\bwith\s+(.+)$`)

// ChangeRequest asks for a roster change on an issued invoice
type ChangeRequest struct {
	ID               uuid.UUID
	InvoiceID        string
	RegistrantName   string
	RegistrantID     string
	Type             RequestType
	Details          string
	ReplacementName  string
	SubmittedBy      string
	SubmittedAt      time.Time
	Status           RequestStatus
	ApprovedBy       string
	ProcessedAt      *time.Time
	ProcessedInBatch string
	Version          int
}

// NewChangeRequest creates a pending change request
func NewChangeRequest(invoiceID, registrantName string, reqType RequestType, details, submittedBy string) (*ChangeRequest, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_ID", "Change request must target an invoice")
	}
	if !reqType.IsValid() {
		return nil, shared.NewDomainError("INVALID_REQUEST_TYPE", "Unknown change request type: "+string(reqType))
	}
	return &ChangeRequest{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		RegistrantName: strings.TrimSpace(registrantName),
		Type:           reqType,
		Details:        details,
		SubmittedBy:    submittedBy,
		SubmittedAt:    time.Now(),
		Status:         RequestStatusPending,
		Version:        1,
	}, nil
}

// ReplacementPlayerName returns the substitute's name. The structured field
// wins; otherwise the name following "with" in the details is used.
func (c *ChangeRequest) ReplacementPlayerName() (string, bool) {
	if name := strings.TrimSpace(c.ReplacementName); name != "" {
		return name, true
	}
	m := replacementPattern.FindStringSubmatch(strings.TrimSpace(c.Details))
	if m == nil {
		return "", false
	}
	name := strings.TrimRight(strings.TrimSpace(m[1]), ".!;,")
	return name, name != ""
}

// Approve marks the request approved and records the replacement invoice id
func (c *ChangeRequest) Approve(approver, newInvoiceID string, at time.Time) error {
	if c.Status != RequestStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending change requests can be approved")
	}
	c.Status = RequestStatusApproved
	c.ApprovedBy = approver
	c.ProcessedAt = &at
	c.ProcessedInBatch = newInvoiceID
	c.Version++
	return nil
}

// Deny marks the request denied
func (c *ChangeRequest) Deny(approver string, at time.Time) error {
	if c.Status != RequestStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending change requests can be denied")
	}
	c.Status = RequestStatusDenied
	c.ApprovedBy = approver
	c.ProcessedAt = &at
	c.Version++
	return nil
}
