package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/chessreg/backend/internal/domain/invoice"
)

// InvoiceSummaryModel is the persistence model for the InvoiceSummary aggregate
type InvoiceSummaryModel struct {
	ID string `gorm:"type:varchar(64);primaryKey"`
	AggregateModel
	InvoiceNumber       string          `gorm:"type:varchar(32);not null;index"`
	Title               string          `gorm:"type:varchar(255)"`
	OrderID             string          `gorm:"type:varchar(64)"`
	CustomerID          string          `gorm:"type:varchar(64)"`
	School              string          `gorm:"type:varchar(200)"`
	District            string          `gorm:"type:varchar(200)"`
	PurchaserName       string          `gorm:"type:varchar(200)"`
	PurchaserEmail      string          `gorm:"type:varchar(200)"`
	Selections          datatypes.JSON  `gorm:"not null"`
	BaseRegistrationFee decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalPaid           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status              invoice.Status  `gorm:"type:varchar(24);not null;index"`
	PaymentHistory      datatypes.JSON  `gorm:"not null"`
	PublicURL           string          `gorm:"type:varchar(500)"`
	PreviousVersionID   string          `gorm:"type:varchar(64);index"`
	SupersededByID      string          `gorm:"type:varchar(64)"`
	CancellationNote    string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceSummaryModel) TableName() string {
	return "invoice_summaries"
}

// ToDomain converts the persistence model to a domain InvoiceSummary
func (m *InvoiceSummaryModel) ToDomain() (*invoice.InvoiceSummary, error) {
	selections := make(invoice.Selections)
	if err := unmarshalJSON(m.Selections, &selections); err != nil {
		return nil, fmt.Errorf("decode selections of invoice %s: %w", m.InvoiceNumber, err)
	}
	history := make([]invoice.PaymentEntry, 0)
	if err := unmarshalJSON(m.PaymentHistory, &history); err != nil {
		return nil, fmt.Errorf("decode payment history of invoice %s: %w", m.InvoiceNumber, err)
	}
	return &invoice.InvoiceSummary{
		BaseAggregateRoot:   m.ToDomainAggregateRoot(),
		ID:                  m.ID,
		InvoiceNumber:       m.InvoiceNumber,
		Title:               m.Title,
		OrderID:             m.OrderID,
		CustomerID:          m.CustomerID,
		School:              m.School,
		District:            m.District,
		PurchaserName:       m.PurchaserName,
		PurchaserEmail:      m.PurchaserEmail,
		Selections:          selections,
		BaseRegistrationFee: m.BaseRegistrationFee,
		TotalAmount:         m.TotalAmount,
		TotalPaid:           m.TotalPaid,
		Status:              m.Status,
		PaymentHistory:      history,
		PublicURL:           m.PublicURL,
		PreviousVersionID:   m.PreviousVersionID,
		SupersededByID:      m.SupersededByID,
		CancellationNote:    m.CancellationNote,
	}, nil
}

// FromDomain populates the persistence model from a domain InvoiceSummary
func (m *InvoiceSummaryModel) FromDomain(s *invoice.InvoiceSummary) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.ID = s.ID
	m.InvoiceNumber = s.InvoiceNumber
	m.Title = s.Title
	m.OrderID = s.OrderID
	m.CustomerID = s.CustomerID
	m.School = s.School
	m.District = s.District
	m.PurchaserName = s.PurchaserName
	m.PurchaserEmail = s.PurchaserEmail
	m.Selections = marshalJSON(s.Selections)
	m.BaseRegistrationFee = s.BaseRegistrationFee
	m.TotalAmount = s.TotalAmount
	m.TotalPaid = s.TotalPaid
	m.Status = s.Status
	m.PaymentHistory = marshalJSON(s.PaymentHistory)
	m.PublicURL = s.PublicURL
	m.PreviousVersionID = s.PreviousVersionID
	m.SupersededByID = s.SupersededByID
	m.CancellationNote = s.CancellationNote
}

// InvoiceSummaryModelFromDomain creates a new persistence model from a domain InvoiceSummary
func InvoiceSummaryModelFromDomain(s *invoice.InvoiceSummary) *InvoiceSummaryModel {
	m := &InvoiceSummaryModel{}
	m.FromDomain(s)
	return m
}

// ChangeRequestModel is the persistence model for ChangeRequest
type ChangeRequestModel struct {
	ID               uuid.UUID             `gorm:"type:uuid;primaryKey"`
	InvoiceID        string                `gorm:"type:varchar(64);not null;index"`
	RegistrantName   string                `gorm:"type:varchar(200);not null"`
	RegistrantID     string                `gorm:"type:varchar(64)"`
	Type             invoice.RequestType   `gorm:"type:varchar(24);not null"`
	Details          string                `gorm:"type:text"`
	ReplacementName  string                `gorm:"type:varchar(200)"`
	SubmittedBy      string                `gorm:"type:varchar(200)"`
	SubmittedAt      time.Time             `gorm:"not null"`
	Status           invoice.RequestStatus `gorm:"type:varchar(16);not null;index"`
	ApprovedBy       string                `gorm:"type:varchar(200)"`
	ProcessedAt      *time.Time
	ProcessedInBatch string `gorm:"type:varchar(64)"`
	Version          int    `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (ChangeRequestModel) TableName() string {
	return "change_requests"
}

// ToDomain converts the persistence model to a domain ChangeRequest
func (m *ChangeRequestModel) ToDomain() *invoice.ChangeRequest {
	return &invoice.ChangeRequest{
		ID:               m.ID,
		InvoiceID:        m.InvoiceID,
		RegistrantName:   m.RegistrantName,
		RegistrantID:     m.RegistrantID,
		Type:             m.Type,
		Details:          m.Details,
		ReplacementName:  m.ReplacementName,
		SubmittedBy:      m.SubmittedBy,
		SubmittedAt:      m.SubmittedAt,
		Status:           m.Status,
		ApprovedBy:       m.ApprovedBy,
		ProcessedAt:      m.ProcessedAt,
		ProcessedInBatch: m.ProcessedInBatch,
		Version:          m.Version,
	}
}

// FromDomain populates the persistence model from a domain ChangeRequest
func (m *ChangeRequestModel) FromDomain(cr *invoice.ChangeRequest) {
	m.ID = cr.ID
	m.InvoiceID = cr.InvoiceID
	m.RegistrantName = cr.RegistrantName
	m.RegistrantID = cr.RegistrantID
	m.Type = cr.Type
	m.Details = cr.Details
	m.ReplacementName = cr.ReplacementName
	m.SubmittedBy = cr.SubmittedBy
	m.SubmittedAt = cr.SubmittedAt
	m.Status = cr.Status
	m.ApprovedBy = cr.ApprovedBy
	m.ProcessedAt = cr.ProcessedAt
	m.ProcessedInBatch = cr.ProcessedInBatch
	m.Version = cr.Version
}

// ChangeRequestModelFromDomain creates a new persistence model from a domain ChangeRequest
func ChangeRequestModelFromDomain(cr *invoice.ChangeRequest) *ChangeRequestModel {
	m := &ChangeRequestModel{}
	m.FromDomain(cr)
	return m
}

// All returns every model managed by the application, in migration order
func All() []any {
	return []any{&RegistrantModel{}, &InvoiceSummaryModel{}, &ChangeRequestModel{}}
}
