package models

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/chessreg/backend/internal/domain/registrant"
)

// RegistrantModel is the persistence model for the Registrant aggregate
type RegistrantModel struct {
	ID string `gorm:"type:varchar(64);primaryKey"`
	AggregateModel
	MembershipID     string         `gorm:"type:varchar(32);index"`
	FirstName        string         `gorm:"type:varchar(100)"`
	MiddleName       string         `gorm:"type:varchar(100)"`
	LastName         string         `gorm:"type:varchar(100)"`
	NameKey          string         `gorm:"type:varchar(300);not null;index"`
	School           string         `gorm:"type:varchar(200)"`
	District         string         `gorm:"type:varchar(200)"`
	Email            string         `gorm:"type:varchar(200);index"`
	Phone            string         `gorm:"type:varchar(50)"`
	MembershipStatus string         `gorm:"type:varchar(20)"`
	History          datatypes.JSON `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RegistrantModel) TableName() string {
	return "registrants"
}

// ToDomain converts the persistence model to a domain Registrant
func (m *RegistrantModel) ToDomain() (*registrant.Registrant, error) {
	history := make([]registrant.ChangeEntry, 0)
	if err := unmarshalJSON(m.History, &history); err != nil {
		return nil, fmt.Errorf("decode history of registrant %s: %w", m.ID, err)
	}
	return &registrant.Registrant{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ID:                m.ID,
		MembershipID:      m.MembershipID,
		FirstName:         m.FirstName,
		MiddleName:        m.MiddleName,
		LastName:          m.LastName,
		School:            m.School,
		District:          m.District,
		Email:             m.Email,
		Phone:             m.Phone,
		MembershipStatus:  m.MembershipStatus,
		History:           history,
	}, nil
}

// FromDomain populates the persistence model from a domain Registrant
func (m *RegistrantModel) FromDomain(r *registrant.Registrant) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.ID = r.ID
	m.MembershipID = r.MembershipID
	m.FirstName = r.FirstName
	m.MiddleName = r.MiddleName
	m.LastName = r.LastName
	m.NameKey = r.NameKey()
	m.School = r.School
	m.District = r.District
	m.Email = r.Email
	m.Phone = r.Phone
	m.MembershipStatus = r.MembershipStatus
	m.History = marshalJSON(r.History)
}

// RegistrantModelFromDomain creates a new persistence model from a domain Registrant
func RegistrantModelFromDomain(r *registrant.Registrant) *RegistrantModel {
	m := &RegistrantModel{}
	m.FromDomain(r)
	return m
}
