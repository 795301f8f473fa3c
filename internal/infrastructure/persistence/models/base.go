// Package models contains GORM persistence models. They are kept apart from
// the domain types so the domain stays free of ORM tags; each model carries
// ToDomain/FromDomain mappers used by the repositories.
package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/chessreg/backend/internal/domain/shared"
)

// AggregateModel provides the timestamp and version columns shared by every
// aggregate table. Identity is declared by each model since the key types
// differ.
type AggregateModel struct {
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Version   int       `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from a domain aggregate root
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

// ToDomainAggregateRoot returns the domain aggregate root for the stored columns
func (m *AggregateModel) ToDomainAggregateRoot() shared.BaseAggregateRoot {
	a := shared.NewBaseAggregateRoot()
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	a.Version = m.Version
	return a
}

func marshalJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func unmarshalJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
