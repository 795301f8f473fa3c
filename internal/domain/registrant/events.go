package registrant

import "github.com/chessreg/backend/internal/domain/shared"

// Aggregate type constant
const AggregateTypeRegistrant = "Registrant"

// Event type constants
const (
	EventTypeRegistrantCreated = "registrant.created"
)

// RegistrantCreatedEvent is published when the engine creates a registrant
type RegistrantCreatedEvent struct {
	shared.BaseDomainEvent
	RegistrantID string `json:"registrant_id"`
	FullName     string `json:"full_name"`
	Placeholder  bool   `json:"placeholder"`
}

// NewRegistrantCreatedEvent creates a new RegistrantCreatedEvent
func NewRegistrantCreatedEvent(r *Registrant) *RegistrantCreatedEvent {
	return &RegistrantCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRegistrantCreated, AggregateTypeRegistrant, r.ID),
		RegistrantID:    r.ID,
		FullName:        r.FullName(),
		Placeholder:     r.IsPlaceholder(),
	}
}
