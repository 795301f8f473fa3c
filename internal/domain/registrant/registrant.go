package registrant

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chessreg/backend/internal/domain/shared"
)

// Membership actions recorded on a registrant and on invoice selections
const (
	MembershipNew      = "new"
	MembershipRenewing = "renewing"
)

// FieldDiff records one field-level change
type FieldDiff struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangeEntry is one entry in a registrant's change history
type ChangeEntry struct {
	ID        uuid.UUID   `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Editor    string      `json:"editor"`
	Changes   []FieldDiff `json:"changes"`
}

// Observation is what an import learned about a registrant. Blank fields
// carry no information and never clear a stored value.
type Observation struct {
	FirstName        string
	MiddleName       string
	LastName         string
	School           string
	District         string
	Email            string
	Phone            string
	MembershipStatus string
}

// Registrant is the canonical player record
type Registrant struct {
	shared.BaseAggregateRoot
	ID               string
	MembershipID     string
	FirstName        string
	MiddleName       string
	LastName         string
	School           string
	District         string
	Email            string
	Phone            string
	MembershipStatus string
	History          []ChangeEntry
}

// NewRegistrant creates a registrant from its first observation. membershipID
// is empty for placeholder records.
func NewRegistrant(id, membershipID string, obs Observation, editor string) (*Registrant, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewDomainError("INVALID_REGISTRANT_ID", "Registrant id cannot be empty")
	}
	if strings.TrimSpace(obs.FirstName) == "" && strings.TrimSpace(obs.LastName) == "" {
		return nil, shared.NewDomainError("INVALID_REGISTRANT_NAME", "Registrant needs a first or last name")
	}

	r := &Registrant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ID:                id,
		MembershipID:      membershipID,
		History:           make([]ChangeEntry, 0, 1),
	}
	diffs := r.merge(obs)
	r.History = append(r.History, ChangeEntry{
		ID:        uuid.New(),
		Timestamp: r.CreatedAt,
		Editor:    editor,
		Changes:   diffs,
	})
	r.AddDomainEvent(NewRegistrantCreatedEvent(r))
	return r, nil
}

// IsPlaceholder reports whether the record has no membership id yet
func (r *Registrant) IsPlaceholder() bool {
	return r.MembershipID == ""
}

// FullName returns "First Middle Last"
func (r *Registrant) FullName() string {
	return joinNonEmpty(r.FirstName, r.MiddleName, r.LastName)
}

// NameKey returns the folded comparison key of the registrant's name
func (r *Registrant) NameKey() string {
	return NameKey(r.FirstName, r.MiddleName, r.LastName)
}

// ApplyObservation merges newly observed non-blank fields. When at least one
// field changes a history entry is appended and the diffs are returned; an
// observation that changes nothing leaves the record untouched.
func (r *Registrant) ApplyObservation(obs Observation, editor string, at time.Time) []FieldDiff {
	diffs := r.merge(obs)
	if len(diffs) == 0 {
		return nil
	}
	r.History = append(r.History, ChangeEntry{
		ID:        uuid.New(),
		Timestamp: at,
		Editor:    editor,
		Changes:   diffs,
	})
	r.UpdatedAt = at
	r.IncrementVersion()
	return diffs
}

func (r *Registrant) merge(obs Observation) []FieldDiff {
	diffs := make([]FieldDiff, 0)
	set := func(field string, dst *string, val string) {
		val = strings.TrimSpace(val)
		if val == "" || val == *dst {
			return
		}
		diffs = append(diffs, FieldDiff{Field: field, Old: *dst, New: val})
		*dst = val
	}
	set("firstName", &r.FirstName, obs.FirstName)
	set("middleName", &r.MiddleName, obs.MiddleName)
	set("lastName", &r.LastName, obs.LastName)
	set("school", &r.School, obs.School)
	set("district", &r.District, obs.District)
	set("email", &r.Email, obs.Email)
	set("phone", &r.Phone, obs.Phone)
	set("membershipStatus", &r.MembershipStatus, obs.MembershipStatus)
	return diffs
}
