package registrant

import (
	"context"
	"fmt"
	"strings"
)

// Repository defines the interface for registrant persistence
type Repository interface {
	// FindByID finds a registrant by its id
	FindByID(ctx context.Context, id string) (*Registrant, error)

	// FindByIDs finds the registrants with the given ids, missing ids are skipped
	FindByIDs(ctx context.Context, ids []string) ([]*Registrant, error)

	// FindByNameKey finds registrants whose folded full name equals key
	FindByNameKey(ctx context.Context, key string) ([]*Registrant, error)

	// Save creates or updates a registrant
	Save(ctx context.Context, r *Registrant) error

	// SaveBatch creates or updates multiple registrants
	SaveBatch(ctx context.Context, rs []*Registrant) error
}

// PlaceholderID formats a placeholder id as PREFIX-SUFFIX-INITIALS
func PlaceholderID(prefix, suffix, firstName, lastName string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, suffix, initials(firstName, lastName))
}

func initials(names ...string) string {
	var b strings.Builder
	for _, n := range names {
		for _, r := range strings.TrimSpace(n) {
			b.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}
