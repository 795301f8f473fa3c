package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/chessreg/backend/internal/domain/registrant"
)

// ImportResult is the itemized outcome of one ImportRange call
type ImportResult struct {
	Created       int         `json:"created"`
	Updated       int         `json:"updated"`
	Failed        int         `json:"failed"`
	Errors        []ItemError `json:"errors"`
	Notifications []string    `json:"notifications"`
}

func newImportResult() *ImportResult {
	return &ImportResult{
		Errors:        make([]ItemError, 0),
		Notifications: make([]string, 0),
	}
}

// invoiceOutcome is what importing one invoice produced
type invoiceOutcome struct {
	number        string
	created       bool
	err           error
	registrants   []*registrant.Registrant
	notifications []string
}

// emailTracker finds registrants that share an email address within one run
type emailTracker struct {
	owners map[string][]string // folded email -> registrant ids in first-seen order
}

func newEmailTracker() *emailTracker {
	return &emailTracker{owners: make(map[string][]string)}
}

func (t *emailTracker) observe(r *registrant.Registrant) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if email == "" {
		return
	}
	if !lo.Contains(t.owners[email], r.ID) {
		t.owners[email] = append(t.owners[email], r.ID)
	}
}

// notifications lists every shared address, sorted by address
func (t *emailTracker) notifications() []string {
	emails := make([]string, 0, len(t.owners))
	for email, ids := range t.owners {
		if len(ids) > 1 {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)
	return lo.Map(emails, func(email string, _ int) string {
		return fmt.Sprintf("Registrants %s share the email %s; they may be the same person.",
			strings.Join(t.owners[email], ", "), email)
	})
}

// registrantNotifications returns the advisories for one matched registrant
func registrantNotifications(invoiceNumber string, r *registrant.Registrant) []string {
	var out []string
	if r.IsPlaceholder() {
		out = append(out, fmt.Sprintf("Invoice #%s: %s has no membership ID and is stored as %s.",
			invoiceNumber, r.FullName(), r.ID))
	}
	if strings.TrimSpace(r.Email) == "" {
		out = append(out, fmt.Sprintf("Invoice #%s: %s (%s) has no email address.",
			invoiceNumber, r.FullName(), r.ID))
	}
	return out
}

// collect folds the outcomes into the result in invoice order
func (res *ImportResult) collect(outcomes []invoiceOutcome) {
	emails := newEmailTracker()
	notes := make([]string, 0)
	for _, o := range outcomes {
		if o.err != nil {
			res.Failed++
			res.Errors = append(res.Errors, newItemError(o.number, o.err))
			continue
		}
		if o.created {
			res.Created++
		} else {
			res.Updated++
		}
		notes = append(notes, o.notifications...)
		for _, r := range o.registrants {
			emails.observe(r)
		}
	}
	notes = append(notes, emails.notifications()...)
	res.Notifications = lo.Uniq(notes)
}
