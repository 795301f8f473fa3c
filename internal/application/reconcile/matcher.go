package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chessreg/backend/internal/domain/registrant"
	"github.com/chessreg/backend/internal/domain/school"
	"github.com/chessreg/backend/internal/domain/shared"
)

// SuffixGenerator issues the unique part of placeholder ids
type SuffixGenerator interface {
	Suffix() string
}

// Batch is the registrant working set of one invoice import. Writes are
// collected here and committed together with the invoice summary.
type Batch struct {
	repo    registrant.Repository
	known   map[string]string // name key -> id, from the stored selections of the invoice
	byID    map[string]*registrant.Registrant
	byKey   map[string]string
	dirty   map[string]bool
	order   []string
	created []string
}

// NewBatch creates a batch reading from repo. known maps name keys to the
// registrant ids already on the invoice being imported.
func NewBatch(repo registrant.Repository, known map[string]string) *Batch {
	if known == nil {
		known = make(map[string]string)
	}
	return &Batch{
		repo:  repo,
		known: known,
		byID:  make(map[string]*registrant.Registrant),
		byKey: make(map[string]string),
		dirty: make(map[string]bool),
	}
}

func (b *Batch) remember(r *registrant.Registrant) {
	if _, ok := b.byID[r.ID]; !ok {
		b.order = append(b.order, r.ID)
	}
	b.byID[r.ID] = r
	if key := r.NameKey(); key != "" {
		if _, taken := b.byKey[key]; !taken {
			b.byKey[key] = r.ID
		}
	}
}

// Pending returns the registrants that must be written, in first-seen order
func (b *Batch) Pending() []*registrant.Registrant {
	out := make([]*registrant.Registrant, 0, len(b.dirty))
	for _, id := range b.order {
		if b.dirty[id] {
			out = append(out, b.byID[id])
		}
	}
	return out
}

// Registrants returns every registrant matched in the batch, in first-seen order
func (b *Batch) Registrants() []*registrant.Registrant {
	out := make([]*registrant.Registrant, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

// Created returns the ids created by the batch
func (b *Batch) Created() []string {
	return b.created
}

// Contact is the purchaser contact of the invoice a candidate was read from.
// It only fills a registrant's blank email and phone.
type Contact struct {
	Email string
	Phone string
}

// Matcher turns parsed candidates into registrant ids. Automatic matching is
// by membership id only; names are compared solely against registrants that
// are already on the same invoice.
type Matcher struct {
	actor  string
	prefix string
	ids    SuffixGenerator
	now    func() time.Time
}

// NewMatcher creates a matcher recording actor on history entries and
// building placeholder ids from prefix and ids
func NewMatcher(actor, prefix string, ids SuffixGenerator) *Matcher {
	return &Matcher{actor: actor, prefix: prefix, ids: ids, now: time.Now}
}

// MatchOrCreate returns the registrant id for cand, updating or creating the
// registrant inside batch
func (m *Matcher) MatchOrCreate(ctx context.Context, cand registrant.Candidate, p school.Placement, contact Contact, batch *Batch) (string, error) {
	obs := observation(cand, p)

	if cand.HasStableID() {
		id := strings.TrimSpace(cand.StableID)
		if r, ok := batch.byID[id]; ok {
			m.apply(batch, r, withContact(obs, r, contact))
			return id, nil
		}
		r, err := batch.repo.FindByID(ctx, id)
		switch {
		case err == nil:
			batch.remember(r)
			m.apply(batch, r, withContact(obs, r, contact))
		case errors.Is(err, shared.ErrNotFound):
			if err := m.create(batch, id, id, withContact(obs, nil, contact)); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("load registrant %s: %w", id, err)
		}
		return id, nil
	}

	key := cand.Key()
	if id, ok := batch.byKey[key]; ok {
		r := batch.byID[id]
		m.apply(batch, r, withContact(obs, r, contact))
		return id, nil
	}
	if id, ok := batch.known[key]; ok {
		r, err := batch.repo.FindByID(ctx, id)
		switch {
		case err == nil:
			batch.remember(r)
			m.apply(batch, r, withContact(obs, r, contact))
			return id, nil
		case !errors.Is(err, shared.ErrNotFound):
			return "", fmt.Errorf("load registrant %s: %w", id, err)
		}
	}

	id := registrant.PlaceholderID(m.prefix, m.ids.Suffix(), cand.FirstName, cand.LastName)
	if err := m.create(batch, id, "", withContact(obs, nil, contact)); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Matcher) apply(batch *Batch, r *registrant.Registrant, obs registrant.Observation) {
	if diffs := r.ApplyObservation(obs, m.actor, m.now()); len(diffs) > 0 {
		batch.dirty[r.ID] = true
	}
}

func (m *Matcher) create(batch *Batch, id, membershipID string, obs registrant.Observation) error {
	r, err := registrant.NewRegistrant(id, membershipID, obs, m.actor)
	if err != nil {
		return err
	}
	batch.remember(r)
	batch.dirty[id] = true
	batch.created = append(batch.created, id)
	return nil
}

func observation(cand registrant.Candidate, p school.Placement) registrant.Observation {
	obs := registrant.Observation{
		FirstName:  cand.FirstName,
		MiddleName: cand.MiddleName,
		LastName:   cand.LastName,
	}
	if p.HasSchool() {
		obs.School = p.School
	}
	if p.HasDistrict() {
		obs.District = p.District
	}
	return obs
}

// withContact copies the purchaser contact into obs for the fields r has not
// set yet. r is nil for a registrant about to be created.
func withContact(obs registrant.Observation, r *registrant.Registrant, contact Contact) registrant.Observation {
	if r == nil || strings.TrimSpace(r.Email) == "" {
		obs.Email = contact.Email
	}
	if r == nil || strings.TrimSpace(r.Phone) == "" {
		obs.Phone = contact.Phone
	}
	return obs
}
