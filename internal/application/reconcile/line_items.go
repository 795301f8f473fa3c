package reconcile

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/chessreg/backend/internal/domain/integration"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/registrant"
)

// lineCategory is a bit set of what a line item pays for
type lineCategory uint8

const (
	categoryRegistration lineCategory = 1 << iota
	categoryMembership
)

func (c lineCategory) has(other lineCategory) bool {
	return c&other != 0
}

type lineItemRule struct {
	keyword  string
	category lineCategory
}

// lineItemRules classify line items by case-insensitive substring of their
// name. Every matching rule applies.
var lineItemRules = []lineItemRule{
	{keyword: "registration", category: categoryRegistration},
	{keyword: "uscf", category: categoryMembership},
	{keyword: "membership", category: categoryMembership},
}

// parenthesizedSuffix captures a trailing "(...)" of a line item name
var parenthesizedSuffix = regexp.MustCompile(`\(([^()]*)\)\s*$`)

func classifyLineItem(name string) lineCategory {
	lower := strings.ToLower(name)
	var c lineCategory
	for _, rule := range lineItemRules {
		if strings.Contains(lower, rule.keyword) {
			c |= rule.category
		}
	}
	return c
}

// unitFee is the line total divided by its quantity, rounded to cents
func unitFee(li integration.LineItem) decimal.Decimal {
	if !li.Quantity.IsPositive() {
		return li.TotalMoney
	}
	return li.TotalMoney.DivRound(li.Quantity, 2)
}

// candidateTexts returns the free-text sources of one line item in the order
// they are parsed: note, variation label, parenthesized name suffix
func candidateTexts(li integration.LineItem) []string {
	texts := []string{li.Note, li.VariationName}
	if m := parenthesizedSuffix.FindStringSubmatch(li.Name); m != nil {
		texts = append(texts, m[1])
	}
	return lo.Compact(lo.Map(texts, func(s string, _ int) string { return strings.TrimSpace(s) }))
}

// sighting is one candidate seen on one line item
type sighting struct {
	candidate registrant.Candidate
	category  lineCategory
}

// selection returns the selection entry the sighting contributes
func (s sighting) selection() invoice.Selection {
	sel := invoice.Selection{IsRegistered: s.category.has(categoryRegistration)}
	if s.category.has(categoryMembership) {
		sel.USCFStatus = registrant.MembershipRenewing
		if s.candidate.IsNewMember {
			sel.USCFStatus = registrant.MembershipNew
		}
	}
	return sel
}

// orderLines is everything the importer reads out of an order's line items
type orderLines struct {
	sightings []sighting
	baseFee   decimal.Decimal
}

func readOrderLines(order *integration.Order) orderLines {
	out := orderLines{baseFee: decimal.Zero}
	for _, li := range order.LineItems {
		category := classifyLineItem(li.Name)
		if category.has(categoryRegistration) {
			if fee := unitFee(li); fee.GreaterThan(out.baseFee) {
				out.baseFee = fee
			}
		}
		for _, text := range candidateTexts(li) {
			for _, cand := range registrant.ParseCandidates(text) {
				out.sightings = append(out.sightings, sighting{candidate: cand, category: category})
			}
		}
	}
	return out
}

// stableIDs returns the distinct membership ids among the sightings
func (o orderLines) stableIDs() []string {
	ids := lo.FilterMap(o.sightings, func(s sighting, _ int) (string, bool) {
		return strings.TrimSpace(s.candidate.StableID), s.candidate.HasStableID()
	})
	return lo.Uniq(ids)
}
