package registrant

import (
	"regexp"
	"strings"
)

// newMemberSentinel is written in place of a membership id for players who
// do not have one yet.
const newMemberSentinel = "NEW"

var (
	// listMarkerPattern matches numbered-list markers such as "3. " or "12) "
	listMarkerPattern = regexp.MustCompile(`(?:^|\s)\d{1,3}[.)]\s+`)
	// stableIDPattern matches membership ids (8 or more digits)
	stableIDPattern = regexp.MustCompile(`^\d{8,}$`)
	// capitalizedPattern matches a capitalized name token, accented letters included
	capitalizedPattern = regexp.MustCompile(`^\p{Lu}[\p{Ll}\p{M}'’-]+$`)
	// initialPattern matches a middle initial with or without a trailing dot
	initialPattern = regexp.MustCompile(`^\p{Lu}\.?$`)
	// newMemberPattern matches the standalone word "new" in any case
	newMemberPattern = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])new([^\p{L}\p{N}]|$)`)
)

// Candidate is a parsed, not yet matched registrant record
type Candidate struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	MiddleName  string `json:"middle_name,omitempty"`
	StableID    string `json:"stable_id,omitempty"`
	IsNewMember bool   `json:"is_new_member"`
}

// HasStableID reports whether the candidate carries a usable membership id
func (c Candidate) HasStableID() bool {
	id := strings.TrimSpace(c.StableID)
	return id != "" && !strings.EqualFold(id, newMemberSentinel)
}

// FullName returns "First Middle Last" with blanks skipped
func (c Candidate) FullName() string {
	return joinNonEmpty(c.FirstName, c.MiddleName, c.LastName)
}

// Key returns the normalized name key of the candidate
func (c Candidate) Key() string {
	return NameKey(c.FirstName, c.MiddleName, c.LastName)
}

// fragmentShape tries to read a candidate out of the cleaned tokens of one
// fragment. ok is false when the shape does not apply.
type fragmentShape func(tokens []string) (Candidate, bool)

// shapes are tried in order; the first match wins.
var shapes = []fragmentShape{
	namesWithID,
	threeCapitalized,
	twoCapitalized,
	looseNames,
}

// ParseCandidates extracts zero or more candidate registrants from a free-text
// fragment. Fragment order is preserved and the result is deterministic.
func ParseCandidates(text string) []Candidate {
	candidates := make([]Candidate, 0)
	for _, fragment := range splitFragments(text) {
		tokens := cleanTokens(fragment)
		if len(tokens) == 0 {
			continue
		}
		for _, shape := range shapes {
			cand, ok := shape(tokens)
			if !ok {
				continue
			}
			cand.IsNewMember = newMemberPattern.MatchString(fragment)
			candidates = append(candidates, cand)
			break
		}
	}
	return candidates
}

func splitFragments(text string) []string {
	fragments := make([]string, 0)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		for _, part := range listMarkerPattern.Split(line, -1) {
			part = strings.TrimSpace(part)
			if part != "" {
				fragments = append(fragments, part)
			}
		}
	}
	return fragments
}

func cleanTokens(fragment string) []string {
	fields := strings.Fields(strings.ReplaceAll(fragment, ",", " "))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",;:()[]\"")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isIDToken(tok string) bool {
	return stableIDPattern.MatchString(tok) || strings.EqualFold(tok, newMemberSentinel)
}

func isNewToken(tok string) bool {
	return strings.EqualFold(tok, newMemberSentinel)
}

// namesWithID matches "<names...> <id>" and "<id> <names...>". A lone name
// is accepted only next to a numeric id.
func namesWithID(tokens []string) (Candidate, bool) {
	tokens = trimNewFlags(tokens)
	if len(tokens) < 2 {
		return Candidate{}, false
	}
	var id string
	var names []string
	switch {
	case isIDToken(tokens[len(tokens)-1]):
		id, names = tokens[len(tokens)-1], tokens[:len(tokens)-1]
	case isIDToken(tokens[0]):
		id, names = tokens[0], tokens[1:]
	default:
		return Candidate{}, false
	}
	for _, n := range names {
		if isIDToken(n) {
			return Candidate{}, false
		}
	}
	if len(names) == 1 && isNewToken(id) {
		return Candidate{}, false
	}
	cand := fromNames(names)
	if !isNewToken(id) {
		cand.StableID = id
	}
	return cand, true
}

// trimNewFlags drops leading and trailing "NEW" markers from a fragment that
// also carries a numeric membership id, as in "Juan Perez 12345678 NEW".
func trimNewFlags(tokens []string) []string {
	hasNumericID := false
	for _, t := range tokens {
		if stableIDPattern.MatchString(t) {
			hasNumericID = true
			break
		}
	}
	if !hasNumericID {
		return tokens
	}
	for len(tokens) > 0 && isNewToken(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && isNewToken(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func threeCapitalized(tokens []string) (Candidate, bool) {
	if len(tokens) != 3 {
		return Candidate{}, false
	}
	if !capitalizedPattern.MatchString(tokens[0]) || !capitalizedPattern.MatchString(tokens[1]) {
		return Candidate{}, false
	}
	if !capitalizedPattern.MatchString(tokens[2]) && !initialPattern.MatchString(tokens[2]) {
		return Candidate{}, false
	}
	return fromNames(tokens), true
}

func twoCapitalized(tokens []string) (Candidate, bool) {
	if len(tokens) != 2 {
		return Candidate{}, false
	}
	if !capitalizedPattern.MatchString(tokens[0]) || !capitalizedPattern.MatchString(tokens[1]) {
		return Candidate{}, false
	}
	return fromNames(tokens), true
}

// looseNames is the fallback: first token is the first name, second the last
// name, a third one the middle name. The "new" marker is not a name.
func looseNames(tokens []string) (Candidate, bool) {
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !isNewToken(t) {
			names = append(names, t)
		}
	}
	if len(names) < 2 {
		return Candidate{}, false
	}
	if len(names) > 3 {
		names = names[:3]
	}
	return fromNames(names), true
}

func fromNames(names []string) Candidate {
	cand := Candidate{FirstName: names[0]}
	if len(names) > 1 {
		cand.LastName = names[1]
	}
	if len(names) > 2 {
		cand.MiddleName = strings.Join(names[2:], " ")
	}
	return cand
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
