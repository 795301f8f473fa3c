package school

import (
	"regexp"
	"strings"
)

// Fallback names used when nothing can be resolved
const (
	UnknownSchool   = "Unknown School"
	UnknownDistrict = "Unknown District"
)

// CodeMapping maps a known code fragment found in customer text to a school
type CodeMapping struct {
	Code     string `mapstructure:"code" json:"code"`
	School   string `mapstructure:"school" json:"school"`
	District string `mapstructure:"district" json:"district"`
}

// Placement is the resolved (school, district) pair
type Placement struct {
	School   string `json:"school"`
	District string `json:"district"`
}

// HasSchool reports whether a real school was resolved
func (p Placement) HasSchool() bool {
	return p.School != "" && p.School != UnknownSchool
}

// HasDistrict reports whether a real district was resolved
func (p Placement) HasDistrict() bool {
	return p.District != "" && p.District != UnknownDistrict
}

var (
	// districtPattern finds up to two words followed by a district suffix
	districtPattern = regexp.MustCompile(`(?i)\b((?:[\p{L}\p{N}.'&-]+\s+){0,2})(CISD|ISD|USD|SCHOOL\s+DISTRICT)\b`)

	schoolTypeWords = map[string]bool{
		"school":       true,
		"elementary":   true,
		"middle":       true,
		"high":         true,
		"junior":       true,
		"intermediate": true,
		"primary":      true,
		"academy":      true,
		"prep":         true,
		"charter":      true,
	}
)

// Resolve maps free customer text to a school and district. It never fails:
// text that cannot be resolved yields Unknown School / Unknown District.
func Resolve(customerText string, codes []CodeMapping) Placement {
	text := strings.TrimSpace(customerText)
	if text == "" {
		return Placement{School: UnknownSchool, District: UnknownDistrict}
	}

	upper := strings.ToUpper(text)
	for _, m := range codes {
		code := strings.ToUpper(strings.TrimSpace(m.Code))
		if code != "" && strings.Contains(upper, code) {
			return Placement{
				School:   orDefault(m.School, UnknownSchool),
				District: orDefault(m.District, UnknownDistrict),
			}
		}
	}

	if left, right, found := strings.Cut(text, "/"); found {
		return Placement{
			School:   orDefault(strings.TrimSpace(left), UnknownSchool),
			District: orDefault(strings.TrimSpace(right), UnknownDistrict),
		}
	}

	return Placement{School: text, District: extractDistrict(text)}
}

// Resolver resolves placements against a fixed code table
type Resolver struct {
	codes []CodeMapping
}

// NewResolver creates a resolver over the given code table
func NewResolver(codes []CodeMapping) *Resolver {
	c := make([]CodeMapping, len(codes))
	copy(c, codes)
	return &Resolver{codes: c}
}

// Resolve resolves customer text with the resolver's code table
func (r *Resolver) Resolve(customerText string) Placement {
	return Resolve(customerText, r.codes)
}

func extractDistrict(text string) string {
	m := districtPattern.FindStringSubmatch(text)
	if m == nil {
		return UnknownDistrict
	}
	words := strings.Fields(m[1])
	for len(words) > 0 && schoolTypeWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	suffix := strings.Join(strings.Fields(m[2]), " ")
	return strings.Join(append(words, suffix), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
