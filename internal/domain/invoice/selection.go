package invoice

import "sort"

// Selection is what an invoice records for one registrant
type Selection struct {
	IsRegistered bool   `json:"isRegistered"`
	USCFStatus   string `json:"uscfStatus,omitempty"`
	Section      string `json:"section,omitempty"`
	Withdrawn    bool   `json:"withdrawn,omitempty"`
}

// Combine folds another observation of the same registrant into s
func (s Selection) Combine(other Selection) Selection {
	s.IsRegistered = s.IsRegistered || other.IsRegistered
	if other.USCFStatus != "" {
		s.USCFStatus = other.USCFStatus
	}
	if s.Section == "" {
		s.Section = other.Section
	}
	s.Withdrawn = s.Withdrawn || other.Withdrawn
	return s
}

// Selections maps registrant id to its selection
type Selections map[string]Selection

// Clone returns a copy of the map
func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the registrant ids in sorted order
func (s Selections) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both maps hold the same entries
func (s Selections) Equal(other Selections) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if o, ok := other[k]; !ok || o != v {
			return false
		}
	}
	return true
}

// MergeImported folds freshly imported selections into the stored ones.
// Stored entries missing from the import are kept, and a stored section or
// withdrawal flag is never overwritten by the import.
func (s Selections) MergeImported(fresh Selections) Selections {
	merged := s.Clone()
	for k, v := range fresh {
		cur, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}
		cur.IsRegistered = cur.IsRegistered || v.IsRegistered
		if v.USCFStatus != "" {
			cur.USCFStatus = v.USCFStatus
		}
		if cur.Section == "" {
			cur.Section = v.Section
		}
		merged[k] = cur
	}
	return merged
}
