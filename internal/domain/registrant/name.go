package registrant

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameKey folds a name into a comparison key: accents stripped, case folded,
// whitespace collapsed. "José  Núñez" and "JOSE NUNEZ" share a key.
func NameKey(parts ...string) string {
	joined := joinNonEmpty(parts...)
	if joined == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, joined)
	if err != nil {
		stripped = joined
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.Fields(folded), " ")
}
