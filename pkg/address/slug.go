package address

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug converts a display value into a single URL-safe path segment.
//
// The value is lower-cased, canonically decomposed with combining marks stripped,
// every rune outside [a-z0-9-] becomes a hyphen, hyphen runs collapse to one and
// leading/trailing hyphens are trimmed.
//
//	Slug("Land Rover")          // "land-rover"
//	Slug("Range Rover (Sport)") // "range-rover-sport"
//	Slug("Citroën")             // "citroen"
func Slug(value string) string {
	lowered := strings.ToLower(value)

	// transform.Chain keeps per-call state, so it is built for every call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		folded = lowered
	}

	var b strings.Builder
	b.Grow(len(folded))
	prevHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevHyphen = false
			continue
		}
		if prevHyphen {
			continue
		}
		b.WriteByte('-')
		prevHyphen = true
	}

	return strings.Trim(b.String(), "-")
}
