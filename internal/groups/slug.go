package groups

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var slugFolder = cases.Lower(language.Und)

// Slugify derives the URL-safe identifier for a group name: case-folded,
// non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	folded := slugFolder.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(folded))
	lastHyphen := true
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
