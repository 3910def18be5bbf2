package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "miss": true, "prof": true,
	"professor": true, "sir": true, "rev": true,
}

// FoldName lowercases, strips accents, honorifics and punctuation, and collapses
// whitespace, so "Dr. José  Álvarez" and "jose alvarez" compare equal.
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '\'':
			// keep hyphenated and apostrophe names intact
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	out := words[:0]
	for i, w := range words {
		if i == 0 && honorifics[w] && len(words) > 1 {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// DisplayName trims and title-cases an extracted name for storage.
func DisplayName(name string) string {
	name = strings.Join(strings.Fields(strings.TrimSpace(name)), " ")
	if name == "" {
		return ""
	}
	if strings.ToLower(name) == name || strings.ToUpper(name) == name {
		return cases.Title(language.English).String(strings.ToLower(name))
	}
	return name
}

var orgWords = []string{"podcast", "media", "network", "productions", "studios", "llc", "inc", "radio"}

// LooksLikeOrganization reports whether an owner/author field names the show or a
// company rather than a person.
func LooksLikeOrganization(owner string, showNames ...string) bool {
	fo := FoldName(owner)
	if fo == "" {
		return true
	}
	for _, n := range showNames {
		if fn := FoldName(n); fn != "" && fn == fo {
			return true
		}
	}
	padded := " " + fo + " "
	for _, w := range orgWords {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}
