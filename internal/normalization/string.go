package normalization

import (
	"net/mail"
	"strings"
)

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LooksLikeEmail reports an email address sitting where a URL was expected:
// an "@" with no http(s) scheme, or a mailto: link.
func LooksLikeEmail(s string) bool {
	s = lowerTrim(s)
	if strings.HasPrefix(s, "mailto:") {
		return true
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return false
	}
	return strings.Contains(s, "@") && !strings.HasPrefix(s, "@")
}

// Email returns the bare address when s parses as one, else "".
func Email(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "mailto:"), "MAILTO:")
	if s == "" {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return ""
	}
	return lowerTrim(addr.Address)
}
