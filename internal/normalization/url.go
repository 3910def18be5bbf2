package normalization

import (
	"net/url"
	"strings"

	"github.com/yungbote/podreach-backend/internal/domain/media"
)

// URL canonicalizes a profile or feed URL for dedup and comparison: https scheme,
// no query/fragment/trailing slash, lowercase, "www." dropped except for LinkedIn.
// Values that are not URLs (including bare emails) normalize to "".
func URL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || LooksLikeEmail(s) {
		return ""
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "http://"):
		s = "https://" + s[len("http://"):]
	case strings.HasPrefix(lower, "//"):
		s = "https:" + s
	case strings.Contains(lower, "://"):
		return ""
	default:
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if !strings.Contains(host, ".") {
		return ""
	}
	if strings.HasPrefix(host, "www.") && !strings.Contains(host, "linkedin.com") {
		host = strings.TrimPrefix(host, "www.")
	}
	if port := u.Port(); port != "" && port != "443" && port != "80" {
		host += ":" + port
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower("https://" + host + path)
}

// FeedURL normalizes an RSS URL. Feed paths can be case-sensitive, so only the
// scheme and host are folded.
func FeedURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || LooksLikeEmail(s) {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// Platform classifies a normalized URL. ok is false for hosts outside the six
// tracked social platforms.
func Platform(u string) (media.Platform, bool) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	switch {
	case host == "twitter.com" || host == "x.com" || strings.HasSuffix(host, ".twitter.com"):
		return media.PlatformTwitter, true
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return media.PlatformInstagram, true
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		return media.PlatformTikTok, true
	case host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com"):
		return media.PlatformLinkedIn, true
	case host == "facebook.com" || host == "fb.com" || strings.HasSuffix(host, ".facebook.com"):
		return media.PlatformFacebook, true
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return media.PlatformYouTube, true
	}
	return "", false
}

// IsLinkedInCompany distinguishes a company page from a personal /in/ profile.
func IsLinkedInCompany(u string) bool {
	return strings.Contains(strings.ToLower(u), "linkedin.com/company/")
}
