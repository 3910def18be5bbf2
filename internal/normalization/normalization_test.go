package normalization

import (
	"testing"

	"github.com/yungbote/podreach-backend/internal/domain/media"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
)

func TestURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "adds_scheme_and_strips_www", in: "www.Instagram.com/TechTalk/", want: "https://instagram.com/techtalk"},
		{name: "upgrades_http", in: "http://twitter.com/techtalk?ref=abc#top", want: "https://twitter.com/techtalk"},
		{name: "linkedin_keeps_www", in: "https://www.linkedin.com/company/tech-talk/", want: "https://www.linkedin.com/company/tech-talk"},
		{name: "email_is_not_url", in: "host@techtalk.fm", want: ""},
		{name: "mailto_is_not_url", in: "mailto:host@techtalk.fm", want: ""},
		{name: "blank", in: "   ", want: ""},
		{name: "no_dot_host", in: "localhost/feed", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := URL(tc.in); got != tc.want {
				t.Fatalf("URL(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestURLIdempotent(t *testing.T) {
	in := "HTTP://www.YouTube.com/@TechTalk/?si=1"
	once := URL(in)
	if twice := URL(once); twice != once {
		t.Fatalf("not idempotent: %q then %q", once, twice)
	}
}

func TestFeedURLKeepsPathCase(t *testing.T) {
	got := FeedURL("http://Feeds.Example.com/TechTalk/Feed.xml#x")
	if got != "https://feeds.example.com/TechTalk/Feed.xml" {
		t.Fatalf("got %q", got)
	}
}

func TestPlatform(t *testing.T) {
	cases := map[string]media.Platform{
		"https://x.com/techtalk":                   media.PlatformTwitter,
		"https://www.linkedin.com/company/techtalk": media.PlatformLinkedIn,
		"https://youtu.be/abc":                     media.PlatformYouTube,
		"https://m.facebook.com/techtalk":          media.PlatformFacebook,
	}
	for in, want := range cases {
		got, ok := Platform(in)
		if !ok || got != want {
			t.Fatalf("Platform(%q)=%q,%v want %q", in, got, ok, want)
		}
	}
	if _, ok := Platform("https://techtalk.fm"); ok {
		t.Fatalf("plain website should not classify as social")
	}
}

func TestRepairMediaSalvagesEmail(t *testing.T) {
	m := &media.Media{
		Website:    pointers.String("booking@techtalk.fm"),
		TwitterURL: pointers.String("https://twitter.com/techtalk"),
		TikTokURL:  pointers.String("mailto:other@techtalk.fm"),
	}
	rep := RepairMedia(m)
	if m.Website != nil || m.TikTokURL != nil {
		t.Fatalf("email-bearing URL fields should be cleared")
	}
	if m.TwitterURL == nil {
		t.Fatalf("real URL should be untouched")
	}
	if m.ContactEmail == nil || *m.ContactEmail != "booking@techtalk.fm" {
		t.Fatalf("contact email not salvaged: %v", m.ContactEmail)
	}
	if !rep.FilledContact || len(rep.ClearedFields) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRepairMediaKeepsExistingContact(t *testing.T) {
	m := &media.Media{
		ContactEmail: pointers.String("owner@techtalk.fm"),
		Website:      pointers.String("booking@techtalk.fm"),
	}
	RepairMedia(m)
	if *m.ContactEmail != "owner@techtalk.fm" {
		t.Fatalf("existing contact email overwritten: %s", *m.ContactEmail)
	}
}

func TestRepairProfile(t *testing.T) {
	p := &media.EnrichedProfile{}
	p.SetSocialURL(media.PlatformInstagram, "hi@techtalk.fm")
	p.SetSocialURL(media.PlatformYouTube, "https://youtube.com/@techtalk")
	rep := RepairProfile(p)
	if p.SocialURL(media.PlatformInstagram) != "" {
		t.Fatalf("instagram email should be cleared")
	}
	if p.SocialURL(media.PlatformYouTube) == "" {
		t.Fatalf("youtube URL should survive")
	}
	if p.ContactEmail == nil || *p.ContactEmail != "hi@techtalk.fm" || !rep.Changed() {
		t.Fatalf("salvage failed: %+v", rep)
	}
}

func TestFoldName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Dr. José  Álvarez", "jose alvarez"},
		{"MS. Jane O'Neil", "jane o'neil"},
		{"Prof", "prof"},
		{"Mary-Kate Smith, PhD", "mary-kate smith phd"},
	}
	for _, tc := range cases {
		if got := FoldName(tc.in); got != tc.want {
			t.Fatalf("FoldName(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("  jane   doe "); got != "Jane Doe" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayName("DeShawn McArthur"); got != "DeShawn McArthur" {
		t.Fatalf("mixed case should be preserved, got %q", got)
	}
}
