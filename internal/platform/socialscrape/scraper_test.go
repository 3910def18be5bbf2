package socialscrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func TestParseFollowers(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"12.3K Followers, 100 Following", 12300, true},
		{"1,234 followers", 1234, true},
		{"2M subscribers", 2000000, true},
		{"500+ connections", 500, true},
		{"no numbers here", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseFollowers(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseFollowers(%q)=%d,%v want %d,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtractReadsMetaTags(t *testing.T) {
	html := `<html><head>
<meta property="og:title" content="Tech Talk (@techtalk)">
<meta property="og:description" content="45.1K Followers, 12 Following, 300 Posts - hosted by Jane Doe">
</head><body></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st := Extract(doc)
	if st.Name != "Tech Talk (@techtalk)" {
		t.Fatalf("name=%q", st.Name)
	}
	if st.Followers == nil || *st.Followers != 45100 {
		t.Fatalf("followers=%v", st.Followers)
	}
}

func TestScrapePlatformIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`<html><head><meta name="description" content="2,000 followers"></head></html>`))
	}))
	defer srv.Close()

	s := New(logger.Nop(), Config{})
	ok := srv.URL + "/techtalk"
	bad := srv.URL + "/missing"
	out, err := s.ScrapePlatform(context.Background(), types.PlatformInstagram, []string{ok, bad})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(out) != 1 || out[ok].Followers == nil || *out[ok].Followers != 2000 {
		t.Fatalf("unexpected result: %+v", out)
	}

	if _, err := s.ScrapePlatform(context.Background(), types.PlatformInstagram, []string{bad}); err == nil {
		t.Fatalf("expected error when every url fails")
	}
	empty, err := s.ScrapePlatform(context.Background(), types.PlatformTikTok, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty platform: %v %v", empty, err)
	}
}
