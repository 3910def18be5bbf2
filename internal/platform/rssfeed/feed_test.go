package rssfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>Tech Talk</title>
  <link>https://techtalk.fm</link>
  <language>en-us</language>
  <description>Weekly conversations about software.</description>
  <itunes:author>Jane Doe</itunes:author>
  <itunes:owner>
    <itunes:name>Jane Doe</itunes:name>
    <itunes:email>jane@techtalk.fm</itunes:email>
  </itunes:owner>
  <itunes:category text="Technology"/>
  <item>
    <title>Episode 1</title>
    <guid>ep-1</guid>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://cdn.techtalk.fm/ep1.mp3" length="100" type="audio/mpeg"/>
    <itunes:duration>45:30</itunes:duration>
  </item>
  <item>
    <title>Episode 2</title>
    <guid>ep-2</guid>
    <pubDate>Mon, 08 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://cdn.techtalk.fm/ep2.mp3" length="100" type="audio/mpeg"/>
    <itunes:duration>1:02:03</itunes:duration>
  </item>
</channel>
</rss>`

func TestParseExtractsOwnerAndEpisodes(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.OwnerName != "Jane Doe" || f.OwnerEmail != "jane@techtalk.fm" {
		t.Fatalf("owner=%q/%q", f.OwnerName, f.OwnerEmail)
	}
	if f.Language != "en-us" || f.Author != "Jane Doe" {
		t.Fatalf("language=%q author=%q", f.Language, f.Author)
	}
	if len(f.Episodes) != 2 || f.Episodes[0].GUID != "ep-2" {
		t.Fatalf("episodes not newest-first: %+v", f.Episodes)
	}
	if f.Episodes[0].Duration != time.Hour+2*time.Minute+3*time.Second {
		t.Fatalf("duration=%v", f.Episodes[0].Duration)
	}
	if f.Episodes[1].AudioURL != "https://cdn.techtalk.fm/ep1.mp3" {
		t.Fatalf("audio=%q", f.Episodes[1].AudioURL)
	}
	latest := f.LatestEpisodeDate()
	if latest == nil || latest.Day() != 8 {
		t.Fatalf("latest=%v", latest)
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":        0,
		"90":      90 * time.Second,
		"45:30":   45*time.Minute + 30*time.Second,
		"1:00:00": time.Hour,
		"abc":     0,
		"1:2:3:4": 0,
	}
	for in, want := range cases {
		if got := ParseDuration(in); got != want {
			t.Fatalf("ParseDuration(%q)=%v want %v", in, got, want)
		}
	}
}

func TestFetchUsesHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	f, err := NewReader(logger.Nop(), 5*time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if f.Title != "Tech Talk" {
		t.Fatalf("title=%q", f.Title)
	}
}
