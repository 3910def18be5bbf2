package merge

import (
	"testing"

	"github.com/yungbote/podreach-backend/internal/domain/media"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"gorm.io/datatypes"
)

func TestIntoNeverOverwritesWithNull(t *testing.T) {
	existing := &media.Media{
		Title:            "Tech Talk",
		TwitterURL:       pointers.String("https://twitter.com/techtalk"),
		ITunesRating:     pointers.Float64(4.7),
		TwitterFollowers: pointers.Int64(1200),
	}
	candidate := &media.Media{
		Title:        "",
		InstagramURL: pointers.String("https://instagram.com/techtalk"),
	}
	updates := Into(existing, candidate)
	if existing.TwitterURL == nil || existing.ITunesRating == nil || existing.TwitterFollowers == nil {
		t.Fatalf("known values were nulled: %+v", existing)
	}
	if existing.Title != "Tech Talk" {
		t.Fatalf("title overwritten with blank")
	}
	if len(updates) != 1 || updates["podcast_instagram_url"] != "https://instagram.com/techtalk" {
		t.Fatalf("unexpected updates: %v", updates)
	}
}

func TestIntoIdenticalPayloadIsNoop(t *testing.T) {
	existing := &media.Media{
		Title:       "Tech Talk",
		Description: pointers.String("Weekly tech."),
		SourceAPI:   pointers.String(media.SourceAPIListenNotes),
		HostNames:   datatypes.JSONSlice[string]{"Jane Doe"},
	}
	candidate := &media.Media{
		Title:       "Tech Talk",
		Description: pointers.String("Weekly tech."),
		SourceAPI:   pointers.String(media.SourceAPIListenNotes),
		HostNames:   datatypes.JSONSlice[string]{"jane doe"},
	}
	if updates := Into(existing, candidate); len(updates) != 0 {
		t.Fatalf("identical payload produced updates: %v", updates)
	}
}

func TestIntoDescriptionPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{name: "podscan_beats_listennotes", existing: media.SourceAPIListenNotes, incoming: media.SourceAPIPodscan, want: "new"},
		{name: "listennotes_does_not_beat_podscan", existing: media.SourceAPIPodscan, incoming: media.SourceAPIListenNotes, want: "old"},
		{name: "rss_does_not_beat_listennotes", existing: media.SourceAPIListenNotes, incoming: media.SourceAPIRSS, want: "old"},
		{name: "same_source_prefers_new", existing: media.SourceAPIRSS, incoming: media.SourceAPIRSS, want: "new"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing := &media.Media{Description: pointers.String("old"), SourceAPI: pointers.String(tc.existing)}
			candidate := &media.Media{Description: pointers.String("new"), SourceAPI: pointers.String(tc.incoming)}
			Into(existing, candidate)
			if *existing.Description != tc.want {
				t.Fatalf("description=%q, want %q", *existing.Description, tc.want)
			}
		})
	}
}

func TestIntoContactPrecedence(t *testing.T) {
	existing := &media.Media{
		ContactEmail:  pointers.String("owner@techtalk.fm"),
		RSSOwnerEmail: pointers.String("owner@techtalk.fm"),
		SourceAPI:     pointers.String(media.SourceAPIRSS),
	}
	candidate := &media.Media{
		ContactEmail: pointers.String("booking@techtalk.fm"),
		SourceAPI:    pointers.String(media.SourceAPIPodscan),
	}
	Into(existing, candidate)
	if *existing.ContactEmail != "owner@techtalk.fm" {
		t.Fatalf("rss owner email should outrank api email, got %s", *existing.ContactEmail)
	}
}

func TestIntoFillIfMissing(t *testing.T) {
	existing := &media.Media{Name: "Tech Talk", Website: pointers.String("https://techtalk.fm")}
	candidate := &media.Media{Name: "Tech Talk Podcast", Website: pointers.String("https://other.fm"), HostTwitterURL: pointers.String("https://twitter.com/jane")}
	updates := Into(existing, candidate)
	if existing.Name != "Tech Talk" || *existing.Website != "https://techtalk.fm" {
		t.Fatalf("fill-if-missing fields overwritten: %+v", existing)
	}
	if _, ok := updates["host_twitter_url"]; !ok {
		t.Fatalf("missing host_twitter_url should be filled")
	}
}

func TestIntoUnionsHosts(t *testing.T) {
	existing := &media.Media{
		HostNames:                 datatypes.JSONSlice[string]{"Jane Doe"},
		HostNamesDiscoverySources: datatypes.NewJSONType(map[string][]string{"Jane Doe": {"rss_owner"}}),
	}
	candidate := &media.Media{
		HostNames:                 datatypes.JSONSlice[string]{"jane doe", "John Roe"},
		HostNamesDiscoverySources: datatypes.NewJSONType(map[string][]string{"jane doe": {"web_search"}, "John Roe": {"web_search"}}),
	}
	updates := Into(existing, candidate)
	if len(existing.HostNames) != 2 || existing.HostNames[0] != "Jane Doe" || existing.HostNames[1] != "John Roe" {
		t.Fatalf("unexpected hosts: %v", existing.HostNames)
	}
	srcs := existing.HostSourceMap()
	if len(srcs["Jane Doe"]) != 2 {
		t.Fatalf("sources not unioned: %v", srcs)
	}
	if _, ok := updates["host_names"]; !ok {
		t.Fatalf("host_names should be in updates")
	}
}
