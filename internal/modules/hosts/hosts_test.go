package hosts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/domain/sources"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func TestNameSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Jane Doe", "jane doe", 1, 1},
		{"Dr. Jane Doe", "Jane Doe", 1, 1},
		{"José Álvarez", "Jose Alvarez", 1, 1},
		{"Jane", "Jane Doe", 0.9, 0.9},
		{"Chris", "Christopher Lee", 0.9, 0.9},
		{"Dr. Sam", "Samantha Jones", 0.9, 0.9},
		{"John Smith", "John Q. Smith", 0.85, 1},
		{"John Smith", "John Q Smith", 0.85, 1},
		{"Jon Smith", "John Smith", 0.85, 1},
		{"Jane Doe", "Mark Twain", 0, 0.5},
		{"", "Jane", 0, 0},
	}
	for _, tc := range cases {
		got := NameSimilarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Fatalf("NameSimilarity(%q,%q)=%v want [%v,%v]", tc.a, tc.b, got, tc.min, tc.max)
		}
		if rev := NameSimilarity(tc.b, tc.a); rev != got {
			t.Fatalf("similarity not symmetric for %q/%q: %v vs %v", tc.a, tc.b, got, rev)
		}
	}
}

func TestMiddleInitialVariantsConsolidate(t *testing.T) {
	pairs := [][2]string{
		{"John Smith", "John Q. Smith"},
		{"Ann Lee", "Ann B Lee"},
		{"Maria Garcia", "Maria J. Garcia"},
	}
	for _, p := range pairs {
		if s := NameSimilarity(p[0], p[1]); s < 0.85 {
			t.Fatalf("%q vs %q similarity=%v", p[0], p[1], s)
		}
		groups := Consolidate([]types.HostAttribution{
			{Name: p[0], Sources: []types.SourceKind{sources.RSSOwner}},
			{Name: p[1], Sources: []types.SourceKind{sources.WebSearch, sources.AIAnalysis}},
		}, 0.85)
		if len(groups) != 1 {
			t.Fatalf("%v did not consolidate: %+v", p, groups)
		}
		if groups[0].Name != p[1] {
			t.Fatalf("representative should be the name with most sources, got %q", groups[0].Name)
		}
		if len(groups[0].Sources) != 3 {
			t.Fatalf("sources not merged: %v", groups[0].Sources)
		}
	}
}

func TestShortFormConsolidatesIntoFullName(t *testing.T) {
	groups := Consolidate([]types.HostAttribution{
		{Name: "Christopher Lee", Sources: []types.SourceKind{sources.RSSOwner, sources.WebSearch}},
		{Name: "Chris", Sources: []types.SourceKind{sources.AIAnalysis}},
	}, 0.85)
	if len(groups) != 1 || groups[0].Name != "Christopher Lee" {
		t.Fatalf("groups=%+v", groups)
	}
	if len(groups[0].Sources) != 3 {
		t.Fatalf("sources not merged: %v", groups[0].Sources)
	}
}

func TestConsolidateKeepsDistinctPeople(t *testing.T) {
	groups := Consolidate([]types.HostAttribution{
		{Name: "Jane Doe", Sources: []types.SourceKind{sources.RSSOwner}},
		{Name: "Mark Twain", Sources: []types.SourceKind{sources.WebSearch}},
		{Name: "  ", Sources: []types.SourceKind{sources.WebSearch}},
	}, 0.85)
	if len(groups) != 2 {
		t.Fatalf("groups=%+v", groups)
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		kinds []types.SourceKind
		want  float64
	}{
		{nil, 0},
		{[]types.SourceKind{sources.RSSOwner}, 0.95},
		{[]types.SourceKind{sources.WebSearch}, 0.65},
		{[]types.SourceKind{sources.WebSearch, sources.WebSearch}, 0.65},
		{[]types.SourceKind{sources.PodcastDescription, sources.SocialMediaBio}, 0.8},
		{[]types.SourceKind{sources.ManualEntry, sources.RSSOwner}, 1},
		{[]types.SourceKind{sources.SocialMediaBio, sources.UnlabeledExtraction, sources.WebSearch, sources.PodcastDescription, sources.AIAnalysis}, 1},
	}
	for _, tc := range cases {
		if got := Confidence(tc.kinds); got != tc.want {
			t.Fatalf("Confidence(%v)=%v want %v", tc.kinds, got, tc.want)
		}
	}
}

func TestConfidenceMonotonicAndBounded(t *testing.T) {
	all := []types.SourceKind{
		sources.SocialMediaBio, sources.UnlabeledExtraction, sources.WebSearch, sources.PodcastDescription,
		sources.AIAnalysis, sources.EpisodeTranscript, sources.RSSOwner, sources.ManualEntry,
	}
	// every subset S1 and every superset S2 = S1 + one more kind
	for mask := 0; mask < 1<<len(all); mask++ {
		var s1 []types.SourceKind
		for i, k := range all {
			if mask&(1<<i) != 0 {
				s1 = append(s1, k)
			}
		}
		c1 := Confidence(s1)
		if c1 > 1 {
			t.Fatalf("confidence %v > 1 for %v", c1, s1)
		}
		for i, k := range all {
			if mask&(1<<i) != 0 {
				continue
			}
			s2 := append(append([]types.SourceKind(nil), s1...), k)
			if c2 := Confidence(s2); c2 < c1 {
				t.Fatalf("adding %s lowered confidence %v -> %v", k, c1, c2)
			}
		}
	}
}

func TestNeedsVerification(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * 24 * time.Hour)
	old := now.Add(-31 * 24 * time.Hour)
	cases := []struct {
		name  string
		hosts []string
		last  *time.Time
		want  bool
	}{
		{"no_hosts_never_verified", nil, nil, false},
		{"never_verified", []string{"Jane"}, nil, true},
		{"recent", []string{"Jane"}, &recent, false},
		{"stale", []string{"Jane"}, &old, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &types.Media{HostNames: datatypes.JSONSlice[string](tc.hosts), HostNamesLastVerified: tc.last}
			if got := NeedsVerification(m, now, 30*24*time.Hour); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestIntroducedNames(t *testing.T) {
	got := IntroducedNames("Welcome back everyone, I'm Jane Doe and today I'm joined by a guest. My name is Sam. I'm Excited to be here.")
	if len(got) != 2 || got[0] != "Jane Doe" || got[1] != "Sam" {
		t.Fatalf("got %v", got)
	}
	if IntroducedNames("") != nil {
		t.Fatalf("empty text should yield nil")
	}
}

type fakeMedia struct {
	rows    map[uuid.UUID]*types.Media
	updates map[uuid.UUID]map[string]interface{}
}

func (f *fakeMedia) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Media, error) {
	return f.rows[id], nil
}

func (f *fakeMedia) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if f.updates == nil {
		f.updates = map[uuid.UUID]map[string]interface{}{}
	}
	f.updates[id] = updates
	return nil
}

type fakeEpisodes struct{ eps []*types.Episode }

func (f fakeEpisodes) ListByMedia(dbctx.Context, uuid.UUID, int) ([]*types.Episode, error) {
	return f.eps, nil
}

func TestVerifyPersistsConfidence(t *testing.T) {
	id := uuid.New()
	m := &types.Media{
		ID:           id,
		Name:         "Tech Talk",
		RSSOwnerName: pointers.String("Jane Doe"),
		Description:  pointers.String("Tech Talk is hosted by Jane Doe, a former engineer."),
		HostNames:    datatypes.JSONSlice[string]{"Jane Doe", "Bob Stone"},
		HostNamesDiscoverySources: datatypes.NewJSONType(map[string][]string{
			"Jane Doe":  {"web_search"},
			"Bob Stone": {"social_media_bio"},
		}),
	}
	eps := []*types.Episode{
		{Transcript: pointers.String("Hi, I'm Jane Doe and this is Tech Talk.")},
		{Transcript: pointers.String("Hey folks, I'm Jane Doe. Today: compilers.")},
	}
	media := &fakeMedia{rows: map[uuid.UUID]*types.Media{id: m}}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	v := NewVerifier(Deps{Log: logger.Nop(), Media: media, Episodes: fakeEpisodes{eps: eps}, Now: func() time.Time { return now }}, Config{})

	res, err := v.Verify(context.Background(), id)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(res.Verified) != 1 || res.Verified[0].Name != "Jane Doe" || res.Verified[0].Confidence != 1 {
		t.Fatalf("verified=%+v", res.Verified)
	}
	if len(res.LowConfidence) != 1 || res.LowConfidence[0].Name != "Bob Stone" {
		t.Fatalf("low=%+v", res.LowConfidence)
	}
	up := media.updates[id]
	if up == nil {
		t.Fatalf("nothing persisted")
	}
	if up["host_names_needs_review"] != true {
		t.Fatalf("needs_review=%v", up["host_names_needs_review"])
	}
	if up["host_names_confidence"] != 1.0 {
		t.Fatalf("overall=%v", up["host_names_confidence"])
	}
	names := up["host_names"].(datatypes.JSONSlice[string])
	if len(names) != 2 || names[0] != "Jane Doe" {
		t.Fatalf("names=%v", names)
	}
	if up["host_names_last_verified"] != now {
		t.Fatalf("last_verified=%v", up["host_names_last_verified"])
	}
}

func TestVerifySkipsMediaWithoutHosts(t *testing.T) {
	id := uuid.New()
	media := &fakeMedia{rows: map[uuid.UUID]*types.Media{id: {ID: id}}}
	v := NewVerifier(Deps{Log: logger.Nop(), Media: media, Episodes: fakeEpisodes{}}, Config{})
	res, err := v.Verify(context.Background(), id)
	if err != nil || res != nil {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if len(media.updates) != 0 {
		t.Fatalf("should not persist")
	}
	if res, err := v.Verify(context.Background(), uuid.New()); err != nil || res != nil {
		t.Fatalf("unknown media: res=%v err=%v", res, err)
	}
}
