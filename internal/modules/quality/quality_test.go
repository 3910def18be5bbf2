package quality

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type fakeMedia struct {
	mu      sync.Mutex
	row     *types.Media
	updates []map[string]interface{}
}

func (f *fakeMedia) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Media, error) {
	if f.row == nil || f.row.ID != id {
		return nil, nil
	}
	return f.row, nil
}

func (f *fakeMedia) UpdateFields(_ dbctx.Context, _ uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeMedia) merged() map[string]interface{} {
	out := map[string]interface{}{}
	for _, u := range f.updates {
		for k, v := range u {
			out[k] = v
		}
	}
	return out
}

type fakeEpisodes struct {
	mu       sync.Mutex
	episodes []*types.Episode
	saved    map[uuid.UUID]string
}

func (f *fakeEpisodes) CountTranscribed(dbctx.Context, uuid.UUID) (int64, error) {
	var n int64
	for _, e := range f.episodes {
		if e.Downloaded && e.HasTranscript() {
			n++
		}
	}
	return n, nil
}

func (f *fakeEpisodes) ListTranscribed(dbctx.Context, uuid.UUID, int) ([]*types.Episode, error) {
	var out []*types.Episode
	for _, e := range f.episodes {
		if e.Downloaded && e.HasTranscript() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEpisodes) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[uuid.UUID]string{}
	}
	f.saved[id], _ = updates["ai_episode_summary"].(string)
	return nil
}

type fakeAI struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (f *fakeAI) GenerateText(_ context.Context, _ string, user string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail != "" && strings.Contains(user, f.fail) {
		return "", errors.New("llm unavailable")
	}
	return "Summary of " + strings.SplitN(strings.SplitN(user, "EPISODE: ", 2)[1], "\n", 2)[0], nil
}

func transcribedEpisodes(n int, now time.Time) []*types.Episode {
	out := make([]*types.Episode, n)
	for i := range out {
		pub := now.Add(-time.Duration(i+1) * 24 * time.Hour)
		out[i] = &types.Episode{
			ID:          uuid.New(),
			Title:       "Episode " + string(rune('A'+i)),
			PublishDate: &pub,
			Transcript:  pointers.String("we talked about things"),
			Downloaded:  true,
		}
	}
	return out
}

func newScorer(m *fakeMedia, eps *fakeEpisodes, ai Summarizer, now time.Time) *Scorer {
	return NewScorer(Deps{Log: logger.Nop(), Media: m, Episodes: eps, AI: ai, Now: func() time.Time { return now }}, Config{})
}

func TestMaybeUpdateGatedOnTranscribedCount(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		transcribed int
		wantScore   bool
	}{
		{0, false},
		{2, false},
		{3, true},
		{5, true},
	}
	for _, tc := range cases {
		id := uuid.New()
		media := &fakeMedia{row: &types.Media{ID: id, ListenScore: pointers.Float64(55)}}
		eps := &fakeEpisodes{episodes: transcribedEpisodes(tc.transcribed, now)}
		b, err := newScorer(media, eps, nil, now).MaybeUpdate(context.Background(), id)
		if err != nil {
			t.Fatalf("MaybeUpdate(%d): %v", tc.transcribed, err)
		}
		got, scored := media.merged()["quality_score"]
		if scored != tc.wantScore || (b != nil) != tc.wantScore {
			t.Fatalf("transcribed=%d scored=%v breakdown=%v", tc.transcribed, scored, b)
		}
		if scored {
			f := got.(float64)
			if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
				t.Fatalf("score not finite: %v", f)
			}
		}
	}
}

func TestBlankTranscriptsDoNotCount(t *testing.T) {
	now := time.Now()
	id := uuid.New()
	eps := transcribedEpisodes(3, now)
	eps[2].Transcript = pointers.String("   ")
	media := &fakeMedia{row: &types.Media{ID: id}}
	b, err := newScorer(media, &fakeEpisodes{episodes: eps}, nil, now).MaybeUpdate(context.Background(), id)
	if err != nil || b != nil || len(media.updates) != 0 {
		t.Fatalf("b=%v err=%v updates=%v", b, err, media.updates)
	}
}

func TestMaybeUpdateRepairsEmailURLs(t *testing.T) {
	now := time.Now()
	id := uuid.New()
	media := &fakeMedia{row: &types.Media{
		ID:           id,
		TwitterURL:   pointers.String("host@example.com"),
		InstagramURL: pointers.String("https://instagram.com/show"),
	}}
	if _, err := newScorer(media, &fakeEpisodes{episodes: transcribedEpisodes(3, now)}, nil, now).MaybeUpdate(context.Background(), id); err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	up := media.merged()
	if v, ok := up["podcast_twitter_url"]; !ok || v != nil {
		t.Fatalf("twitter url not cleared: %v", up)
	}
	if up["contact_email"] != "host@example.com" {
		t.Fatalf("email not salvaged: %v", up["contact_email"])
	}
	if _, ok := up["podcast_instagram_url"]; ok {
		t.Fatalf("valid url should be untouched")
	}
}

func TestMaybeUpdateCompilesSummaries(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	eps := transcribedEpisodes(4, now)
	eps[1].AIEpisodeSummary = pointers.String("Already summarized.")
	ai := &fakeAI{fail: "Episode C"}
	media := &fakeMedia{row: &types.Media{ID: id, Name: "Tech Talk"}}
	store := &fakeEpisodes{episodes: eps}

	if _, err := newScorer(media, store, ai, now).MaybeUpdate(context.Background(), id); err != nil {
		t.Fatalf("MaybeUpdate: %v", err)
	}
	if ai.calls != 3 {
		t.Fatalf("llm calls=%d want 3", ai.calls)
	}
	if store.saved[eps[0].ID] != "Summary of Episode A" || store.saved[eps[3].ID] != "Summary of Episode D" {
		t.Fatalf("saved=%v", store.saved)
	}
	compiled, _ := media.merged()["episode_summaries_compiled"].(string)
	a := strings.Index(compiled, "Summary of Episode A")
	b := strings.Index(compiled, "Already summarized.")
	d := strings.Index(compiled, "Summary of Episode D")
	if a < 0 || b < 0 || d < 0 || !(a < b && b < d) {
		t.Fatalf("compiled out of order:\n%s", compiled)
	}
	if strings.Contains(compiled, "Episode C\n") {
		t.Fatalf("failed episode should be omitted:\n%s", compiled)
	}
}

func TestScoreRenormalizesMissingComponents(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * 24 * time.Hour)

	bare := Score(&types.Media{}, nil, now)
	if bare.Total != 0 || bare.Audience != nil || bare.Ratings != nil || bare.Social != nil {
		t.Fatalf("bare=%+v", bare)
	}

	active := Score(&types.Media{LatestEpisodeDate: &recent, TotalEpisodes: pointers.Int(200)}, nil, now)
	if active.Total != 100 {
		t.Fatalf("activity-only podcast should score 100, got %+v", active)
	}

	full := Score(&types.Media{
		LatestEpisodeDate:  &recent,
		TotalEpisodes:      pointers.Int(200),
		ListenScore:        pointers.Float64(50),
		ITunesRating:       pointers.Float64(5),
		ITunesRatingCount:  pointers.Int(999),
		TwitterFollowers:   pointers.Int64(999000),
		YouTubeSubscribers: pointers.Int64(1000),
	}, nil, now)
	// 50*0.30 + 100*0.25 + 100*0.25 + 100*0.20
	if full.Total != 85 {
		t.Fatalf("full=%+v", full)
	}
}

func TestScoreFallsBackToEpisodeDates(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	withDate := Score(&types.Media{}, &recent, now)
	if withDate.Activity != 60 {
		t.Fatalf("activity=%v", withDate.Activity)
	}
}
