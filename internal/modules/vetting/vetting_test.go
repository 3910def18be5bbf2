package vetting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/podreach-backend/internal/data/repos/discovery"
	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/eventbus"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type fakeDiscoveries struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*types.Discovery
	results map[uuid.UUID]discovery.VettingResult
}

func (f *fakeDiscoveries) AcquireVettingBatch(_ dbctx.Context, limit int) ([]*types.Discovery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Discovery
	for _, d := range f.rows {
		if len(out) >= limit {
			break
		}
		if d.VettingStatus == types.StatusPending && d.EnrichmentStatus == types.StatusCompleted {
			tok := uuid.New()
			now := time.Now()
			d.VettingStatus, d.VettingLockToken, d.VettingLockedAt = types.StatusInProgress, &tok, &now
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDiscoveries) CleanupStaleVettingLocks(_ dbctx.Context, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, d := range f.rows {
		if d.VettingStatus == types.StatusInProgress {
			d.VettingStatus, d.VettingLockToken, d.VettingLockedAt = types.StatusPending, nil, nil
			n++
		}
	}
	return n, nil
}

func (f *fakeDiscoveries) holds(id, tok uuid.UUID) *types.Discovery {
	d := f.rows[id]
	if d == nil || d.VettingStatus != types.StatusInProgress || d.VettingLockToken == nil || *d.VettingLockToken != tok {
		return nil
	}
	return d
}

func (f *fakeDiscoveries) CompleteVetting(_ dbctx.Context, id, tok uuid.UUID, r discovery.VettingResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.holds(id, tok)
	if d == nil {
		return apperr.ErrLockLost
	}
	d.VettingStatus, d.VettingLockToken = types.StatusCompleted, nil
	d.VettingScore = &r.Score
	d.MatchSuggestionID = r.MatchSuggestionID
	f.results[id] = r
	return nil
}

func (f *fakeDiscoveries) FailVetting(_ dbctx.Context, id, tok uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.holds(id, tok)
	if d == nil {
		return apperr.ErrLockLost
	}
	d.VettingStatus, d.VettingLockToken = types.StatusFailed, nil
	d.VettingError = &reason
	return nil
}

func (f *fakeDiscoveries) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].VettingStatus
}

type fakeMedia map[uuid.UUID]*types.Media

func (f fakeMedia) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Media, error) { return f[id], nil }

type fakeCampaigns map[uuid.UUID]*types.Campaign

func (f fakeCampaigns) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Campaign, error) {
	return f[id], nil
}

type fakeMatches struct {
	mu     sync.Mutex
	inputs []discovery.MatchSuggestionInput
}

func (f *fakeMatches) Upsert(_ dbctx.Context, in discovery.MatchSuggestionInput) (*types.MatchSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &types.MatchSuggestion{ID: uuid.New(), CampaignID: in.CampaignID, MediaID: in.MediaID}, nil
}

// fakeLLM answers by podcast title found in the prompt.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	answer  func(prompt string) (map[string]any, error)
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, user string, _ string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	if schema == nil {
		return nil, errors.New("schema required")
	}
	return f.answer(user)
}

func scored(score float64) map[string]any {
	return map[string]any{
		"vetting_score":     score,
		"vetting_reasoning": "Covers founder stories weekly.",
		"vetting_checklist": map[string]any{"topic_alignment": map[string]any{"met": true, "evidence": "startup topics"}},
	}
}

type fixture struct {
	v      *Vetter
	disc   *fakeDiscoveries
	media  fakeMedia
	camp   *types.Campaign
	match  *fakeMatches
	llm    *fakeLLM
	events *eventbus.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		disc:   &fakeDiscoveries{rows: map[uuid.UUID]*types.Discovery{}, results: map[uuid.UUID]discovery.VettingResult{}},
		media:  fakeMedia{},
		camp:   &types.Campaign{ID: uuid.New(), Name: "Founder tour", IdealPodcastDescription: pointers.String("Interview shows about startups")},
		match:  &fakeMatches{},
		llm:    &fakeLLM{answer: func(string) (map[string]any, error) { return scored(72), nil }},
		events: &eventbus.Recorder{},
	}
	f.v = NewVetter(Deps{
		Log:         logger.Nop(),
		Discoveries: f.disc,
		Media:       f.media,
		Campaigns:   fakeCampaigns{f.camp.ID: f.camp},
		Matches:     f.match,
		AI:          f.llm,
		Events:      f.events,
	}, DefaultConfig())
	return f
}

func (f *fixture) addDiscovery(title string) *types.Discovery {
	m := &types.Media{ID: uuid.New(), Title: title, AIDescription: pointers.String("A show about " + title)}
	f.media[m.ID] = m
	d := &types.Discovery{
		ID:               uuid.New(),
		CampaignID:       f.camp.ID,
		MediaID:          m.ID,
		Keyword:          "startups",
		EnrichmentStatus: types.StatusCompleted,
		VettingStatus:    types.StatusPending,
	}
	f.disc.rows[d.ID] = d
	return d
}

func (f *fixture) claimOne(t *testing.T) *types.Discovery {
	t.Helper()
	claims, err := f.disc.AcquireVettingBatch(dbctx.New(context.Background()), 1)
	if err != nil || len(claims) != 1 {
		t.Fatalf("claim: %v %d", err, len(claims))
	}
	return claims[0]
}

func TestVetCompletesAndCreatesMatch(t *testing.T) {
	f := newFixture(t)
	d := f.addDiscovery("Build Mode")
	out, err := f.v.Vet(context.Background(), f.claimOne(t))
	if err != nil {
		t.Fatalf("Vet: %v", err)
	}
	if out.Status != StatusCompleted || out.MatchSuggestionID == nil || *out.Score != 72 {
		t.Fatalf("outcome=%+v", out)
	}
	if f.disc.status(d.ID) != types.StatusCompleted {
		t.Fatalf("status=%s", f.disc.status(d.ID))
	}
	if len(f.match.inputs) != 1 || f.match.inputs[0].Keywords[0] != "startups" {
		t.Fatalf("match inputs=%+v", f.match.inputs)
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != eventbus.VettingCompleted {
		t.Fatalf("events=%v", got)
	}
}

func TestVetBelowThresholdHasNoMatch(t *testing.T) {
	f := newFixture(t)
	f.llm.answer = func(string) (map[string]any, error) { return scored(49.9), nil }
	d := f.addDiscovery("Gardening Hour")
	out, err := f.v.Vet(context.Background(), f.claimOne(t))
	if err != nil || out.Status != StatusCompleted || out.MatchSuggestionID != nil {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if len(f.match.inputs) != 0 || f.disc.results[d.ID].MatchSuggestionID != nil {
		t.Fatalf("unexpected match suggestion")
	}
}

func TestVetRepairsStringChecklist(t *testing.T) {
	f := newFixture(t)
	f.llm.answer = func(string) (map[string]any, error) {
		return map[string]any{
			"vetting_score":     "64",
			"vetting_reasoning": "ok",
			"vetting_checklist": `{"topic_alignment": {"met": true, "evidence": "x"}}`,
		}, nil
	}
	d := f.addDiscovery("Scale Up")
	if _, err := f.v.Vet(context.Background(), f.claimOne(t)); err != nil {
		t.Fatalf("Vet: %v", err)
	}
	cl := f.disc.results[d.ID].Checklist
	if _, ok := cl["topic_alignment"].(map[string]any); !ok {
		t.Fatalf("checklist not repaired: %#v", cl)
	}
}

func TestVetSurfacesUnverifiedHosts(t *testing.T) {
	f := newFixture(t)
	d := f.addDiscovery("Deep Dives")
	m := f.media[d.MediaID]
	m.HostNames = datatypes.JSONSlice[string]{"Jane Doe", "Bob Stone"}
	m.HostNamesDiscoveryConfidence = datatypes.NewJSONType(map[string]float64{"Jane Doe": 0.95, "Bob Stone": 0.55})

	if _, err := f.v.Vet(context.Background(), f.claimOne(t)); err != nil {
		t.Fatalf("Vet: %v", err)
	}
	prompt := f.llm.prompts[0]
	if !strings.Contains(prompt, "Jane Doe (verified") || !strings.Contains(prompt, "Bob Stone (UNVERIFIED") {
		t.Fatalf("prompt hosts:\n%s", prompt)
	}
	flag, ok := f.disc.results[d.ID].Checklist["host_attribution_unverified"].(map[string]any)
	if !ok {
		t.Fatalf("missing host_attribution_unverified: %#v", f.disc.results[d.ID].Checklist)
	}
	if hosts, _ := flag["hosts"].([]string); len(hosts) != 1 || hosts[0] != "Bob Stone" {
		t.Fatalf("flag=%#v", flag)
	}
}

func TestVetLLMFailureIsRecordedReadably(t *testing.T) {
	f := newFixture(t)
	f.llm.answer = func(string) (map[string]any, error) { return nil, errors.New("http 503: overloaded") }
	d := f.addDiscovery("Flaky")
	out, err := f.v.Vet(context.Background(), f.claimOne(t))
	if err != nil {
		t.Fatalf("Vet: %v", err)
	}
	if out.Status != StatusFailed || f.disc.status(d.ID) != types.StatusFailed {
		t.Fatalf("out=%+v", out)
	}
	msg := pointers.Deref(f.disc.rows[d.ID].VettingError)
	if !strings.HasPrefix(msg, "The AI vetting request failed") || strings.Contains(msg, "PROCESSING") {
		t.Fatalf("error=%q", msg)
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != eventbus.VettingFailed {
		t.Fatalf("events=%v", got)
	}
}

func TestVetFatalErrorLeavesClaimForSweep(t *testing.T) {
	f := newFixture(t)
	f.llm.answer = func(string) (map[string]any, error) {
		return nil, fmt.Errorf("openai: %w: http 401", apperr.ErrMissingCredentials)
	}
	d := f.addDiscovery("Locked")
	if _, err := f.v.Vet(context.Background(), f.claimOne(t)); !apperr.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if f.disc.status(d.ID) != types.StatusInProgress {
		t.Fatalf("status=%s", f.disc.status(d.ID))
	}
	if n, _ := f.v.SweepStaleLocks(context.Background()); n != 1 || f.disc.status(d.ID) != types.StatusPending {
		t.Fatalf("sweep n=%d status=%s", n, f.disc.status(d.ID))
	}
}

func TestVetLockLostWritesNothing(t *testing.T) {
	f := newFixture(t)
	d := f.addDiscovery("Slow")
	claim := f.claimOne(t)
	f.llm.answer = func(string) (map[string]any, error) {
		_, _ = f.disc.CleanupStaleVettingLocks(dbctx.New(context.Background()), time.Minute)
		return scored(80), nil
	}
	out, err := f.v.Vet(context.Background(), claim)
	if err != nil || out.Status != StatusLockLost {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if f.disc.status(d.ID) != types.StatusPending {
		t.Fatalf("status=%s", f.disc.status(d.ID))
	}
	if _, ok := f.disc.results[d.ID]; ok {
		t.Fatalf("result written without lock")
	}
	if len(f.events.Types()) != 0 {
		t.Fatalf("events=%v", f.events.Types())
	}
}

func TestVetRejectsUnclaimedRow(t *testing.T) {
	f := newFixture(t)
	d := f.addDiscovery("Unclaimed")
	if _, err := f.v.Vet(context.Background(), d); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("err=%v", err)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.addDiscovery("Good Show")
	f.addDiscovery("Panic Show")
	f.addDiscovery("Error Show")
	f.llm.answer = func(prompt string) (map[string]any, error) {
		switch {
		case strings.Contains(prompt, "Panic Show"):
			panic("bad response shape")
		case strings.Contains(prompt, "Error Show"):
			return nil, errors.New("connection reset")
		}
		return scored(90), nil
	}
	res, err := f.v.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Claimed != 3 || res.Completed != 1 || res.Failed != 2 || res.Matches != 1 {
		t.Fatalf("res=%+v", res)
	}
	for id, d := range f.disc.rows {
		if d.VettingStatus == types.StatusInProgress {
			t.Fatalf("row %s left in progress", id)
		}
	}
}

func TestRunBatchStopsOnFatal(t *testing.T) {
	f := newFixture(t)
	f.addDiscovery("One")
	f.llm.answer = func(string) (map[string]any, error) { return nil, apperr.ErrMissingCredentials }
	if _, err := f.v.RunBatch(context.Background(), 5); !apperr.IsFatal(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestCoerceVetting(t *testing.T) {
	cases := []struct {
		name    string
		in      map[string]any
		score   float64
		wantErr bool
	}{
		{name: "number", in: map[string]any{"vetting_score": 61.234}, score: 61.23},
		{name: "clamped_high", in: map[string]any{"vetting_score": 140.0}, score: 100},
		{name: "clamped_low", in: map[string]any{"vetting_score": -3.0}, score: 0},
		{name: "numeric_string", in: map[string]any{"vetting_score": " 55.5 "}, score: 55.5},
		{name: "missing", in: map[string]any{"vetting_reasoning": "x"}, wantErr: true},
		{name: "garbage", in: map[string]any{"vetting_score": "high"}, wantErr: true},
		{name: "nil", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := coerceVetting(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || out.Score != tc.score || out.Checklist == nil {
				t.Fatalf("out=%+v err=%v", out, err)
			}
		})
	}
}

func TestRepairChecklist(t *testing.T) {
	if got := repairChecklist("not json at all"); got["notes"] != "not json at all" {
		t.Fatalf("got %#v", got)
	}
	if got := repairChecklist(nil); got == nil || len(got) != 0 {
		t.Fatalf("got %#v", got)
	}
	if got := repairChecklist(`{"a": 1}`); got["a"] != float64(1) {
		t.Fatalf("got %#v", got)
	}
}

func TestVettingSchemaRequiresEveryCriterion(t *testing.T) {
	s := vettingSchema()
	cl := s["properties"].(map[string]any)["vetting_checklist"].(map[string]any)
	req := cl["required"].([]string)
	props := cl["properties"].(map[string]any)
	if len(req) != len(props) || cl["additionalProperties"] != false {
		t.Fatalf("checklist schema not strict: %#v", cl)
	}
}

func TestShortenKeepsWholeRunes(t *testing.T) {
	got := shorten("  résumé ünïcödé  ", 4)
	if got != "résu..." {
		t.Fatalf("shorten=%q", got)
	}
	if !utf8.ValidString(shorten(strings.Repeat("é", 400), 300)) {
		t.Fatalf("shorten split a rune")
	}
	if got := shorten(" short ", 10); got != "short" {
		t.Fatalf("shorten=%q", got)
	}
}
