package hosts

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/domain/sources"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Config struct {
	SimilarityThreshold float64
	ConfidenceThreshold float64
	ReverifyAfter       time.Duration
	// TranscriptHeadChars bounds how much of each transcript is scanned for introductions.
	TranscriptHeadChars int
	EpisodeLimit        int
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		ConfidenceThreshold: 0.7,
		ReverifyAfter:       30 * 24 * time.Hour,
		TranscriptHeadChars: 2000,
		EpisodeLimit:        10,
	}
}

// MediaStore is the slice of repos/media.MediaRepo the verifier needs.
type MediaStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type EpisodeStore interface {
	ListByMedia(dbc dbctx.Context, mediaID uuid.UUID, limit int) ([]*types.Episode, error)
}

type Deps struct {
	Log      *logger.Logger
	Media    MediaStore
	Episodes EpisodeStore
	Now      func() time.Time
}

type Host struct {
	Name       string             `json:"name"`
	Confidence float64            `json:"confidence"`
	Sources    []types.SourceKind `json:"sources"`
}

type Result struct {
	MediaID       uuid.UUID `json:"media_id"`
	Verified      []Host    `json:"verified_hosts"`
	LowConfidence []Host    `json:"low_confidence_hosts"`
	Overall       float64   `json:"overall_confidence"`
}

func (r *Result) NeedsReview() bool { return r != nil && len(r.LowConfidence) > 0 }

type Verifier struct {
	log *logger.Logger
	cfg Config
	d   Deps
}

func NewVerifier(deps Deps, cfg Config) *Verifier {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.ReverifyAfter <= 0 {
		cfg.ReverifyAfter = def.ReverifyAfter
	}
	if cfg.TranscriptHeadChars <= 0 {
		cfg.TranscriptHeadChars = def.TranscriptHeadChars
	}
	if cfg.EpisodeLimit <= 0 {
		cfg.EpisodeLimit = def.EpisodeLimit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Verifier{log: deps.Log.With("service", "HostVerifier"), cfg: cfg, d: deps}
}

// NeedsVerification is true for media with at least one host name that were never
// verified or were last verified more than after ago.
func NeedsVerification(m *types.Media, now time.Time, after time.Duration) bool {
	if m == nil || len(m.HostNames) == 0 {
		return false
	}
	if m.HostNamesLastVerified == nil {
		return true
	}
	return now.Sub(*m.HostNamesLastVerified) > after
}

func (v *Verifier) NeedsVerification(m *types.Media) bool {
	return NeedsVerification(m, v.d.Now(), v.cfg.ReverifyAfter)
}

// Verify cross-checks a media's host names against its feed, episodes and
// description and persists per-name confidence. Media without hosts, or unknown
// media, yield (nil, nil).
func (v *Verifier) Verify(ctx context.Context, mediaID uuid.UUID) (*Result, error) {
	ctx, span := otel.Tracer("podreach/hosts").Start(ctx, "hosts.verify")
	defer span.End()
	span.SetAttributes(attribute.String("media_id", mediaID.String()))

	dbc := dbctx.New(ctx)
	m, err := v.d.Media.GetByID(dbc, mediaID)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", apperr.Store(err))
	}
	if m == nil || len(m.HostNames) == 0 {
		return nil, nil
	}
	episodes, err := v.d.Episodes.ListByMedia(dbc, mediaID, v.cfg.EpisodeLimit)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", apperr.Store(err))
	}

	res := v.Evaluate(m, episodes)
	if err := v.persist(dbc, m, res); err != nil {
		return nil, apperr.Store(err)
	}
	v.log.Info("Host names verified",
		"media_id", mediaID,
		"verified", len(res.Verified),
		"low_confidence", len(res.LowConfidence),
		"overall", res.Overall,
	)
	return res, nil
}

// Evaluate scores the host candidates of m without touching the database.
func (v *Verifier) Evaluate(m *types.Media, episodes []*types.Episode) *Result {
	candidates := gatherCandidates(m, episodes, v.cfg.TranscriptHeadChars)
	groups := Consolidate(candidates, v.cfg.SimilarityThreshold)

	res := &Result{MediaID: m.ID}
	var all []Host
	for _, g := range groups {
		h := Host{Name: normalization.DisplayName(g.Name), Confidence: Confidence(g.Sources), Sources: g.Sources}
		all = append(all, h)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Confidence > all[j].Confidence })

	maxAll := 0.0
	sum := 0.0
	for _, h := range all {
		if h.Confidence > maxAll {
			maxAll = h.Confidence
		}
		if h.Confidence >= v.cfg.ConfidenceThreshold {
			res.Verified = append(res.Verified, h)
			sum += h.Confidence
		} else {
			res.LowConfidence = append(res.LowConfidence, h)
		}
	}
	if len(res.Verified) > 0 {
		res.Overall = roundTo(sum/float64(len(res.Verified)), 4)
	} else {
		res.Overall = maxAll
	}
	return res
}

func (v *Verifier) persist(dbc dbctx.Context, m *types.Media, res *Result) error {
	ordered := append(append([]Host(nil), res.Verified...), res.LowConfidence...)
	names := make([]string, 0, len(ordered))
	conf := map[string]float64{}
	srcs := map[string][]string{}
	for _, h := range ordered {
		names = append(names, h.Name)
		conf[h.Name] = h.Confidence
		srcs[h.Name] = sources.Strings(h.Sources)
	}
	overall := res.Overall
	return v.d.Media.UpdateFields(dbc, m.ID, map[string]interface{}{
		"host_names":                      datatypes.JSONSlice[string](names),
		"host_names_confidence":           overall,
		"host_names_discovery_confidence": datatypes.NewJSONType(conf),
		"host_names_discovery_sources":    datatypes.NewJSONType(srcs),
		"host_names_needs_review":         res.NeedsReview(),
		"host_names_last_verified":        v.d.Now().UTC(),
	})
}

// gatherCandidates collects every host attribution the row and its episodes support.
// Existing names keep their recorded sources and gain corroboration from mentions in
// transcripts, summaries and the description. Names introduced in transcripts are
// added only when they recur in at least two episodes, which filters out guests.
func gatherCandidates(m *types.Media, episodes []*types.Episode, headChars int) []types.HostAttribution {
	p := types.EnrichedProfile{}
	for _, h := range types.ProfileFromMedia(m).Hosts {
		for _, k := range h.Sources {
			p.AddHost(h.Name, k)
		}
	}
	if m.RSSOwnerName != nil {
		if owner := strings.TrimSpace(*m.RSSOwnerName); owner != "" && !normalization.LooksLikeOrganization(owner, m.Name, m.Title) {
			p.AddHost(owner, sources.RSSOwner)
		}
	}

	description := strings.Join(nonEmpty(m.Description, m.AIDescription), "\n")
	introduced := map[string]int{}
	introducedName := map[string]string{}
	for _, e := range episodes {
		head := ""
		if e.HasTranscript() {
			head = truncateRunes(*e.Transcript, headChars)
		}
		for _, h := range p.Hosts {
			if head != "" && mentions(head, h.Name) {
				p.AddHost(h.Name, sources.EpisodeTranscript)
			}
			if e.AIEpisodeSummary != nil && mentions(*e.AIEpisodeSummary, h.Name) {
				p.AddHost(h.Name, sources.AIAnalysis)
			}
		}
		seen := map[string]bool{}
		for _, name := range IntroducedNames(head) {
			key := normalization.FoldName(name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			introduced[key]++
			introducedName[key] = name
		}
	}
	for key, n := range introduced {
		if n >= 2 {
			p.AddHost(introducedName[key], sources.EpisodeTranscript)
		}
	}
	for _, h := range p.Hosts {
		if description != "" && mentions(description, h.Name) {
			p.AddHost(h.Name, sources.PodcastDescription)
		}
	}
	return p.Hosts
}

func mentions(text, name string) bool {
	fn := normalization.FoldName(name)
	if fn == "" {
		return false
	}
	return strings.Contains(" "+normalization.FoldName(text)+" ", " "+fn+" ")
}

var introRe = regexp.MustCompile(`(?:(?i:\bI['’]m|\bI am|\bmy name is|\byour host(?: is)?,?|\bhosted by))\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z](?:\.|\b))?(?:\s+[A-Z][a-zA-Z'-]+)?)`)

var notNames = map[string]bool{
	"here": true, "so": true, "back": true, "joined": true, "going": true, "not": true,
	"really": true, "the": true, "today": true, "welcome": true, "excited": true, "sure": true,
	"glad": true, "happy": true, "just": true, "also": true, "very": true, "thrilled": true,
}

// IntroducedNames finds self-introductions like "I'm Jane Doe" or "your host, Sam Lee".
func IntroducedNames(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, m := range introRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		first := strings.ToLower(strings.Fields(name)[0])
		if notNames[first] {
			continue
		}
		out = append(out, name)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func nonEmpty(ps ...*string) []string {
	var out []string
	for _, p := range ps {
		if p != nil && strings.TrimSpace(*p) != "" {
			out = append(out, *p)
		}
	}
	return out
}
