package quality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Config struct {
	MinTranscribed int
	// SummaryEpisodes caps how many transcribed episodes feed the compiled summary.
	SummaryEpisodes    int
	SummaryConcurrency int
	TranscriptMaxChars int
}

func DefaultConfig() Config {
	return Config{MinTranscribed: 3, SummaryEpisodes: 10, SummaryConcurrency: 3, TranscriptMaxChars: 24000}
}

type MediaStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type EpisodeStore interface {
	CountTranscribed(dbc dbctx.Context, mediaID uuid.UUID) (int64, error)
	ListTranscribed(dbc dbctx.Context, mediaID uuid.UUID, limit int) ([]*types.Episode, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

// Summarizer is satisfied by openai.Client.
type Summarizer interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type Deps struct {
	Log      *logger.Logger
	Media    MediaStore
	Episodes EpisodeStore
	// AI is optional; without it summaries are compiled from existing episode summaries only.
	AI  Summarizer
	Now func() time.Time
}

type Scorer struct {
	log *logger.Logger
	cfg Config
	d   Deps
}

func NewScorer(deps Deps, cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.MinTranscribed <= 0 {
		cfg.MinTranscribed = def.MinTranscribed
	}
	if cfg.SummaryEpisodes <= 0 {
		cfg.SummaryEpisodes = def.SummaryEpisodes
	}
	if cfg.SummaryConcurrency <= 0 {
		cfg.SummaryConcurrency = def.SummaryConcurrency
	}
	if cfg.TranscriptMaxChars <= 0 {
		cfg.TranscriptMaxChars = def.TranscriptMaxChars
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scorer{log: deps.Log.With("service", "QualityScorer"), cfg: cfg, d: deps}
}

// MaybeUpdate scores the media once it has enough transcribed episodes. Below the
// threshold nothing is written and (nil, nil) is returned, so quality_score stays NULL.
func (s *Scorer) MaybeUpdate(ctx context.Context, mediaID uuid.UUID) (*Breakdown, error) {
	ctx, span := otel.Tracer("podreach/quality").Start(ctx, "quality.maybe_update")
	defer span.End()
	span.SetAttributes(attribute.String("media_id", mediaID.String()))

	dbc := dbctx.New(ctx)
	m, err := s.d.Media.GetByID(dbc, mediaID)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", apperr.Store(err))
	}
	if m == nil {
		return nil, nil
	}
	n, err := s.d.Episodes.CountTranscribed(dbc, mediaID)
	if err != nil {
		return nil, fmt.Errorf("count transcribed: %w", apperr.Store(err))
	}
	if n < int64(s.cfg.MinTranscribed) {
		s.log.Debug("Skipping quality score; not enough transcripts", "media_id", mediaID, "transcribed", n, "required", s.cfg.MinTranscribed)
		return nil, nil
	}

	episodes, err := s.d.Episodes.ListTranscribed(dbc, mediaID, s.cfg.SummaryEpisodes)
	if err != nil {
		return nil, fmt.Errorf("list transcribed: %w", apperr.Store(err))
	}

	updates := map[string]interface{}{}
	if rep := normalization.RepairMedia(m); rep.Changed() {
		for _, col := range rep.ClearedFields {
			updates[col] = nil
		}
		if rep.FilledContact {
			updates["contact_email"] = *m.ContactEmail
		}
		s.log.Warn("Repaired email-in-URL fields before scoring", "media_id", mediaID, "fields", rep.ClearedFields)
	}

	now := s.d.Now().UTC()
	b := Score(m, newestPublish(episodes), now)
	updates["quality_score"] = b.Total
	updates["quality_score_updated_at"] = now
	if err := s.d.Media.UpdateFields(dbc, mediaID, updates); err != nil {
		return nil, fmt.Errorf("save quality score: %w", apperr.Store(err))
	}
	s.log.Info("Quality score updated", "media_id", mediaID, "score", b.Total)

	if err := s.CompileSummaries(ctx, m, episodes); err != nil {
		s.log.Warn("Episode summary compilation failed", "media_id", mediaID, "error", err)
	}
	return &b, nil
}

// CompileSummaries fills missing per-episode summaries and stores them newest
// first in episode_summaries_compiled. One episode failing does not stop the rest.
func (s *Scorer) CompileSummaries(ctx context.Context, m *types.Media, episodes []*types.Episode) error {
	if len(episodes) == 0 {
		return nil
	}
	summaries := make([]string, len(episodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SummaryConcurrency)
	for i, e := range episodes {
		if e.AIEpisodeSummary != nil && strings.TrimSpace(*e.AIEpisodeSummary) != "" {
			summaries[i] = strings.TrimSpace(*e.AIEpisodeSummary)
			continue
		}
		if s.d.AI == nil || !e.HasTranscript() {
			continue
		}
		g.Go(func() error {
			sum, err := s.summarize(gctx, m, e)
			if err != nil {
				s.log.Warn("Episode summary failed", "media_id", m.ID, "episode_id", e.ID, "error", err)
				return nil
			}
			if err := s.d.Episodes.UpdateFields(dbctx.New(gctx), e.ID, map[string]interface{}{"ai_episode_summary": sum}); err != nil {
				s.log.Warn("Saving episode summary failed", "episode_id", e.ID, "error", err)
			}
			summaries[i] = sum
			return nil
		})
	}
	_ = g.Wait()

	compiled := compile(episodes, summaries)
	if compiled == "" {
		return nil
	}
	return s.d.Media.UpdateFields(dbctx.New(ctx), m.ID, map[string]interface{}{"episode_summaries_compiled": compiled})
}

func (s *Scorer) summarize(ctx context.Context, m *types.Media, e *types.Episode) (string, error) {
	system := strings.TrimSpace(`
You summarize podcast episodes for a guest-booking team.
Write 3-5 sentences covering the topics discussed, the guest (if any) and the tone.
Use only the transcript provided. Do not invent names or facts.
`)
	transcript := *e.Transcript
	if r := []rune(transcript); len(r) > s.cfg.TranscriptMaxChars {
		transcript = string(r[:s.cfg.TranscriptMaxChars])
	}
	user := "PODCAST: " + m.DisplayName() + "\n" +
		"EPISODE: " + strings.TrimSpace(e.Title) + "\n\n" +
		"TRANSCRIPT:\n" + transcript
	out, err := s.d.AI.GenerateText(ctx, system, user)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty summary")
	}
	return out, nil
}

// compile expects episodes newest first, as ListTranscribed returns them.
func compile(episodes []*types.Episode, summaries []string) string {
	var b strings.Builder
	for i, e := range episodes {
		if summaries[i] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(strings.TrimSpace(e.Title))
		if e.PublishDate != nil {
			b.WriteString(" (")
			b.WriteString(e.PublishDate.Format("2006-01-02"))
			b.WriteString(")")
		}
		b.WriteString("\n")
		b.WriteString(summaries[i])
	}
	return b.String()
}

func newestPublish(episodes []*types.Episode) *time.Time {
	var newest *time.Time
	for _, e := range episodes {
		if e.PublishDate != nil && (newest == nil || e.PublishDate.After(*newest)) {
			newest = e.PublishDate
		}
	}
	return newest
}
