package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/podreach-backend/internal/data/repos/media"
	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
	"github.com/yungbote/podreach-backend/internal/platform/rssfeed"
	"github.com/yungbote/podreach-backend/internal/platform/tavily"
)

type Config struct {
	// KeepEpisodes is how many of the newest feed episodes are stored per media.
	KeepEpisodes int
	// TranscribeNewest flags the newest stored episodes for transcription.
	TranscribeNewest  int
	SearchConcurrency int
	// CorpusMaxChars bounds the text handed to the extraction call.
	CorpusMaxChars int
}

func DefaultConfig() Config {
	return Config{KeepEpisodes: 10, TranscribeNewest: 3, SearchConcurrency: 3, CorpusMaxChars: 30000}
}

type MediaStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error)
	Upsert(dbc dbctx.Context, candidate *types.Media) (*types.Media, media.UpsertResult, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type EpisodeStore interface {
	CreateIfMissing(dbc dbctx.Context, episodes []*types.Episode) (int64, error)
	PruneToRecent(dbc dbctx.Context, mediaID uuid.UUID, keep int) (int64, error)
}

type FeedReader interface {
	Fetch(ctx context.Context, feedURL string) (*rssfeed.Feed, error)
}

type PodcastLookup interface {
	LookupByRSS(ctx context.Context, rssURL string) (*types.Media, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) (*tavily.Response, error)
}

// Extractor is satisfied by openai.Client.
type Extractor interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type SocialScraper interface {
	ScrapePlatform(ctx context.Context, platform types.Platform, urls []string) (map[string]types.SocialStats, error)
}

// Deps wires the agent. Every client except Media is optional; a missing client
// skips its stage.
type Deps struct {
	Log      *logger.Logger
	Media    MediaStore
	Episodes EpisodeStore
	Feeds    FeedReader
	Podcasts PodcastLookup
	Search   Searcher
	AI       Extractor
	Social   SocialScraper
	Now      func() time.Time
}

type Agent struct {
	log *logger.Logger
	cfg Config
	d   Deps
}

func NewAgent(deps Deps, cfg Config) *Agent {
	def := DefaultConfig()
	if cfg.KeepEpisodes <= 0 {
		cfg.KeepEpisodes = def.KeepEpisodes
	}
	if cfg.TranscribeNewest < 0 {
		cfg.TranscribeNewest = 0
	}
	if cfg.SearchConcurrency <= 0 {
		cfg.SearchConcurrency = def.SearchConcurrency
	}
	if cfg.CorpusMaxChars <= 0 {
		cfg.CorpusMaxChars = def.CorpusMaxChars
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Agent{log: deps.Log.With("service", "EnrichmentAgent"), cfg: cfg, d: deps}
}

// Enrich runs every stage for one media row and persists the fused profile.
// Unknown media yields (nil, nil). Only store errors and fatal client errors are
// returned; everything else degrades to what the row already had.
func (a *Agent) Enrich(ctx context.Context, mediaID uuid.UUID) (*types.EnrichedProfile, error) {
	ctx, span := otel.Tracer("podreach/enrichment").Start(ctx, "enrichment.enrich")
	defer span.End()
	span.SetAttributes(attribute.String("media_id", mediaID.String()))

	dbc := dbctx.New(ctx)
	m, err := a.d.Media.GetByID(dbc, mediaID)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", apperr.Store(err))
	}
	if m == nil {
		return nil, nil
	}
	log := a.log.With("media_id", m.ID)

	if m, err = a.lookupPodcast(ctx, log, m); err != nil {
		return nil, err
	}

	p := types.ProfileFromMedia(m)
	a.readFeed(ctx, log, m, p)

	if err := a.discover(ctx, log, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	a.scrapeSocial(ctx, log, p)

	return a.save(ctx, log, p)
}

func (a *Agent) save(ctx context.Context, log *logger.Logger, p *types.EnrichedProfile) (*types.EnrichedProfile, error) {
	dbc := dbctx.New(ctx)
	if rep := normalization.RepairProfile(p); rep.Changed() {
		log.Info("Repaired email-in-URL fields", "fields", rep.ClearedFields)
	}
	p.EnrichedAt = a.d.Now().UTC()

	saved, res, err := a.d.Media.Upsert(dbc, p.ToMedia())
	if err != nil {
		return nil, fmt.Errorf("upsert enriched media: %w", apperr.Store(err))
	}
	if res.APIIDConflict {
		log.Warn("Enriched api_id belongs to another media; kept existing id")
	}
	if err := a.d.Media.UpdateFields(dbc, saved.ID, map[string]interface{}{
		"last_enriched_timestamp": p.EnrichedAt,
	}); err != nil {
		return nil, fmt.Errorf("stamp enrichment: %w", apperr.Store(err))
	}
	p.MediaID = saved.ID
	log.Info("Enrichment saved", "action", string(res.Action), "changed", len(res.Changed), "hosts", len(p.Hosts))
	return p, nil
}

// degrade logs a stage failure; fatal errors are passed back to abort the run.
func degrade(log *logger.Logger, stage string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsFatal(err) || errors.Is(err, context.Canceled) {
		return err
	}
	log.Warn("Enrichment stage degraded", "stage", stage, "error", err)
	return nil
}
