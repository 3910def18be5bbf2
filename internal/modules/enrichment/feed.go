package enrichment

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
	"github.com/yungbote/podreach-backend/internal/platform/podcastapi"
	"github.com/yungbote/podreach-backend/internal/platform/rssfeed"
)

// lookupPodcast merges the provider's record for the feed into the row so api_id
// promotion and provider stats go through the regular upsert path. It returns the
// row to continue with.
func (a *Agent) lookupPodcast(ctx context.Context, log *logger.Logger, m *types.Media) (*types.Media, error) {
	rss := pointers.Deref(m.RSSURL)
	if a.d.Podcasts == nil || rss == "" {
		return m, nil
	}
	cand, err := a.d.Podcasts.LookupByRSS(ctx, rss)
	switch {
	case errors.Is(err, podcastapi.ErrNotFound):
		log.Debug("Podcast API has no match for feed", "rss_url", rss)
		return m, nil
	case errors.Is(err, podcastapi.ErrRateLimited):
		log.Info("Podcast API rate limited; skipping lookup this pass")
		return m, nil
	case err != nil:
		return m, degrade(log, "podcast_api", err)
	case cand == nil:
		return m, nil
	}

	cand.ID = m.ID
	saved, res, err := a.d.Media.Upsert(dbctx.New(ctx), cand)
	if err != nil {
		return m, degrade(log, "podcast_api", err)
	}
	if res.APIIDConflict {
		log.Warn("Podcast API id already owned by another media", "api_id", pointers.Deref(cand.APIID))
	}
	return saved, nil
}

// readFeed fills profile gaps from the RSS feed and stores its newest episodes.
// Feed errors leave the profile as loaded.
func (a *Agent) readFeed(ctx context.Context, log *logger.Logger, m *types.Media, p *types.EnrichedProfile) {
	rss := pointers.Deref(m.RSSURL)
	if a.d.Feeds == nil || rss == "" {
		return
	}
	feed, err := a.d.Feeds.Fetch(ctx, rss)
	if err != nil {
		log.Warn("Feed read failed; using stored data", "rss_url", rss, "error", err)
		return
	}
	applyFeed(p, feed)

	owner := firstNonEmpty(feed.OwnerName, feed.Author)
	if owner != "" && !normalization.LooksLikeOrganization(owner, p.Name, p.Title, feed.Title) {
		p.AddHost(normalization.DisplayName(owner), types.SourceRSSOwner)
	}

	if a.d.Episodes != nil {
		a.storeEpisodes(ctx, log, m, feed)
	}
}

func applyFeed(p *types.EnrichedProfile, f *rssfeed.Feed) {
	if p.Name == "" {
		p.Name = strings.TrimSpace(f.Title)
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(f.Title)
	}
	fill := func(dst **string, v string) {
		if v = strings.TrimSpace(v); v != "" && pointers.Deref(*dst) == "" {
			*dst = pointers.String(v)
		}
	}
	fill(&p.Description, f.Description)
	fill(&p.Language, f.Language)
	fill(&p.ImageURL, f.ImageURL)
	if len(f.Categories) > 0 {
		fill(&p.Category, f.Categories[0])
	}
	if site := normalization.URL(f.Link); site != "" {
		if _, social := normalization.Platform(site); !social {
			fill(&p.Website, site)
		}
	}
	if name := strings.TrimSpace(f.OwnerName); name != "" {
		p.RSSOwnerName = pointers.String(name)
	}
	if email := normalization.Email(f.OwnerEmail); email != "" {
		p.RSSOwnerEmail = pointers.String(email)
	}
	if latest := f.LatestEpisodeDate(); latest != nil {
		if p.LatestEpisodeDate == nil || latest.After(*p.LatestEpisodeDate) {
			t := latest.UTC()
			p.LatestEpisodeDate = &t
		}
	}
	if p.TotalEpisodes == nil && len(f.Episodes) > 0 {
		p.TotalEpisodes = pointers.Int(len(f.Episodes))
	}
}

// recentEpisodes returns up to keep feed episodes with audio, newest first; the
// first transcribe of them are flagged for transcription.
func recentEpisodes(mediaID uuid.UUID, f *rssfeed.Feed, keep, transcribe int) []*types.Episode {
	items := make([]rssfeed.Episode, 0, len(f.Episodes))
	for _, e := range f.Episodes {
		if strings.TrimSpace(e.AudioURL) != "" {
			items = append(items, e)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].PublishedAt, items[j].PublishedAt
		if pi == nil || pj == nil {
			return pj == nil && pi != nil
		}
		return pi.After(*pj)
	})
	if len(items) > keep {
		items = items[:keep]
	}
	out := make([]*types.Episode, 0, len(items))
	for i, e := range items {
		out = append(out, &types.Episode{
			MediaID:     mediaID,
			Title:       strings.TrimSpace(e.Title),
			PublishDate: e.PublishedAt,
			AudioURL:    strings.TrimSpace(e.AudioURL),
			DurationSec: int(e.Duration.Seconds()),
			Transcribe:  i < transcribe,
		})
	}
	return out
}

func (a *Agent) storeEpisodes(ctx context.Context, log *logger.Logger, m *types.Media, f *rssfeed.Feed) {
	eps := recentEpisodes(m.ID, f, a.cfg.KeepEpisodes, a.cfg.TranscribeNewest)
	if len(eps) == 0 {
		return
	}
	dbc := dbctx.New(ctx)
	created, err := a.d.Episodes.CreateIfMissing(dbc, eps)
	if err != nil {
		log.Warn("Storing feed episodes failed", "error", err)
		return
	}
	pruned, err := a.d.Episodes.PruneToRecent(dbc, m.ID, a.cfg.KeepEpisodes)
	if err != nil {
		log.Warn("Pruning old episodes failed", "error", err)
	}
	if created > 0 || pruned > 0 {
		log.Debug("Feed episodes synced", "created", created, "pruned", pruned)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
