package enrichment

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// socialGroups buckets the profile's normalized URLs by platform. Every tracked
// platform has an entry, possibly empty. LinkedIn only carries company pages.
func socialGroups(p *types.EnrichedProfile) map[types.Platform][]string {
	groups := make(map[types.Platform][]string, len(types.Platforms))
	add := func(pl types.Platform, raw string) {
		u := normalization.URL(raw)
		if u == "" {
			return
		}
		if got, ok := normalization.Platform(u); !ok || got != pl {
			return
		}
		if pl == types.PlatformLinkedIn && !normalization.IsLinkedInCompany(u) {
			return
		}
		for _, seen := range groups[pl] {
			if seen == u {
				return
			}
		}
		groups[pl] = append(groups[pl], u)
	}
	for _, pl := range types.Platforms {
		groups[pl] = nil
		add(pl, p.SocialURL(pl))
	}
	add(types.PlatformTwitter, pointers.Deref(p.HostTwitterURL))
	return groups
}

// scrapeAll runs one task per platform. Platforms with no URLs resolve to an
// empty result at once; a failing platform yields nil without touching the rest.
func scrapeAll(ctx context.Context, log *logger.Logger, s SocialScraper, groups map[types.Platform][]string) map[types.Platform]map[string]types.SocialStats {
	results := make([]map[string]types.SocialStats, len(types.Platforms))
	g := &errgroup.Group{}
	g.SetLimit(len(types.Platforms))
	for i, pl := range types.Platforms {
		urls := groups[pl]
		g.Go(func() error {
			if len(urls) == 0 {
				results[i] = map[string]types.SocialStats{}
				return nil
			}
			defer func() {
				if r := recover(); r != nil {
					log.Error("Social scrape panicked", "platform", string(pl), "panic", fmt.Sprint(r))
					results[i] = nil
				}
			}()
			stats, scrapeErr := s.ScrapePlatform(ctx, pl, urls)
			if scrapeErr != nil {
				log.Warn("Social scrape failed", "platform", string(pl), "urls", len(urls), "error", scrapeErr)
				return nil
			}
			results[i] = stats
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[types.Platform]map[string]types.SocialStats, len(types.Platforms))
	for i, pl := range types.Platforms {
		out[pl] = results[i]
	}
	return out
}

func (a *Agent) scrapeSocial(ctx context.Context, log *logger.Logger, p *types.EnrichedProfile) {
	if a.d.Social == nil {
		return
	}
	ctx, span := otel.Tracer("podreach/enrichment").Start(ctx, "enrichment.stage2")
	defer span.End()

	groups := socialGroups(p)
	results := scrapeAll(ctx, log, a.d.Social, groups)
	applied := applySocial(p, results)
	span.SetAttributes(attribute.Int("social.applied", applied))
}

// applySocial copies follower counts for the show's own profiles and takes the
// display name from the host's twitter profile as a low-weight host source.
func applySocial(p *types.EnrichedProfile, results map[types.Platform]map[string]types.SocialStats) int {
	n := 0
	for _, pl := range types.Platforms {
		u := normalization.URL(p.SocialURL(pl))
		st, ok := results[pl][u]
		if u == "" || !ok || st.Followers == nil {
			continue
		}
		if p.Followers == nil {
			p.Followers = map[types.Platform]int64{}
		}
		p.Followers[pl] = *st.Followers
		n++
	}

	hostURL := normalization.URL(pointers.Deref(p.HostTwitterURL))
	if hostURL == "" || hostURL == normalization.URL(p.SocialURL(types.PlatformTwitter)) {
		return n
	}
	if st, ok := results[types.PlatformTwitter][hostURL]; ok {
		name := normalization.DisplayName(st.Name)
		if name != "" && !normalization.LooksLikeOrganization(name, p.Name, p.Title) {
			p.AddHost(name, types.SourceSocialMediaBio)
			n++
		}
	}
	return n
}
