package app

import (
	"github.com/yungbote/podreach-backend/internal/data/db"
	"github.com/yungbote/podreach-backend/internal/data/repos/discovery"
	"github.com/yungbote/podreach-backend/internal/data/repos/media"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Repos struct {
	Media           media.MediaRepo
	Episode         media.EpisodeRepo
	Discovery       discovery.DiscoveryRepo
	Campaign        discovery.CampaignRepo
	MatchSuggestion discovery.MatchSuggestionRepo

	// Lookup serves operator reads from the one-shot commands on the interactive pool.
	Lookup media.MediaRepo
}

// wireRepos binds the pipeline repos to the background pool; the worker issues
// no latency-sensitive queries.
func wireRepos(pools *db.Pools, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	bg := pools.Background
	return Repos{
		Media:           media.NewMediaRepo(bg, log),
		Episode:         media.NewEpisodeRepo(bg, log),
		Discovery:       discovery.NewDiscoveryRepo(bg, log),
		Campaign:        discovery.NewCampaignRepo(bg, log),
		MatchSuggestion: discovery.NewMatchSuggestionRepo(bg, log),
		Lookup:          media.NewMediaRepo(pools.Interactive, log),
	}
}
