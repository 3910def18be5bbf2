package app

import (
	"github.com/yungbote/podreach-backend/internal/modules/enrichment"
	"github.com/yungbote/podreach-backend/internal/modules/hosts"
	"github.com/yungbote/podreach-backend/internal/modules/orchestrator"
	"github.com/yungbote/podreach-backend/internal/modules/quality"
	"github.com/yungbote/podreach-backend/internal/modules/transcription"
	"github.com/yungbote/podreach-backend/internal/modules/vetting"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Services struct {
	Enrichment    *enrichment.Agent
	Hosts         *hosts.Verifier
	Quality       *quality.Scorer
	Orchestrator  *orchestrator.Orchestrator
	Vetting       *vetting.Vetter
	Transcription *transcription.Service
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c *Clients) Services {
	log.Info("Wiring services...")
	var s Services

	enrDeps := enrichment.Deps{
		Log:      log,
		Media:    r.Media,
		Episodes: r.Episode,
		Feeds:    c.Feeds,
		Social:   c.Social,
	}
	if c.Podcasts != nil {
		enrDeps.Podcasts = c.Podcasts
	}
	if c.Search != nil {
		enrDeps.Search = c.Search
	}
	if c.AI != nil {
		enrDeps.AI = c.AI
	}
	s.Enrichment = enrichment.NewAgent(enrDeps, cfg.Enrichment)

	s.Hosts = hosts.NewVerifier(hosts.Deps{Log: log, Media: r.Media, Episodes: r.Episode}, cfg.Hosts)

	qDeps := quality.Deps{Log: log, Media: r.Media, Episodes: r.Episode}
	if c.AI != nil {
		qDeps.AI = c.AI
	}
	s.Quality = quality.NewScorer(qDeps, cfg.Quality)

	s.Orchestrator = orchestrator.New(orchestrator.Deps{
		Log:         log,
		Discoveries: r.Discovery,
		Media:       r.Media,
		Enricher:    s.Enrichment,
		Hosts:       s.Hosts,
		Quality:     s.Quality,
		Events:      c.Events,
	}, cfg.Orchestrator)

	if c.VetAI != nil {
		s.Vetting = vetting.NewVetter(vetting.Deps{
			Log:         log,
			Discoveries: r.Discovery,
			Media:       r.Media,
			Campaigns:   r.Campaign,
			Matches:     r.MatchSuggestion,
			AI:          c.VetAI,
			Events:      c.Events,
		}, cfg.Vetting)
	}

	if c.Speech != nil && c.Tools != nil {
		s.Transcription = transcription.NewService(transcription.Deps{
			Log:      log,
			Episodes: r.Episode,
			Fetcher: transcription.NewHTTPFetcher(log, transcription.FetcherConfig{
				Timeout:  cfg.Transcription.FetchTimeout,
				MaxBytes: cfg.Transcription.FetchMaxBytes,
			}),
			Transcriber: c.Speech,
			Tools:       c.Tools,
		}, cfg.Transcription.Module)
	}
	return s
}
