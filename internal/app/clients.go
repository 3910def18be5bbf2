package app

import (
	"context"
	"errors"
	"fmt"

	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/eventbus"
	"github.com/yungbote/podreach-backend/internal/platform/gcp"
	"github.com/yungbote/podreach-backend/internal/platform/localmedia"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
	"github.com/yungbote/podreach-backend/internal/platform/openai"
	"github.com/yungbote/podreach-backend/internal/platform/podcastapi"
	"github.com/yungbote/podreach-backend/internal/platform/rssfeed"
	"github.com/yungbote/podreach-backend/internal/platform/socialscrape"
	"github.com/yungbote/podreach-backend/internal/platform/tavily"
)

// Clients holds the external integrations. Credentialed clients are nil when
// their key is not configured; the stage that uses them is then skipped.
type Clients struct {
	AI       openai.Client
	VetAI    openai.Client
	Search   tavily.Searcher
	Podcasts podcastapi.Client
	Social   socialscrape.Scraper
	Feeds    rssfeed.Reader
	Events   eventbus.Publisher

	Speech  gcp.Speech
	Staging gcp.AudioStaging
	Tools   localmedia.Tools
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{
		Social: socialscrape.New(log, socialscrape.Config{Timeout: cfg.ScrapeTimeout, MaxBytes: cfg.ScrapeMaxBytes}),
		Feeds:  rssfeed.NewReader(log, cfg.FeedTimeout),
	}

	temp := cfg.OpenAI.Temperature
	ai, err := openai.NewClient(log, openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Timeout:     cfg.OpenAI.Timeout,
		MaxRetries:  cfg.OpenAI.MaxRetries,
		Temperature: &temp,
	})
	switch {
	case err == nil:
		c.AI = ai
		c.VetAI = openai.WithModel(ai, cfg.OpenAI.VetModel)
	case errors.Is(err, apperr.ErrMissingCredentials):
		log.Warn("OpenAI not configured; extraction, summaries and vetting disabled")
	default:
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	search, err := tavily.New(log, tavily.Config{
		APIKey:     cfg.Search.APIKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    cfg.Search.Timeout,
	})
	switch {
	case err == nil:
		c.Search = search
	case errors.Is(err, apperr.ErrMissingCredentials):
		log.Warn("Web search not configured; stage 1 discovery disabled")
	default:
		return nil, fmt.Errorf("init search client: %w", err)
	}

	podcasts, err := podcastapi.New(log, podcastapi.Config{
		APIKey:  cfg.Podcasts.APIKey,
		BaseURL: cfg.Podcasts.BaseURL,
		Timeout: cfg.Podcasts.Timeout,
	})
	switch {
	case err == nil:
		c.Podcasts = podcasts
	case errors.Is(err, apperr.ErrMissingCredentials):
		log.Warn("Podcast API not configured; directory lookup disabled")
	default:
		return nil, fmt.Errorf("init podcast api client: %w", err)
	}

	events, err := eventbus.New(log, eventbus.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
	})
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	c.Events = events

	if cfg.Transcription.Enabled {
		if err := c.wireTranscription(ctx, log, cfg); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Clients) wireTranscription(ctx context.Context, log *logger.Logger, cfg Config) error {
	tools := localmedia.New(log, cfg.Transcription.WorkRoot)
	if err := tools.AssertReady(ctx); err != nil {
		return fmt.Errorf("media tools: %w", err)
	}
	c.Tools = tools

	stagingCfg, err := gcp.ResolveStagingConfig(cfg.GCP.StagingMode, cfg.GCP.StagingBucket, cfg.GCP.StagingEmulator)
	if err != nil {
		return fmt.Errorf("audio staging config: %w", err)
	}
	stagingCfg.Credentials = cfg.GCP.Credentials
	staging, err := gcp.NewAudioStaging(ctx, log, stagingCfg)
	if err != nil {
		return fmt.Errorf("init audio staging: %w", err)
	}
	c.Staging = staging

	speech, err := gcp.NewSpeech(ctx, log, cfg.GCP.Credentials, staging)
	if err != nil {
		return fmt.Errorf("init speech client: %w", err)
	}
	c.Speech = speech
	return nil
}

// Close releases every client that holds a connection. Safe on a partial value.
func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
	if c.Staging != nil {
		_ = c.Staging.Close()
	}
	if c.Events != nil {
		_ = c.Events.Close()
	}
}
