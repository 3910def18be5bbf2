package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/podreach-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedCampaign(tb testing.TB, ctx context.Context, tx *gorm.DB, ideal string) *types.Campaign {
	tb.Helper()
	c := &types.Campaign{
		ID:       uuid.New(),
		Name:     "campaign",
		Keywords: datatypes.JSONSlice[string]{"ai", "startups"},
	}
	if ideal != "" {
		c.IdealPodcastDescription = &ideal
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed campaign: %v", err)
	}
	return c
}

func SeedMedia(tb testing.TB, ctx context.Context, tx *gorm.DB, rssURL string, aiDescription string) *types.Media {
	tb.Helper()
	m := &types.Media{
		ID:    uuid.New(),
		Name:  "Tech Talk",
		Title: "Tech Talk",
	}
	if rssURL != "" {
		m.RSSURL = &rssURL
	}
	if aiDescription != "" {
		m.AIDescription = &aiDescription
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed media: %v", err)
	}
	return m
}

func SeedEpisode(tb testing.TB, ctx context.Context, tx *gorm.DB, mediaID uuid.UUID, published time.Time, transcript string) *types.Episode {
	tb.Helper()
	e := &types.Episode{
		ID:             uuid.New(),
		MediaID:        mediaID,
		Title:          "episode",
		PublishDate:    &published,
		AudioURL:       "https://cdn.example.com/" + uuid.NewString() + ".mp3",
		DurationSec:    1800,
		Transcribe:     true,
		AudioURLStatus: types.AudioURLAvailable,
	}
	if transcript != "" {
		e.Transcript = &transcript
		e.Downloaded = true
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed episode: %v", err)
	}
	return e
}

func SeedDiscovery(tb testing.TB, ctx context.Context, tx *gorm.DB, campaignID, mediaID uuid.UUID, enrichment, vetting string) *types.Discovery {
	tb.Helper()
	d := &types.Discovery{
		ID:               uuid.New(),
		CampaignID:       campaignID,
		MediaID:          mediaID,
		Keyword:          "kw-" + uuid.NewString()[:8],
		EnrichmentStatus: enrichment,
		VettingStatus:    vetting,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed discovery: %v", err)
	}
	return d
}
