package domain

import (
	"github.com/yungbote/podreach-backend/internal/domain/campaign"
	"github.com/yungbote/podreach-backend/internal/domain/media"
	"github.com/yungbote/podreach-backend/internal/domain/sources"
)

const (
	StatusPending    = campaign.StatusPending
	StatusInProgress = campaign.StatusInProgress
	StatusCompleted  = campaign.StatusCompleted
	StatusFailed     = campaign.StatusFailed

	MatchStatusPending  = campaign.MatchStatusPending
	MatchStatusApproved = campaign.MatchStatusApproved
	MatchStatusRejected = campaign.MatchStatusRejected

	AudioURLAvailable  = media.AudioURLAvailable
	AudioURLFailed404  = media.AudioURLFailed404
	AudioURLFailedTemp = media.AudioURLFailedTemp

	SourceAPIListenNotes = media.SourceAPIListenNotes
	SourceAPIPodscan     = media.SourceAPIPodscan
	SourceAPIRSS         = media.SourceAPIRSS
	SourceAPIManual      = media.SourceAPIManual

	PlatformTwitter   = media.PlatformTwitter
	PlatformInstagram = media.PlatformInstagram
	PlatformTikTok    = media.PlatformTikTok
	PlatformLinkedIn  = media.PlatformLinkedIn
	PlatformFacebook  = media.PlatformFacebook
	PlatformYouTube   = media.PlatformYouTube

	SourceManualEntry         = sources.ManualEntry
	SourceRSSOwner            = sources.RSSOwner
	SourceEpisodeTranscript   = sources.EpisodeTranscript
	SourceAIAnalysis          = sources.AIAnalysis
	SourcePodcastDescription  = sources.PodcastDescription
	SourceWebSearch           = sources.WebSearch
	SourceUnlabeledExtraction = sources.UnlabeledExtraction
	SourceSocialMediaBio      = sources.SocialMediaBio
)

type (
	Media           = media.Media
	Episode         = media.Episode
	EnrichedProfile = media.EnrichedProfile
	HostAttribution = media.HostAttribution
	SocialStats     = media.SocialStats
	Platform        = media.Platform

	Campaign        = campaign.Campaign
	Discovery       = campaign.Discovery
	MatchSuggestion = campaign.MatchSuggestion

	SourceKind = sources.Kind
)

var (
	Platforms     = media.Platforms
	SourceWeights = sources.Weights
)

// AllModels lists every table owned or read by this service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Campaign{},
		&Media{},
		&Episode{},
		&MatchSuggestion{},
		&Discovery{},
	}
}

// ProfileFromMedia seeds an EnrichedProfile with what the row already knows.
func ProfileFromMedia(m *Media) *EnrichedProfile { return media.ProfileFromMedia(m) }
