package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceAPIListenNotes = "ListenNotes"
	SourceAPIPodscan     = "PodscanFM"
	SourceAPIRSS         = "RSS"
	SourceAPIManual      = "Manual"
)

// Media is one podcast. rss_url is the most stable natural key; api_id/source_api
// identify the originating search API and may change when a podcast is promoted.
type Media struct {
	ID uuid.UUID `gorm:"column:media_id;type:uuid;default:uuid_generate_v4();primaryKey" json:"media_id"`

	Name          string  `gorm:"column:name;type:text;not null;default:''" json:"name"`
	Title         string  `gorm:"column:title;type:text;not null;default:''" json:"title"`
	Description   *string `gorm:"column:description;type:text" json:"description,omitempty"`
	AIDescription *string `gorm:"column:ai_description;type:text" json:"ai_description,omitempty"`

	RSSURL    *string `gorm:"column:rss_url;type:text" json:"rss_url,omitempty"`
	APIID     *string `gorm:"column:api_id;type:text" json:"api_id,omitempty"`
	SourceAPI *string `gorm:"column:source_api;type:text" json:"source_api,omitempty"`

	Website       *string `gorm:"column:website;type:text" json:"website,omitempty"`
	ContactEmail  *string `gorm:"column:contact_email;type:text" json:"contact_email,omitempty"`
	RSSOwnerName  *string `gorm:"column:rss_owner_name;type:text" json:"rss_owner_name,omitempty"`
	RSSOwnerEmail *string `gorm:"column:rss_owner_email;type:text" json:"rss_owner_email,omitempty"`
	Language      *string `gorm:"column:language;type:text" json:"language,omitempty"`
	Category      *string `gorm:"column:category;type:text" json:"category,omitempty"`
	ImageURL      *string `gorm:"column:image_url;type:text" json:"image_url,omitempty"`

	TotalEpisodes     *int     `gorm:"column:total_episodes" json:"total_episodes,omitempty"`
	ListenScore       *float64 `gorm:"column:listen_score;type:double precision" json:"listen_score,omitempty"`
	AudienceSize      *int64   `gorm:"column:audience_size" json:"audience_size,omitempty"`
	ITunesRating      *float64 `gorm:"column:itunes_rating;type:double precision" json:"itunes_rating,omitempty"`
	ITunesRatingCount *int     `gorm:"column:itunes_rating_count" json:"itunes_rating_count,omitempty"`
	SpotifyRating     *float64 `gorm:"column:spotify_rating;type:double precision" json:"spotify_rating,omitempty"`

	TwitterURL   *string `gorm:"column:podcast_twitter_url;type:text" json:"podcast_twitter_url,omitempty"`
	InstagramURL *string `gorm:"column:podcast_instagram_url;type:text" json:"podcast_instagram_url,omitempty"`
	TikTokURL    *string `gorm:"column:podcast_tiktok_url;type:text" json:"podcast_tiktok_url,omitempty"`
	LinkedInURL  *string `gorm:"column:podcast_linkedin_url;type:text" json:"podcast_linkedin_url,omitempty"`
	FacebookURL  *string `gorm:"column:podcast_facebook_url;type:text" json:"podcast_facebook_url,omitempty"`
	YouTubeURL   *string `gorm:"column:podcast_youtube_url;type:text" json:"podcast_youtube_url,omitempty"`

	HostTwitterURL  *string `gorm:"column:host_twitter_url;type:text" json:"host_twitter_url,omitempty"`
	HostLinkedInURL *string `gorm:"column:host_linkedin_url;type:text" json:"host_linkedin_url,omitempty"`

	TwitterFollowers   *int64 `gorm:"column:twitter_followers" json:"twitter_followers,omitempty"`
	InstagramFollowers *int64 `gorm:"column:instagram_followers" json:"instagram_followers,omitempty"`
	TikTokFollowers    *int64 `gorm:"column:tiktok_followers" json:"tiktok_followers,omitempty"`
	LinkedInFollowers  *int64 `gorm:"column:linkedin_followers" json:"linkedin_followers,omitempty"`
	FacebookLikes      *int64 `gorm:"column:facebook_likes" json:"facebook_likes,omitempty"`
	YouTubeSubscribers *int64 `gorm:"column:youtube_subscribers" json:"youtube_subscribers,omitempty"`

	HostNames                    datatypes.JSONSlice[string]             `gorm:"column:host_names;type:jsonb;not null;default:'[]'" json:"host_names"`
	HostNamesConfidence          *float64                                `gorm:"column:host_names_confidence;type:double precision" json:"host_names_confidence,omitempty"`
	HostNamesDiscoveryConfidence datatypes.JSONType[map[string]float64]  `gorm:"column:host_names_discovery_confidence;type:jsonb;not null;default:'{}'" json:"host_names_discovery_confidence"`
	HostNamesDiscoverySources    datatypes.JSONType[map[string][]string] `gorm:"column:host_names_discovery_sources;type:jsonb;not null;default:'{}'" json:"host_names_discovery_sources"`
	HostNamesNeedsReview         bool                                    `gorm:"column:host_names_needs_review;not null;default:false" json:"host_names_needs_review"`
	HostNamesLastVerified        *time.Time                              `gorm:"column:host_names_last_verified" json:"host_names_last_verified,omitempty"`

	QualityScore             *float64   `gorm:"column:quality_score;type:double precision" json:"quality_score,omitempty"`
	QualityScoreUpdatedAt    *time.Time `gorm:"column:quality_score_updated_at" json:"quality_score_updated_at,omitempty"`
	EpisodeSummariesCompiled *string    `gorm:"column:episode_summaries_compiled;type:text" json:"episode_summaries_compiled,omitempty"`

	LatestEpisodeDate     *time.Time `gorm:"column:latest_episode_date" json:"latest_episode_date,omitempty"`
	LastEnrichedTimestamp *time.Time `gorm:"column:last_enriched_timestamp;index" json:"last_enriched_timestamp,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Media) TableName() string { return "media" }

// DisplayName prefers the curated name over the raw feed title.
func (m *Media) DisplayName() string {
	if m == nil {
		return ""
	}
	if m.Name != "" {
		return m.Name
	}
	return m.Title
}

// HostConfidenceMap returns the per-name confidence map, never nil.
func (m *Media) HostConfidenceMap() map[string]float64 {
	out := m.HostNamesDiscoveryConfidence.Data()
	if out == nil {
		return map[string]float64{}
	}
	return out
}

// HostSourceMap returns the per-name source-kind map, never nil.
func (m *Media) HostSourceMap() map[string][]string {
	out := m.HostNamesDiscoverySources.Data()
	if out == nil {
		return map[string][]string{}
	}
	return out
}
