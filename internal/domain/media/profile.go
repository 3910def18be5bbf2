package media

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/podreach-backend/internal/domain/sources"
	"gorm.io/datatypes"
)

type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
)

var Platforms = []Platform{PlatformTwitter, PlatformInstagram, PlatformTikTok, PlatformLinkedIn, PlatformFacebook, PlatformYouTube}

// HostAttribution is one candidate host name and every source that named it.
type HostAttribution struct {
	Name    string         `json:"name"`
	Sources []sources.Kind `json:"sources"`
}

// SocialStats is what a profile scrape yields for one URL.
type SocialStats struct {
	URL       string `json:"url"`
	Followers *int64 `json:"followers,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Name      string `json:"name,omitempty"`
}

// EnrichedProfile is the typed record handed between enrichment stages and into the
// merge. Nil pointers mean "unknown", never "clear".
type EnrichedProfile struct {
	MediaID uuid.UUID

	Name          string
	Title         string
	Description   *string
	AIDescription *string
	RSSURL        *string
	APIID         *string
	SourceAPI     *string
	Website       *string
	ContactEmail  *string
	RSSOwnerName  *string
	RSSOwnerEmail *string
	Language      *string
	Category      *string
	ImageURL      *string

	TotalEpisodes     *int
	ListenScore       *float64
	AudienceSize      *int64
	ITunesRating      *float64
	ITunesRatingCount *int
	LatestEpisodeDate *time.Time

	SocialURLs      map[Platform]string
	HostTwitterURL  *string
	HostLinkedInURL *string
	Followers       map[Platform]int64

	Hosts []HostAttribution

	EnrichedAt time.Time
}

func (p *EnrichedProfile) SocialURL(pl Platform) string {
	if p == nil || p.SocialURLs == nil {
		return ""
	}
	return p.SocialURLs[pl]
}

func (p *EnrichedProfile) SetSocialURL(pl Platform, url string) {
	if url == "" {
		return
	}
	if p.SocialURLs == nil {
		p.SocialURLs = map[Platform]string{}
	}
	p.SocialURLs[pl] = url
}

// AddHost records name as seen by kind, merging with an exact existing entry.
func (p *EnrichedProfile) AddHost(name string, kind sources.Kind) {
	if name == "" {
		return
	}
	for i := range p.Hosts {
		if p.Hosts[i].Name == name {
			for _, k := range p.Hosts[i].Sources {
				if k == kind {
					return
				}
			}
			p.Hosts[i].Sources = append(p.Hosts[i].Sources, kind)
			return
		}
	}
	p.Hosts = append(p.Hosts, HostAttribution{Name: name, Sources: []sources.Kind{kind}})
}

// ToMedia projects the profile onto a Media candidate for the upsert path.
func (p *EnrichedProfile) ToMedia() *Media {
	m := &Media{
		ID:                p.MediaID,
		Name:              p.Name,
		Title:             p.Title,
		Description:       p.Description,
		AIDescription:     p.AIDescription,
		RSSURL:            p.RSSURL,
		APIID:             p.APIID,
		SourceAPI:         p.SourceAPI,
		Website:           p.Website,
		ContactEmail:      p.ContactEmail,
		RSSOwnerName:      p.RSSOwnerName,
		RSSOwnerEmail:     p.RSSOwnerEmail,
		Language:          p.Language,
		Category:          p.Category,
		ImageURL:          p.ImageURL,
		TotalEpisodes:     p.TotalEpisodes,
		ListenScore:       p.ListenScore,
		AudienceSize:      p.AudienceSize,
		ITunesRating:      p.ITunesRating,
		ITunesRatingCount: p.ITunesRatingCount,
		LatestEpisodeDate: p.LatestEpisodeDate,
		HostTwitterURL:    p.HostTwitterURL,
		HostLinkedInURL:   p.HostLinkedInURL,
	}
	for pl, url := range p.SocialURLs {
		if url == "" {
			continue
		}
		u := url
		*m.SocialURLField(pl) = &u
	}
	for pl, n := range p.Followers {
		v := n
		if f := m.FollowerField(pl); f != nil {
			*f = &v
		}
	}
	if len(p.Hosts) > 0 {
		names := make([]string, 0, len(p.Hosts))
		srcs := map[string][]string{}
		for _, h := range p.Hosts {
			names = append(names, h.Name)
			srcs[h.Name] = sources.Strings(h.Sources)
		}
		m.HostNames = datatypes.JSONSlice[string](names)
		m.HostNamesDiscoverySources = datatypes.NewJSONType(srcs)
	}
	if !p.EnrichedAt.IsZero() {
		t := p.EnrichedAt
		m.LastEnrichedTimestamp = &t
	}
	return m
}

// SocialURLField addresses the podcast-level URL column for a platform.
func (m *Media) SocialURLField(pl Platform) **string {
	switch pl {
	case PlatformTwitter:
		return &m.TwitterURL
	case PlatformInstagram:
		return &m.InstagramURL
	case PlatformTikTok:
		return &m.TikTokURL
	case PlatformLinkedIn:
		return &m.LinkedInURL
	case PlatformFacebook:
		return &m.FacebookURL
	default:
		return &m.YouTubeURL
	}
}

func (m *Media) FollowerField(pl Platform) **int64 {
	switch pl {
	case PlatformTwitter:
		return &m.TwitterFollowers
	case PlatformInstagram:
		return &m.InstagramFollowers
	case PlatformTikTok:
		return &m.TikTokFollowers
	case PlatformLinkedIn:
		return &m.LinkedInFollowers
	case PlatformFacebook:
		return &m.FacebookLikes
	case PlatformYouTube:
		return &m.YouTubeSubscribers
	}
	return nil
}

// ProfileFromMedia seeds an EnrichedProfile with what the row already knows.
func ProfileFromMedia(m *Media) *EnrichedProfile {
	p := &EnrichedProfile{
		MediaID:           m.ID,
		Name:              m.Name,
		Title:             m.Title,
		Description:       m.Description,
		AIDescription:     m.AIDescription,
		RSSURL:            m.RSSURL,
		APIID:             m.APIID,
		SourceAPI:         m.SourceAPI,
		Website:           m.Website,
		ContactEmail:      m.ContactEmail,
		RSSOwnerName:      m.RSSOwnerName,
		RSSOwnerEmail:     m.RSSOwnerEmail,
		Language:          m.Language,
		Category:          m.Category,
		ImageURL:          m.ImageURL,
		TotalEpisodes:     m.TotalEpisodes,
		ListenScore:       m.ListenScore,
		AudienceSize:      m.AudienceSize,
		ITunesRating:      m.ITunesRating,
		ITunesRatingCount: m.ITunesRatingCount,
		LatestEpisodeDate: m.LatestEpisodeDate,
		HostTwitterURL:    m.HostTwitterURL,
		HostLinkedInURL:   m.HostLinkedInURL,
	}
	for _, pl := range Platforms {
		if u := *m.SocialURLField(pl); u != nil && *u != "" {
			p.SetSocialURL(pl, *u)
		}
	}
	srcs := m.HostSourceMap()
	for _, name := range m.HostNames {
		kinds := sources.Parse(srcs[name])
		if len(kinds) == 0 {
			kinds = []sources.Kind{sources.UnlabeledExtraction}
		}
		for _, k := range kinds {
			p.AddHost(name, k)
		}
	}
	return p
}
