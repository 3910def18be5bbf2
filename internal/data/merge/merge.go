package merge

import (
	"strings"
	"time"

	"github.com/yungbote/podreach-backend/internal/domain/media"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"gorm.io/datatypes"
)

// Policy decides what happens when both sides hold a value.
type Policy int

const (
	// PreferNew takes the incoming non-null value.
	PreferNew Policy = iota
	// FillIfMissing only writes when the stored value is null.
	FillIfMissing
	// DescriptionPrecedence ranks by the side's source API.
	DescriptionPrecedence
	// ContactPrecedence ranks RSS owner email above any API-provided email.
	ContactPrecedence
)

// Source API precedence for description-like fields. Higher wins.
var descriptionRank = map[string]int{
	media.SourceAPIPodscan:     3,
	media.SourceAPIListenNotes: 2,
	media.SourceAPIRSS:         1,
}

const contactRankRSSOwner = 10

type decision struct {
	existingDesc    int
	candidateDesc   int
	existingContact int
	candContact     int
}

func (d decision) take(p Policy, existingPresent bool) bool {
	if !existingPresent {
		return true
	}
	switch p {
	case PreferNew:
		return true
	case FillIfMissing:
		return false
	case DescriptionPrecedence:
		return d.candidateDesc >= d.existingDesc
	case ContactPrecedence:
		return d.candContact >= d.existingContact
	}
	return false
}

type field struct {
	column string
	policy Policy
	merge  func(dst, src *media.Media, d decision) (any, bool)
}

func ptrField[T comparable](column string, p Policy, sel func(*media.Media) **T) field {
	return field{column: column, policy: p, merge: func(dst, src *media.Media, d decision) (any, bool) {
		nv := *sel(src)
		if nv == nil || blank(*nv) {
			return nil, false
		}
		ov := *sel(dst)
		present := ov != nil && !blank(*ov)
		if present && *ov == *nv {
			return nil, false
		}
		if !d.take(p, present) {
			return nil, false
		}
		v := *nv
		*sel(dst) = &v
		return v, true
	}}
}

func valField(column string, p Policy, sel func(*media.Media) *string) field {
	return field{column: column, policy: p, merge: func(dst, src *media.Media, d decision) (any, bool) {
		nv := strings.TrimSpace(*sel(src))
		if nv == "" {
			return nil, false
		}
		ov := *sel(dst)
		present := strings.TrimSpace(ov) != ""
		if ov == nv {
			return nil, false
		}
		if !d.take(p, present) {
			return nil, false
		}
		*sel(dst) = nv
		return nv, true
	}}
}

func blank[T comparable](v T) bool {
	if s, ok := any(v).(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Fields is the per-column policy table. api_id/source_api/rss_url identity is
// resolved by the upsert path, not here.
var Fields = []field{
	valField("name", FillIfMissing, func(m *media.Media) *string { return &m.Name }),
	valField("title", PreferNew, func(m *media.Media) *string { return &m.Title }),
	ptrField("description", DescriptionPrecedence, func(m *media.Media) **string { return &m.Description }),
	ptrField("ai_description", DescriptionPrecedence, func(m *media.Media) **string { return &m.AIDescription }),
	ptrField("rss_url", FillIfMissing, func(m *media.Media) **string { return &m.RSSURL }),
	ptrField("website", FillIfMissing, func(m *media.Media) **string { return &m.Website }),
	ptrField("contact_email", ContactPrecedence, func(m *media.Media) **string { return &m.ContactEmail }),
	ptrField("rss_owner_name", PreferNew, func(m *media.Media) **string { return &m.RSSOwnerName }),
	ptrField("rss_owner_email", PreferNew, func(m *media.Media) **string { return &m.RSSOwnerEmail }),
	ptrField("language", PreferNew, func(m *media.Media) **string { return &m.Language }),
	ptrField("category", PreferNew, func(m *media.Media) **string { return &m.Category }),
	ptrField("image_url", PreferNew, func(m *media.Media) **string { return &m.ImageURL }),

	ptrField("total_episodes", PreferNew, func(m *media.Media) **int { return &m.TotalEpisodes }),
	ptrField("listen_score", PreferNew, func(m *media.Media) **float64 { return &m.ListenScore }),
	ptrField("audience_size", PreferNew, func(m *media.Media) **int64 { return &m.AudienceSize }),
	ptrField("itunes_rating", PreferNew, func(m *media.Media) **float64 { return &m.ITunesRating }),
	ptrField("itunes_rating_count", PreferNew, func(m *media.Media) **int { return &m.ITunesRatingCount }),
	ptrField("spotify_rating", PreferNew, func(m *media.Media) **float64 { return &m.SpotifyRating }),
	ptrField("latest_episode_date", PreferNew, func(m *media.Media) **time.Time { return &m.LatestEpisodeDate }),

	ptrField("podcast_twitter_url", PreferNew, func(m *media.Media) **string { return &m.TwitterURL }),
	ptrField("podcast_instagram_url", PreferNew, func(m *media.Media) **string { return &m.InstagramURL }),
	ptrField("podcast_tiktok_url", PreferNew, func(m *media.Media) **string { return &m.TikTokURL }),
	ptrField("podcast_linkedin_url", PreferNew, func(m *media.Media) **string { return &m.LinkedInURL }),
	ptrField("podcast_facebook_url", PreferNew, func(m *media.Media) **string { return &m.FacebookURL }),
	ptrField("podcast_youtube_url", PreferNew, func(m *media.Media) **string { return &m.YouTubeURL }),
	ptrField("host_twitter_url", FillIfMissing, func(m *media.Media) **string { return &m.HostTwitterURL }),
	ptrField("host_linkedin_url", FillIfMissing, func(m *media.Media) **string { return &m.HostLinkedInURL }),

	ptrField("twitter_followers", PreferNew, func(m *media.Media) **int64 { return &m.TwitterFollowers }),
	ptrField("instagram_followers", PreferNew, func(m *media.Media) **int64 { return &m.InstagramFollowers }),
	ptrField("tiktok_followers", PreferNew, func(m *media.Media) **int64 { return &m.TikTokFollowers }),
	ptrField("linkedin_followers", PreferNew, func(m *media.Media) **int64 { return &m.LinkedInFollowers }),
	ptrField("facebook_likes", PreferNew, func(m *media.Media) **int64 { return &m.FacebookLikes }),
	ptrField("youtube_subscribers", PreferNew, func(m *media.Media) **int64 { return &m.YouTubeSubscribers }),
}

// Into merges candidate into existing in place and returns the changed columns.
// An empty map means the stored row already reflects the candidate. Timestamps
// are not compared; callers add last_enriched_timestamp themselves.
func Into(existing, candidate *media.Media) map[string]any {
	updates := map[string]any{}
	if existing == nil || candidate == nil {
		return updates
	}
	d := decision{
		existingDesc:    descriptionRank[deref(existing.SourceAPI)],
		candidateDesc:   descriptionRank[deref(candidate.SourceAPI)],
		existingContact: contactRank(existing),
		candContact:     contactRank(candidate),
	}
	for _, f := range Fields {
		if v, ok := f.merge(existing, candidate, d); ok {
			updates[f.column] = v
		}
	}
	if names, srcs, changed := mergeHosts(existing, candidate); changed {
		existing.HostNames = names
		existing.HostNamesDiscoverySources = datatypes.NewJSONType(srcs)
		updates["host_names"] = names
		updates["host_names_discovery_sources"] = existing.HostNamesDiscoverySources
	}
	return updates
}

// contactRank: an email that matches the feed's owner email outranks every API.
func contactRank(m *media.Media) int {
	if m.ContactEmail == nil || *m.ContactEmail == "" {
		return 0
	}
	if m.RSSOwnerEmail != nil && strings.EqualFold(strings.TrimSpace(*m.RSSOwnerEmail), strings.TrimSpace(*m.ContactEmail)) {
		return contactRankRSSOwner
	}
	return descriptionRank[deref(m.SourceAPI)]
}

// mergeHosts unions host names by folded form, keeping stored order and spelling,
// and unions the per-name source lists.
func mergeHosts(existing, candidate *media.Media) (datatypes.JSONSlice[string], map[string][]string, bool) {
	if len(candidate.HostNames) == 0 {
		return nil, nil, false
	}
	names := append(datatypes.JSONSlice[string]{}, existing.HostNames...)
	srcs := map[string][]string{}
	for k, v := range existing.HostSourceMap() {
		srcs[k] = append([]string(nil), v...)
	}
	byFold := map[string]string{}
	for _, n := range names {
		byFold[normalization.FoldName(n)] = n
	}
	candSrcs := candidate.HostSourceMap()
	changed := false
	for _, n := range candidate.HostNames {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := normalization.FoldName(n)
		canonical, ok := byFold[key]
		if !ok {
			canonical = n
			byFold[key] = n
			names = append(names, n)
			changed = true
		}
		for _, s := range candSrcs[n] {
			if !contains(srcs[canonical], s) {
				srcs[canonical] = append(srcs[canonical], s)
				changed = true
			}
		}
	}
	return names, srcs, changed
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
