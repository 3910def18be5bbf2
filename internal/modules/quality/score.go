package quality

import (
	"math"
	"time"

	types "github.com/yungbote/podreach-backend/internal/domain"
)

// Component weights of the composite score. Missing components are dropped and
// the remaining weights renormalized.
const (
	weightAudience = 0.30
	weightRatings  = 0.25
	weightSocial   = 0.25
	weightActivity = 0.20
)

type Breakdown struct {
	Audience *float64 `json:"audience,omitempty"`
	Ratings  *float64 `json:"ratings,omitempty"`
	Social   *float64 `json:"social,omitempty"`
	Activity float64  `json:"activity"`
	Total    float64  `json:"total"`
}

// Score computes the 0-100 composite for m. latest overrides m.LatestEpisodeDate
// when the row has none. Activity is always present so the total is finite.
func Score(m *types.Media, latest *time.Time, now time.Time) Breakdown {
	var b Breakdown
	b.Audience = audienceScore(m)
	b.Ratings = ratingScore(m)
	b.Social = socialScore(m)
	if m.LatestEpisodeDate != nil {
		latest = m.LatestEpisodeDate
	}
	b.Activity = activityScore(latest, m.TotalEpisodes, now)

	sum, weights := b.Activity*weightActivity, weightActivity
	for _, c := range []struct {
		v *float64
		w float64
	}{{b.Audience, weightAudience}, {b.Ratings, weightRatings}, {b.Social, weightSocial}} {
		if c.v != nil {
			sum += *c.v * c.w
			weights += c.w
		}
	}
	b.Total = round2(sum / weights)
	return b
}

func audienceScore(m *types.Media) *float64 {
	if m.ListenScore != nil && *m.ListenScore > 0 {
		v := clamp(*m.ListenScore, 0, 100)
		return &v
	}
	if m.AudienceSize != nil && *m.AudienceSize > 0 {
		v := logScale(float64(*m.AudienceSize), 1e6)
		return &v
	}
	return nil
}

func ratingScore(m *types.Media) *float64 {
	rating := 0.0
	switch {
	case m.ITunesRating != nil && *m.ITunesRating > 0:
		rating = *m.ITunesRating
	case m.SpotifyRating != nil && *m.SpotifyRating > 0:
		rating = *m.SpotifyRating
	default:
		return nil
	}
	count := 0
	if m.ITunesRatingCount != nil {
		count = *m.ITunesRatingCount
	}
	// A handful of ratings earns half credit; about a thousand earns full credit.
	volume := math.Min(1, math.Log10(float64(count)+1)/3)
	v := clamp(rating/5, 0, 1) * (0.5 + 0.5*volume) * 100
	return &v
}

func socialScore(m *types.Media) *float64 {
	var total int64
	seen := false
	for _, pl := range types.Platforms {
		if f := *m.FollowerField(pl); f != nil {
			seen = true
			total += *f
		}
	}
	if !seen {
		return nil
	}
	v := 0.0
	if total > 0 {
		v = logScale(float64(total), 1e6)
	}
	return &v
}

func activityScore(latest *time.Time, totalEpisodes *int, now time.Time) float64 {
	recency := 0.0
	if latest != nil && !latest.IsZero() {
		days := now.Sub(*latest).Hours() / 24
		switch {
		case days <= 7:
			recency = 100
		case days >= 365:
			recency = 0
		default:
			recency = 100 * (365 - days) / (365 - 7)
		}
	}
	volume := 0.0
	if totalEpisodes != nil && *totalEpisodes > 0 {
		volume = logScale(float64(*totalEpisodes), 200)
	}
	return 0.6*recency + 0.4*volume
}

// logScale maps n onto 0-100 with full marks at n >= full.
func logScale(n, full float64) float64 {
	if n <= 1 {
		return 0
	}
	return clamp(math.Log10(n)/math.Log10(full)*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
