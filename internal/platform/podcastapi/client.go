package podcastapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	types "github.com/yungbote/podreach-backend/internal/domain"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/pkg/retry"
	"github.com/yungbote/podreach-backend/internal/platform/apierr"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

var (
	// ErrRateLimited means the provider answered 429; callers skip the lookup for this pass.
	ErrRateLimited = errors.New("podcast api rate limited")
	// ErrNotFound means the provider has no podcast for the query.
	ErrNotFound = errors.New("podcast not found")
	// ErrUpstream covers every other non-2xx reply.
	ErrUpstream = errors.New("podcast api error")
)

// ClientError is the typed error returned for non-2xx replies.
type ClientError = apierr.Error

type Client interface {
	// LookupByRSS returns the provider's record for a feed as a Media candidate.
	LookupByRSS(ctx context.Context, rssURL string) (*types.Media, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("podcastapi: %w: LISTENNOTES_API_KEY", apperr.ErrMissingCredentials)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://listen-api.listennotes.com/api/v2"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	p := retry.APIPolicy
	p.Attempts = 2
	return &client{
		log:        log.With("service", "PodcastAPIClient"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		policy:     p,
	}, nil
}

type podcast struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Publisher     string `json:"publisher"`
	RSS           string `json:"rss"`
	Website       string `json:"website"`
	Email         string `json:"email"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	Language      string `json:"language"`
	TotalEpisodes int    `json:"total_episodes"`
	ListenScore   *int   `json:"listen_score"`
	LatestPubMS   int64  `json:"latest_pub_date_ms"`
	Extra         struct {
		TwitterHandle   string `json:"twitter_handle"`
		InstagramHandle string `json:"instagram_handle"`
		FacebookHandle  string `json:"facebook_handle"`
		YoutubeURL      string `json:"youtube_url"`
		LinkedinURL     string `json:"linkedin_url"`
	} `json:"extra"`
}

type batchResponse struct {
	Podcasts []podcast `json:"podcasts"`
}

func (c *client) LookupByRSS(ctx context.Context, rssURL string) (*types.Media, error) {
	rssURL = strings.TrimSpace(rssURL)
	if rssURL == "" {
		return nil, ErrNotFound
	}
	form := url.Values{}
	form.Set("rsses", rssURL)
	form.Set("show_latest_episodes", "0")

	var out batchResponse
	err := retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/podcasts", strings.NewReader(form.Encode()))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("X-ListenAPI-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}
		if err := classify(resp.StatusCode, raw); err != nil {
			if errors.Is(err, ErrRateLimited) {
				// Callers back off the whole pass instead of hammering here.
				return retry.Permanent(err)
			}
			return err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return retry.Permanent(fmt.Errorf("podcastapi decode: %w", err))
		}
		return nil
	}, func(err error, wait time.Duration) {
		c.log.Warn("Podcast API retrying", "sleep", wait.String(), "error", err.Error())
	})
	if err != nil {
		return nil, err
	}
	if len(out.Podcasts) == 0 || out.Podcasts[0].ID == "" {
		return nil, ErrNotFound
	}
	return toMedia(out.Podcasts[0], rssURL), nil
}

func classify(status int, raw []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return apierr.New(status, "rate_limited", ErrRateLimited)
	case status == http.StatusNotFound:
		return apierr.New(status, "not_found", ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apierr.New(status, "unauthorized", apperr.ErrMissingCredentials)
	}
	body := strings.TrimSpace(string(raw))
	if len(body) > 200 {
		body = body[:200]
	}
	return apierr.New(status, body, ErrUpstream)
}

func handleURL(base, handle string) *string {
	handle = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if handle == "" {
		return nil
	}
	if strings.HasPrefix(handle, "http") {
		return &handle
	}
	return pointers.String(base + handle)
}

func toMedia(p podcast, rssURL string) *types.Media {
	m := &types.Media{
		Title:        strings.TrimSpace(p.Title),
		Name:         strings.TrimSpace(p.Title),
		RSSURL:       pointers.String(rssURL),
		APIID:        pointers.String(p.ID),
		SourceAPI:    pointers.String(types.SourceAPIListenNotes),
		Description:  pointers.NonEmpty(strings.TrimSpace(p.Description)),
		Website:      pointers.NonEmpty(strings.TrimSpace(p.Website)),
		ContactEmail: pointers.NonEmpty(strings.TrimSpace(p.Email)),
		ImageURL:     pointers.NonEmpty(strings.TrimSpace(p.Image)),
		Language:     pointers.NonEmpty(strings.TrimSpace(p.Language)),
		TwitterURL:   handleURL("https://twitter.com/", p.Extra.TwitterHandle),
		InstagramURL: handleURL("https://instagram.com/", p.Extra.InstagramHandle),
		FacebookURL:  handleURL("https://facebook.com/", p.Extra.FacebookHandle),
		YouTubeURL:   pointers.NonEmpty(strings.TrimSpace(p.Extra.YoutubeURL)),
		LinkedInURL:  pointers.NonEmpty(strings.TrimSpace(p.Extra.LinkedinURL)),
	}
	if p.TotalEpisodes > 0 {
		m.TotalEpisodes = pointers.Int(p.TotalEpisodes)
	}
	if p.ListenScore != nil {
		v := float64(*p.ListenScore)
		m.ListenScore = &v
	}
	if p.LatestPubMS > 0 {
		t := time.UnixMilli(p.LatestPubMS).UTC()
		m.LatestEpisodeDate = &t
	}
	return m
}
