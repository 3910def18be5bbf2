package socialscrape

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/pkg/retry"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// Scraper fetches public profile pages for one platform at a time.
type Scraper interface {
	// ScrapePlatform returns stats keyed by the input URL. URLs that fail are
	// absent from the map; the error is non-nil only when every URL failed.
	ScrapePlatform(ctx context.Context, platform types.Platform, urls []string) (map[string]types.SocialStats, error)
}

type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

type scraper struct {
	log        *logger.Logger
	httpClient *http.Client
	maxBytes   int64
	policy     retry.Policy
}

func New(log *logger.Logger, cfg Config) Scraper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	p := retry.APIPolicy
	p.Attempts = 1
	return &scraper{
		log: log.With("service", "SocialScraper"),
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		policy:   p,
	}
}

func (s *scraper) ScrapePlatform(ctx context.Context, platform types.Platform, urls []string) (map[string]types.SocialStats, error) {
	out := map[string]types.SocialStats{}
	if len(urls) == 0 {
		return out, nil
	}
	var lastErr error
	for _, u := range urls {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		st, err := s.scrapeOne(ctx, platform, u)
		if err != nil {
			lastErr = err
			s.log.Debug("Profile scrape failed", "platform", string(platform), "url", u, "error", err.Error())
			continue
		}
		out[u] = st
	}
	if len(out) == 0 && lastErr != nil {
		return out, fmt.Errorf("scrape %s: %w", platform, lastErr)
	}
	return out, nil
}

func (s *scraper) scrapeOne(ctx context.Context, platform types.Platform, pageURL string) (types.SocialStats, error) {
	var st types.SocialStats
	err := retry.Do(ctx, s.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		httpx.ApplyProfile(req, profileFor(platform))
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpx.DrainAndClose(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpx.StatusError{StatusCode: resp.StatusCode}
		}
		doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.maxBytes))
		if err != nil {
			return retry.Permanent(err)
		}
		st = Extract(doc)
		return nil
	}, nil)
	st.URL = pageURL
	return st, err
}

// LinkedIn and Facebook serve a login wall to browser agents.
func profileFor(p types.Platform) httpx.Profile {
	switch p {
	case types.PlatformLinkedIn, types.PlatformFacebook:
		return httpx.CurlProfile
	}
	return httpx.BrowserProfile
}

// Extract reads name, bio and follower count from a profile page's meta tags.
func Extract(doc *goquery.Document) types.SocialStats {
	var st types.SocialStats
	meta := func(keys ...string) string {
		for _, k := range keys {
			sel := doc.Find(fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, k, k)).First()
			if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	st.Name = meta("og:title", "twitter:title")
	if st.Name == "" {
		st.Name = strings.TrimSpace(doc.Find("title").First().Text())
	}
	st.Bio = meta("og:description", "description", "twitter:description")

	if n, ok := ParseFollowers(st.Bio); ok {
		st.Followers = &n
	} else if n, ok := ParseFollowers(doc.Find("body").Text()); ok {
		st.Followers = &n
	}
	return st
}

var followersRe = regexp.MustCompile(`(?i)([\d][\d,.]*)\s*([kmb])?\+?\s*(followers|subscribers|likes|connections)`)

// ParseFollowers finds the first "<count> followers" phrase, honoring K/M/B suffixes.
func ParseFollowers(text string) (int64, bool) {
	m := followersRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	num := m[1]
	suffix := strings.ToLower(m[2])
	mult := 1.0
	switch suffix {
	case "k":
		mult = 1e3
	case "m":
		mult = 1e6
	case "b":
		mult = 1e9
	}
	if suffix == "" {
		num = strings.NewReplacer(",", "", ".", "").Replace(num)
	} else {
		num = strings.ReplaceAll(num, ",", "")
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * mult)), true
}
