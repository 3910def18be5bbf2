package rssfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/pkg/retry"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Episode struct {
	GUID        string
	Title       string
	Summary     string
	AudioURL    string
	PublishedAt *time.Time
	Duration    time.Duration
}

// Feed is the subset of a podcast feed the pipeline uses.
type Feed struct {
	Title       string
	Description string
	Link        string
	Language    string
	ImageURL    string
	Author      string
	OwnerName   string
	OwnerEmail  string
	Categories  []string
	Episodes    []Episode
}

// LatestEpisodeDate is the newest episode publish time, or nil.
func (f *Feed) LatestEpisodeDate() *time.Time {
	var out *time.Time
	for i := range f.Episodes {
		p := f.Episodes[i].PublishedAt
		if p != nil && (out == nil || p.After(*out)) {
			out = p
		}
	}
	return out
}

type Reader interface {
	Fetch(ctx context.Context, feedURL string) (*Feed, error)
}

type reader struct {
	log        *logger.Logger
	httpClient *http.Client
	parser     *gofeed.Parser
	maxBytes   int64
	policy     retry.Policy
}

func NewReader(log *logger.Logger, timeout time.Duration) Reader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := retry.APIPolicy
	p.Attempts = 2
	return &reader{
		log:        log.With("service", "RSSFeedReader"),
		httpClient: &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		maxBytes:   20 << 20,
		policy:     p,
	}
}

func (r *reader) Fetch(ctx context.Context, feedURL string) (*Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("rssfeed: empty url")
	}
	var feed *gofeed.Feed
	err := retry.Do(ctx, r.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		httpx.ApplyProfile(req, httpx.BrowserProfile)
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpx.DrainAndClose(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpx.StatusError{StatusCode: resp.StatusCode}
		}
		f, err := r.parser.Parse(io.LimitReader(resp.Body, r.maxBytes))
		if err != nil {
			return retry.Permanent(fmt.Errorf("rssfeed parse: %w", err))
		}
		feed = f
		return nil
	}, func(err error, wait time.Duration) {
		r.log.Warn("Feed fetch retrying", "sleep", wait.String(), "error", err.Error())
	})
	if err != nil {
		return nil, err
	}
	return convert(feed), nil
}

// Parse converts raw feed bytes without any network access.
func Parse(rd io.Reader) (*Feed, error) {
	f, err := gofeed.NewParser().Parse(rd)
	if err != nil {
		return nil, fmt.Errorf("rssfeed parse: %w", err)
	}
	return convert(f), nil
}

func convert(f *gofeed.Feed) *Feed {
	out := &Feed{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Link:        strings.TrimSpace(f.Link),
		Language:    strings.TrimSpace(f.Language),
		Categories:  f.Categories,
	}
	if f.Image != nil {
		out.ImageURL = strings.TrimSpace(f.Image.URL)
	}
	if len(f.Authors) > 0 && f.Authors[0] != nil {
		out.Author = strings.TrimSpace(f.Authors[0].Name)
	}
	if it := f.ITunesExt; it != nil {
		if it.Owner != nil {
			out.OwnerName = strings.TrimSpace(it.Owner.Name)
			out.OwnerEmail = strings.TrimSpace(it.Owner.Email)
		}
		if out.Author == "" {
			out.Author = strings.TrimSpace(it.Author)
		}
		if out.ImageURL == "" {
			out.ImageURL = strings.TrimSpace(it.Image)
		}
		for _, c := range it.Categories {
			if c != nil && c.Text != "" {
				out.Categories = append(out.Categories, c.Text)
			}
		}
	}

	for _, item := range f.Items {
		if item == nil {
			continue
		}
		ep := Episode{
			GUID:        strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Summary:     strings.TrimSpace(item.Description),
			PublishedAt: item.PublishedParsed,
		}
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" && (enc.Type == "" || strings.HasPrefix(enc.Type, "audio/")) {
				ep.AudioURL = strings.TrimSpace(enc.URL)
				break
			}
		}
		if item.ITunesExt != nil {
			ep.Duration = ParseDuration(item.ITunesExt.Duration)
		}
		out.Episodes = append(out.Episodes, ep)
	}
	sort.SliceStable(out.Episodes, func(i, j int) bool {
		a, b := out.Episodes[i].PublishedAt, out.Episodes[j].PublishedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	return out
}

// ParseDuration reads itunes:duration in "hh:mm:ss", "mm:ss" or plain seconds.
func ParseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
