package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/pkg/retry"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

// Text flattens the response into the grounding text handed to the LLM.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	if a := strings.TrimSpace(r.Answer); a != "" {
		b.WriteString(a)
		b.WriteString("\n")
	}
	for _, res := range r.Results {
		b.WriteString(strings.TrimSpace(res.Title))
		b.WriteString(" (")
		b.WriteString(res.URL)
		b.WriteString(")\n")
		if c := strings.TrimSpace(res.Content); c != "" {
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

type Searcher interface {
	Search(ctx context.Context, query string) (*Response, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

type client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
	policy     retry.Policy
}

func New(log *logger.Logger, cfg Config) (Searcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("tavily: %w: TAVILY_API_KEY", apperr.ErrMissingCredentials)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.tavily.com"
	}
	n := cfg.MaxResults
	if n <= 0 {
		n = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("service", "TavilyClient"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    base,
		maxResults: n,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.APIPolicy,
	}, nil
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

func (c *client) Search(ctx context.Context, query string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Response{}, nil
	}
	body, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, err
	}

	var out Response
	err = retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return retry.Permanent(fmt.Errorf("tavily decode: %w", err))
		}
		return nil
	}, func(err error, wait time.Duration) {
		c.log.Warn("Search retrying", "sleep", wait.String(), "error", err.Error())
	})
	if err != nil {
		return nil, err
	}
	out.Query = query
	return &out, nil
}
