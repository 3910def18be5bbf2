package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func TestSearchFlattensResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.APIKey != "key" || req.Query != "Tech Talk podcast host" {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer": "Tech Talk is hosted by Jane Doe.",
			"results": []any{
				map[string]any{"title": "About", "url": "https://techtalk.fm/about", "content": "Jane Doe hosts."},
			},
		})
	}))
	defer srv.Close()

	s, err := New(logger.Nop(), Config{APIKey: "key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Search(context.Background(), " Tech Talk podcast host ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	text := resp.Text()
	for _, want := range []string{"Jane Doe", "https://techtalk.fm/about"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text missing %q: %s", want, text)
		}
	}
}

func TestSearchBlankQueryIsNoop(t *testing.T) {
	s, err := New(logger.Nop(), Config{APIKey: "key", BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Search(context.Background(), "  ")
	if err != nil || resp.Text() != "" {
		t.Fatalf("blank query: %v %q", err, resp.Text())
	}
}
