package transcription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func audioServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp3":
			_, _ = w.Write([]byte(strings.Repeat("a", 64)))
		case "/gone.mp3":
			w.WriteHeader(http.StatusGone)
		case "/missing.mp3":
			http.NotFound(w, r)
		case "/empty.mp3":
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "upstream exploded", http.StatusBadGateway)
		}
	}))
}

func TestFetcherHead(t *testing.T) {
	srv := audioServer()
	defer srv.Close()
	f := NewHTTPFetcher(logger.Nop(), FetcherConfig{})

	if err := f.Head(context.Background(), srv.URL+"/ok.mp3"); err != nil {
		t.Fatalf("head ok: %v", err)
	}
	for _, p := range []string{"/missing.mp3", "/gone.mp3"} {
		if err := f.Head(context.Background(), srv.URL+p); !errors.Is(err, ErrAudioNotFound) {
			t.Fatalf("head %s: %v", p, err)
		}
	}
}

func TestFetcherDownload(t *testing.T) {
	srv := audioServer()
	defer srv.Close()
	dir := t.TempDir()
	f := NewHTTPFetcher(logger.Nop(), FetcherConfig{MaxBytes: 100})

	dst := filepath.Join(dir, "ok.mp3")
	n, err := f.Download(context.Background(), srv.URL+"/ok.mp3", dst)
	if err != nil || n != 64 {
		t.Fatalf("download: n=%d err=%v", n, err)
	}
	if b, _ := os.ReadFile(dst); len(b) != 64 {
		t.Fatalf("file size %d", len(b))
	}

	_, err = f.Download(context.Background(), srv.URL+"/boom.mp3", filepath.Join(dir, "boom"))
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway || !strings.Contains(se.Body, "exploded") {
		t.Fatalf("expected 502 status error, got %v", err)
	}
	if !httpx.IsRetryableError(err) {
		t.Fatalf("502 should be retryable")
	}

	if _, err := f.Download(context.Background(), srv.URL+"/missing.mp3", filepath.Join(dir, "m")); !errors.Is(err, ErrAudioNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.Download(context.Background(), srv.URL+"/empty.mp3", filepath.Join(dir, "e")); err == nil {
		t.Fatalf("empty body should error")
	}

	small := NewHTTPFetcher(logger.Nop(), FetcherConfig{MaxBytes: 10})
	if _, err := small.Download(context.Background(), srv.URL+"/ok.mp3", filepath.Join(dir, "big")); err == nil {
		t.Fatalf("oversized body should error")
	}
}
