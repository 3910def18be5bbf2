package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// ErrAudioNotFound is a 404/410 on the audio URL. It is never retried.
var ErrAudioNotFound = errors.New("audio url not found")

// AudioFetcher checks and downloads episode audio.
type AudioFetcher interface {
	Head(ctx context.Context, url string) error
	Download(ctx context.Context, url string, dst string) (int64, error)
}

type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

type httpFetcher struct {
	log      *logger.Logger
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(log *logger.Logger, cfg FetcherConfig) AudioFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 30
	}
	return &httpFetcher{
		log:      log.With("service", "AudioFetcher"),
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
	}
}

func (f *httpFetcher) Head(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	httpx.ApplyProfile(req, httpx.BrowserProfile)
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	httpx.DrainAndClose(resp.Body)
	return classifyStatus(resp.StatusCode, "")
}

func (f *httpFetcher) Download(ctx context.Context, url string, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	httpx.ApplyProfile(req, httpx.BrowserProfile)
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer httpx.DrainAndClose(resp.Body)
	if resp.StatusCode >= 400 {
		return 0, classifyStatus(resp.StatusCode, readSnippet(resp.Body))
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	closeErr := out.Close()
	if copyErr != nil {
		return n, fmt.Errorf("download body: %w", copyErr)
	}
	if closeErr != nil {
		return n, closeErr
	}
	if n > f.maxBytes {
		return n, fmt.Errorf("audio exceeds %d bytes", f.maxBytes)
	}
	if n == 0 {
		return 0, fmt.Errorf("empty audio body")
	}
	f.log.Debug("Downloaded audio", "url", url, "bytes", n)
	return n, nil
}

func classifyStatus(code int, body string) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: http %d", ErrAudioNotFound, code)
	case code >= 400:
		return &httpx.StatusError{StatusCode: code, Body: body}
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
