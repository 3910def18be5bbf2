package gcp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type StagingMode string

const (
	StagingModeDisabled    StagingMode = "disabled"
	StagingModeGCS         StagingMode = "gcs"
	StagingModeGCSEmulator StagingMode = "gcs_emulator"
)

// StagingConfig controls where audio too large for inline recognition is uploaded.
type StagingConfig struct {
	Mode         StagingMode
	Bucket       string
	Prefix       string
	EmulatorHost string
	Credentials  string
}

type StagingConfigErrorCode string

const (
	StagingConfigErrorInvalidMode         StagingConfigErrorCode = "invalid_mode"
	StagingConfigErrorMissingBucket       StagingConfigErrorCode = "missing_bucket"
	StagingConfigErrorMissingEmulatorHost StagingConfigErrorCode = "missing_emulator_host"
	StagingConfigErrorInvalidEmulatorHost StagingConfigErrorCode = "invalid_emulator_host"
)

type StagingConfigError struct {
	Code         StagingConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StagingConfigError) Error() string {
	if e == nil {
		return "invalid audio staging config"
	}
	switch e.Code {
	case StagingConfigErrorInvalidMode:
		return fmt.Sprintf("invalid TRANSCRIPTION_STAGING_MODE=%q (allowed: %q, %q, %q)",
			e.Mode, StagingModeDisabled, StagingModeGCS, StagingModeGCSEmulator)
	case StagingConfigErrorMissingBucket:
		return fmt.Sprintf("TRANSCRIPTION_STAGING_MODE=%q requires TRANSCRIPTION_STAGING_BUCKET", e.Mode)
	case StagingConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("TRANSCRIPTION_STAGING_MODE=%q requires STORAGE_EMULATOR_HOST", StagingModeGCSEmulator)
	case StagingConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	}
	return "invalid audio staging config"
}

func (e *StagingConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveStagingConfig picks the mode. An empty mode means gcs when a bucket is
// set (gcs_emulator if an emulator host is also set) and disabled otherwise.
func ResolveStagingConfig(rawMode, bucket, emulatorHost string) (StagingConfig, error) {
	cfg := StagingConfig{
		Bucket:       strings.TrimSpace(bucket),
		EmulatorHost: strings.TrimRight(strings.TrimSpace(emulatorHost), "/"),
		Prefix:       "transcription-staging",
	}
	mode := StagingMode(strings.ToLower(strings.TrimSpace(rawMode)))
	switch mode {
	case "":
		switch {
		case cfg.Bucket == "":
			cfg.Mode = StagingModeDisabled
		case cfg.EmulatorHost != "":
			cfg.Mode = StagingModeGCSEmulator
		default:
			cfg.Mode = StagingModeGCS
		}
	case StagingModeDisabled, StagingModeGCS, StagingModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &StagingConfigError{Code: StagingConfigErrorInvalidMode, Mode: rawMode}
	}
	return cfg, ValidateStagingConfig(cfg)
}

func ValidateStagingConfig(cfg StagingConfig) error {
	switch cfg.Mode {
	case StagingModeDisabled:
		return nil
	case StagingModeGCS, StagingModeGCSEmulator:
	default:
		return &StagingConfigError{Code: StagingConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	if cfg.Bucket == "" {
		return &StagingConfigError{Code: StagingConfigErrorMissingBucket, Mode: string(cfg.Mode)}
	}
	if cfg.Mode != StagingModeGCSEmulator {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return &StagingConfigError{Code: StagingConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &StagingConfigError{
			Code:         StagingConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
	}
	return nil
}

// AudioStaging uploads local audio to a bucket so Speech can read it by gs:// URI.
type AudioStaging interface {
	Stage(ctx context.Context, key string, localPath string) (string, error)
	Remove(ctx context.Context, key string) error
	Close() error
}

type audioStaging struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

// NewAudioStaging returns nil, nil when staging is disabled.
func NewAudioStaging(ctx context.Context, log *logger.Logger, cfg StagingConfig) (AudioStaging, error) {
	if err := ValidateStagingConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Mode == StagingModeDisabled {
		return nil, nil
	}
	var opts []option.ClientOption
	if cfg.Mode == StagingModeGCSEmulator {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(ClientOptions(cfg.Credentials), option.WithScopes(storage.ScopeReadWrite))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	slog := log.With("service", "AudioStaging")
	slog.Info("Audio staging initialized", "mode", cfg.Mode, "bucket", cfg.Bucket)
	return &audioStaging{log: slog, client: c, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *audioStaging) objectName(key string) string {
	return path.Join(s.prefix, strings.TrimLeft(key, "/"))
}

func (s *audioStaging) Stage(ctx context.Context, key string, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	name := s.objectName(key)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentTypeForAudio(localPath)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write staged audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close staged audio: %w", err)
	}
	return "gs://" + s.bucket + "/" + name, nil
}

func (s *audioStaging) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("delete staged audio: %w", err)
	}
	return nil
}

func (s *audioStaging) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func contentTypeForAudio(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	}
	return "application/octet-stream"
}
