package app

import (
	"time"

	"github.com/yungbote/podreach-backend/internal/data/db"
	"github.com/yungbote/podreach-backend/internal/jobs/worker"
	"github.com/yungbote/podreach-backend/internal/modules/enrichment"
	"github.com/yungbote/podreach-backend/internal/modules/hosts"
	"github.com/yungbote/podreach-backend/internal/modules/orchestrator"
	"github.com/yungbote/podreach-backend/internal/modules/quality"
	"github.com/yungbote/podreach-backend/internal/modules/transcription"
	"github.com/yungbote/podreach-backend/internal/modules/vetting"
	"github.com/yungbote/podreach-backend/internal/platform/envutil"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
	"github.com/yungbote/podreach-backend/internal/platform/observability"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VetModel    string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
}

type SearchConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

type PodcastAPIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type GCPConfig struct {
	Credentials     string
	StagingMode     string
	StagingBucket   string
	StagingEmulator string
}

type TranscriptionConfig struct {
	Enabled       bool
	MemoryLimitMB int
	WorkRoot      string
	FetchTimeout  time.Duration
	FetchMaxBytes int64
	Module        transcription.Config
}

type Config struct {
	Env      string
	LogMode  string
	Version  string
	DB       db.Config
	Tracing  observability.Config
	OpenAI   OpenAIConfig
	Search   SearchConfig
	Podcasts PodcastAPIConfig
	Redis    RedisConfig
	GCP      GCPConfig

	ScrapeTimeout  time.Duration
	ScrapeMaxBytes int64
	FeedTimeout    time.Duration

	Enrichment    enrichment.Config
	Hosts         hosts.Config
	Quality       quality.Config
	Vetting       vetting.Config
	Orchestrator  orchestrator.Config
	Transcription TranscriptionConfig
	Worker        worker.Config
}

func LoadConfig(log *logger.Logger) Config {
	env := envutil.String("APP_ENV", "development", log)

	interactive := db.DefaultInteractiveProfile()
	interactive.MaxOpenConns = envutil.Int("DB_INTERACTIVE_MAX_OPEN", interactive.MaxOpenConns, log)
	interactive.StatementTimeout = envutil.Duration("DB_INTERACTIVE_STATEMENT_TIMEOUT", interactive.StatementTimeout, log)
	background := db.DefaultBackgroundProfile()
	background.MaxOpenConns = envutil.Int("DB_BACKGROUND_MAX_OPEN", background.MaxOpenConns, log)
	background.StatementTimeout = envutil.Duration("DB_BACKGROUND_STATEMENT_TIMEOUT", background.StatementTimeout, log)

	tr := transcription.DefaultConfig()
	tr.MaxBatchEpisodes = envutil.Int("TRANSCRIPTION_MAX_BATCH_EPISODES", tr.MaxBatchEpisodes, log)
	tr.MaxBatchDuration = envutil.Duration("TRANSCRIPTION_MAX_BATCH_DURATION", tr.MaxBatchDuration, log)
	tr.MaxEpisodeDuration = envutil.Duration("TRANSCRIPTION_MAX_EPISODE_DURATION", tr.MaxEpisodeDuration, log)
	tr.ChunkDuration = envutil.Duration("TRANSCRIPTION_CHUNK_DURATION", tr.ChunkDuration, log)
	tr.ChunkConcurrency = envutil.Int("TRANSCRIPTION_CHUNK_CONCURRENCY", tr.ChunkConcurrency, log)
	tr.Download.Initial = envutil.Duration("TRANSCRIPTION_RETRY_INITIAL", tr.Download.Initial, log)
	tr.Download.Max = envutil.Duration("TRANSCRIPTION_RETRY_MAX", tr.Download.Max, log)
	// Retries after the first download call.
	tr.Download.Attempts = envutil.Int("TRANSCRIPTION_DOWNLOAD_RETRIES", tr.Download.Attempts, log)
	tr.FailureCooldown = envutil.Duration("TRANSCRIPTION_FAILURE_COOLDOWN", tr.FailureCooldown, log)
	tr.MaxFailures = envutil.Int("TRANSCRIPTION_MAX_FAILURES", tr.MaxFailures, log)
	tr.FailureRetention = envutil.Duration("TRANSCRIPTION_FAILURE_RETENTION", tr.FailureRetention, log)
	tr.Speech.LanguageCode = envutil.String("TRANSCRIPTION_LANGUAGE", tr.Speech.LanguageCode, log)
	tr.Speech.Model = envutil.String("TRANSCRIPTION_SPEECH_MODEL", tr.Speech.Model, log)
	memMB := envutil.Int("TRANSCRIPTION_MEMORY_LIMIT_MB", 0, log)
	tr.MemoryLimitBytes = int64(memMB) << 20

	enr := enrichment.DefaultConfig()
	enr.KeepEpisodes = envutil.Int("ENRICHMENT_KEEP_EPISODES", enr.KeepEpisodes, log)
	enr.TranscribeNewest = envutil.Int("ENRICHMENT_TRANSCRIBE_NEWEST", enr.TranscribeNewest, log)
	enr.SearchConcurrency = envutil.Int("ENRICHMENT_SEARCH_CONCURRENCY", enr.SearchConcurrency, log)

	hv := hosts.DefaultConfig()
	hv.SimilarityThreshold = envutil.Float("HOST_SIMILARITY_THRESHOLD", hv.SimilarityThreshold, log)
	hv.ConfidenceThreshold = envutil.Float("HOST_CONFIDENCE_THRESHOLD", hv.ConfidenceThreshold, log)
	hv.ReverifyAfter = envutil.Duration("HOST_REVERIFY_AFTER", hv.ReverifyAfter, log)

	q := quality.DefaultConfig()
	q.MinTranscribed = envutil.Int("QUALITY_MIN_TRANSCRIBED", q.MinTranscribed, log)

	vet := vetting.DefaultConfig()
	vet.MatchThreshold = envutil.Float("VETTING_MATCH_THRESHOLD", vet.MatchThreshold, log)
	vet.HostConfidenceThreshold = hv.ConfidenceThreshold
	vet.StaleAfter = envutil.Duration("VETTING_STALE_AFTER", vet.StaleAfter, log)
	vet.Concurrency = envutil.Int("VETTING_CONCURRENCY", vet.Concurrency, log)

	orch := orchestrator.DefaultConfig()
	orch.Concurrency = envutil.Int("ENRICHMENT_CONCURRENCY", orch.Concurrency, log)
	orch.StaleAfter = envutil.Duration("ENRICHMENT_STALE_AFTER", orch.StaleAfter, log)

	wk := worker.DefaultConfig()
	wk.EnrichmentInterval = envutil.Duration("WORKER_ENRICHMENT_INTERVAL", wk.EnrichmentInterval, log)
	wk.EnrichmentBatch = envutil.Int("WORKER_ENRICHMENT_BATCH", wk.EnrichmentBatch, log)
	wk.VettingInterval = envutil.Duration("WORKER_VETTING_INTERVAL", wk.VettingInterval, log)
	wk.VettingBatch = envutil.Int("WORKER_VETTING_BATCH", wk.VettingBatch, log)
	wk.SweepInterval = envutil.Duration("WORKER_SWEEP_INTERVAL", wk.SweepInterval, log)
	wk.TranscriptionInterval = envutil.Duration("WORKER_TRANSCRIPTION_INTERVAL", wk.TranscriptionInterval, log)
	wk.TranscriptionBatch = envutil.Int("WORKER_TRANSCRIPTION_BATCH", tr.MaxBatchEpisodes, log)
	wk.JanitorInterval = envutil.Duration("WORKER_JANITOR_INTERVAL", wk.JanitorInterval, log)
	wk.FatalBackoff = envutil.Duration("WORKER_FATAL_BACKOFF", wk.FatalBackoff, log)

	return Config{
		Env:     env,
		LogMode: envutil.String("LOG_MODE", "development", log),
		Version: envutil.String("APP_VERSION", "dev", log),
		DB: db.Config{
			Host:        envutil.String("POSTGRES_HOST", "localhost", log),
			Port:        envutil.String("POSTGRES_PORT", "5432", log),
			User:        envutil.String("POSTGRES_USER", "postgres", log),
			Password:    envutil.String("POSTGRES_PASSWORD", "", log),
			Name:        envutil.String("POSTGRES_NAME", "podreach", log),
			SSLMode:     envutil.String("POSTGRES_SSLMODE", "disable", log),
			DSN:         envutil.String("DATABASE_URL", "", log),
			Interactive: interactive,
			Background:  background,
		},
		Tracing: observability.Config{
			Enabled:     envutil.Bool("OTEL_ENABLED", false, log),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "podreach-worker", log),
			Environment: env,
			Version:     envutil.String("APP_VERSION", "dev", log),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Headers:     envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", log),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
			SampleRatio: envutil.Float("OTEL_SAMPLE_RATIO", 1, log),
		},
		OpenAI: OpenAIConfig{
			APIKey:      envutil.String("OPENAI_API_KEY", "", log),
			BaseURL:     envutil.String("OPENAI_BASE_URL", "https://api.openai.com/v1", log),
			Model:       envutil.String("OPENAI_MODEL", "gpt-4o-mini", log),
			VetModel:    envutil.String("OPENAI_VETTING_MODEL", "", log),
			Timeout:     envutil.Duration("OPENAI_TIMEOUT", 90*time.Second, log),
			MaxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 4, log),
			Temperature: envutil.Float("OPENAI_TEMPERATURE", 0.2, log),
		},
		Search: SearchConfig{
			APIKey:     envutil.String("TAVILY_API_KEY", "", log),
			BaseURL:    envutil.String("TAVILY_BASE_URL", "https://api.tavily.com", log),
			MaxResults: envutil.Int("TAVILY_MAX_RESULTS", 5, log),
			Timeout:    envutil.Duration("TAVILY_TIMEOUT", 30*time.Second, log),
		},
		Podcasts: PodcastAPIConfig{
			APIKey:  envutil.String("LISTENNOTES_API_KEY", "", log),
			BaseURL: envutil.String("LISTENNOTES_BASE_URL", "https://listen-api.listennotes.com/api/v2", log),
			Timeout: envutil.Duration("LISTENNOTES_TIMEOUT", 20*time.Second, log),
		},
		Redis: RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", "", log),
			Password: envutil.String("REDIS_PASSWORD", "", log),
			DB:       envutil.Int("REDIS_DB", 0, log),
			Channel:  envutil.String("REDIS_EVENTS_CHANNEL", "podreach.pipeline", log),
		},
		GCP: GCPConfig{
			Credentials:     envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", log),
			StagingMode:     envutil.String("TRANSCRIPTION_STAGING_MODE", "disabled", log),
			StagingBucket:   envutil.String("TRANSCRIPTION_STAGING_BUCKET", "", log),
			StagingEmulator: envutil.String("STORAGE_EMULATOR_HOST", "", log),
		},
		ScrapeTimeout:  envutil.Duration("SOCIAL_SCRAPE_TIMEOUT", 20*time.Second, log),
		ScrapeMaxBytes: int64(envutil.Int("SOCIAL_SCRAPE_MAX_BYTES", 2<<20, log)),
		FeedTimeout:    envutil.Duration("RSS_FETCH_TIMEOUT", 30*time.Second, log),

		Enrichment:   enr,
		Hosts:        hv,
		Quality:      q,
		Vetting:      vet,
		Orchestrator: orch,
		Transcription: TranscriptionConfig{
			Enabled:       envutil.Bool("TRANSCRIPTION_ENABLED", true, log),
			MemoryLimitMB: memMB,
			WorkRoot:      envutil.String("TRANSCRIPTION_WORK_ROOT", "", log),
			FetchTimeout:  envutil.Duration("TRANSCRIPTION_FETCH_TIMEOUT", 10*time.Minute, log),
			FetchMaxBytes: int64(envutil.Int("TRANSCRIPTION_FETCH_MAX_MB", 500, log)) << 20,
			Module:        tr,
		},
		Worker: wk,
	}
}
