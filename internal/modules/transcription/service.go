package transcription

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/ctxutil"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/pkg/retry"
	"github.com/yungbote/podreach-backend/internal/platform/gcp"
	"github.com/yungbote/podreach-backend/internal/platform/localmedia"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

type EpisodeResult struct {
	EpisodeID uuid.UUID     `json:"episode_id"`
	Outcome   Outcome       `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	Chunks    int           `json:"chunks,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

type BatchResult struct {
	BatchID    uuid.UUID       `json:"batch_id"`
	Episodes   []EpisodeResult `json:"episodes"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	SubBatches int             `json:"sub_batches"`
}

func (r *BatchResult) add(er EpisodeResult) {
	r.Episodes = append(r.Episodes, er)
	switch er.Outcome {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

type Batch struct {
	ID         uuid.UUID
	EpisodeIDs []uuid.UUID
	Status     BatchStatus
	CreatedAt  time.Time
	FinishedAt *time.Time
	Result     *BatchResult
}

type Config struct {
	MaxBatchEpisodes   int
	MaxBatchDuration   time.Duration
	MaxEpisodeDuration time.Duration
	ChunkDuration      time.Duration
	ChunkConcurrency   int
	CPUWorkers         int

	Download         retry.Policy
	FailureCooldown  time.Duration
	MaxFailures      int
	FailureRetention time.Duration
	BatchRetention   time.Duration

	MemoryLimitBytes int64
	Speech           gcp.SpeechConfig
}

func DefaultConfig() Config {
	return Config{
		MaxBatchEpisodes:   5,
		MaxBatchDuration:   180 * time.Minute,
		MaxEpisodeDuration: 60 * time.Minute,
		ChunkDuration:      58 * time.Minute,
		ChunkConcurrency:   2,
		CPUWorkers:         runtime.GOMAXPROCS(0),
		Download:           retry.DownloadPolicy,
		FailureCooldown:    24 * time.Hour,
		MaxFailures:        3,
		FailureRetention:   7 * 24 * time.Hour,
		BatchRetention:     24 * time.Hour,
		Speech:             DefaultSpeechConfig(),
	}
}

func DefaultSpeechConfig() gcp.SpeechConfig {
	return gcp.SpeechConfig{
		LanguageCode:               "en-US",
		Model:                      "latest_long",
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		EnableSpeakerDiarization:   true,
		MinSpeakerCount:            1,
		MaxSpeakerCount:            4,
		SampleRateHertz:            16000,
		AudioChannelCount:          1,
	}
}

type EpisodeStore interface {
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Episode, error)
	ListPendingTranscription(dbc dbctx.Context, limit int) ([]*types.Episode, error)
	MarkTranscribed(dbc dbctx.Context, id uuid.UUID, transcript string) error
	MarkAudioFailure(dbc dbctx.Context, id uuid.UUID, status string, reason string) error
}

// Transcriber is satisfied by gcp.Speech.
type Transcriber interface {
	TranscribeFile(ctx context.Context, localPath string, cfg gcp.SpeechConfig) (*gcp.SpeechResult, error)
}

// MediaTools is the part of localmedia.Tools used here.
type MediaTools interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	SplitAudio(ctx context.Context, inPath string, outDir string, chunk time.Duration, opts localmedia.AudioOptions) ([]localmedia.Chunk, error)
	WorkDir(prefix string) (string, func(), error)
}

type Deps struct {
	Log         *logger.Logger
	Episodes    EpisodeStore
	Fetcher     AudioFetcher
	Transcriber Transcriber
	Tools       MediaTools
	// Pressure reports memory in use as a fraction of the limit. Defaults to HeapPressure.
	Pressure func() float64
	Now      func() time.Time
}

type Service struct {
	log   *logger.Logger
	cfg   Config
	d     Deps
	cache *FailureCache
	cpu   *semaphore.Weighted

	mu      sync.Mutex
	batches map[uuid.UUID]*Batch
}

func NewService(deps Deps, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.MaxBatchEpisodes <= 0 {
		cfg.MaxBatchEpisodes = def.MaxBatchEpisodes
	}
	if cfg.MaxBatchDuration <= 0 {
		cfg.MaxBatchDuration = def.MaxBatchDuration
	}
	if cfg.MaxEpisodeDuration <= 0 {
		cfg.MaxEpisodeDuration = def.MaxEpisodeDuration
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = def.ChunkDuration
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = def.ChunkConcurrency
	}
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = def.CPUWorkers
	}
	if cfg.Download.Initial <= 0 {
		cfg.Download = def.Download
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = def.FailureCooldown
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.FailureRetention <= 0 {
		cfg.FailureRetention = def.FailureRetention
	}
	if cfg.BatchRetention <= 0 {
		cfg.BatchRetention = def.BatchRetention
	}
	if cfg.Speech.LanguageCode == "" {
		cfg.Speech = def.Speech
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Pressure == nil {
		deps.Pressure = HeapPressure(cfg.MemoryLimitBytes)
	}
	return &Service{
		log:     deps.Log.With("service", "TranscriptionService"),
		cfg:     cfg,
		d:       deps,
		cache:   NewFailureCache(cfg.FailureCooldown, cfg.MaxFailures, deps.Now),
		cpu:     semaphore.NewWeighted(int64(cfg.CPUWorkers)),
		batches: map[uuid.UUID]*Batch{},
	}
}

func (s *Service) FailureCache() *FailureCache { return s.cache }

// CreateBatch registers the episodes for processing and returns the batch id.
func (s *Service) CreateBatch(ctx context.Context, episodeIDs []uuid.UUID) (uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(episodeIDs))
	for _, id := range episodeIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return uuid.Nil, fmt.Errorf("create batch: no episode ids: %w", apperr.ErrInvalidArgument)
	}
	b := &Batch{ID: uuid.New(), EpisodeIDs: ids, Status: BatchPending, CreatedAt: s.d.Now()}
	s.mu.Lock()
	s.batches[b.ID] = b
	s.mu.Unlock()
	s.log.Debug("Transcription batch created", "batch_id", b.ID, "episodes", len(ids))
	return b.ID, nil
}

// Batch returns a snapshot of a tracked batch.
func (s *Service) Batch(id uuid.UUID) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	if b == nil {
		return Batch{}, false
	}
	return *b, true
}

// ProcessBatch runs the batch's episodes in sequential sub-batches. Episodes in a
// sub-batch run concurrently and each records its own outcome. Cancelling ctx
// stops scheduling further sub-batches.
func (s *Service) ProcessBatch(ctx context.Context, batchID uuid.UUID) (*BatchResult, error) {
	s.mu.Lock()
	b := s.batches[batchID]
	if b == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("batch %s: %w", batchID, apperr.ErrNotFound)
	}
	if b.Status == BatchProcessing {
		s.mu.Unlock()
		return nil, fmt.Errorf("batch %s is already processing", batchID)
	}
	b.Status = BatchProcessing
	ids := append([]uuid.UUID(nil), b.EpisodeIDs...)
	s.mu.Unlock()

	res := &BatchResult{BatchID: batchID}
	episodes, err := s.d.Episodes.GetByIDs(dbctx.New(ctx), ids)
	if err != nil {
		s.setStatus(batchID, BatchPending, nil)
		return nil, fmt.Errorf("load episodes: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Episode, len(episodes))
	for _, e := range episodes {
		byID[e.ID] = e
	}

	var queue []*types.Episode
	for _, id := range ids {
		e := byID[id]
		switch {
		case e == nil:
			res.add(EpisodeResult{EpisodeID: id, Outcome: OutcomeSkipped, Reason: "episode not found"})
		case e.HasTranscript():
			res.add(EpisodeResult{EpisodeID: id, Outcome: OutcomeSkipped, Reason: "already transcribed"})
		case e.DurationSec > 0 && e.Duration() > s.cfg.MaxEpisodeDuration:
			res.add(EpisodeResult{EpisodeID: id, Outcome: OutcomeSkipped, Reason: "exceeds max episode duration"})
		default:
			queue = append(queue, e)
		}
	}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			for _, e := range queue {
				res.add(EpisodeResult{EpisodeID: e.ID, Outcome: OutcomeSkipped, Reason: "batch cancelled"})
			}
			break
		}
		size := EffectiveBatchSize(s.cfg.MaxBatchEpisodes, s.d.Pressure())
		var sub []*types.Episode
		sub, queue = nextSubBatch(queue, size, s.cfg.MaxBatchDuration)
		res.SubBatches++
		for _, r := range s.processSubBatch(ctx, batchID, res.SubBatches, sub) {
			res.add(r)
		}
	}

	s.setStatus(batchID, BatchCompleted, res)
	s.log.With(ctxutil.LogFields(ctx)...).Info("Transcription batch finished",
		"batch_id", batchID,
		"completed", res.Completed,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"sub_batches", res.SubBatches,
	)
	return res, nil
}

func (s *Service) setStatus(id uuid.UUID, st BatchStatus, res *BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	if b == nil {
		return
	}
	b.Status = st
	if res != nil {
		b.Result = res
		now := s.d.Now()
		b.FinishedAt = &now
	}
}

func (s *Service) processSubBatch(ctx context.Context, batchID uuid.UUID, n int, sub []*types.Episode) []EpisodeResult {
	ctx, span := otel.Tracer("podreach/transcription").Start(ctx, "transcription.sub_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch_id", batchID.String()),
		attribute.Int("sub_batch", n),
		attribute.Int("episodes", len(sub)),
	)

	results := make([]EpisodeResult, len(sub))
	var wg sync.WaitGroup
	for i, e := range sub {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("Episode transcription panicked", "batch_id", batchID, "episode_id", e.ID, "panic", r)
					results[i] = EpisodeResult{EpisodeID: e.ID, Outcome: OutcomeFailed, Reason: fmt.Sprintf("panic: %v", r)}
				}
			}()
			results[i] = s.processEpisode(ctx, e)
		}()
	}
	wg.Wait()
	return results
}

func (s *Service) processEpisode(ctx context.Context, e *types.Episode) EpisodeResult {
	start := s.d.Now()
	res := EpisodeResult{EpisodeID: e.ID}
	done := func(o Outcome, reason string) EpisodeResult {
		res.Outcome, res.Reason, res.Elapsed = o, reason, s.d.Now().Sub(start)
		return res
	}

	url := strings.TrimSpace(e.AudioURL)
	if url == "" {
		return done(OutcomeSkipped, "no audio url")
	}
	s.seedFromRow(e, url)
	if skip, why := s.cache.ShouldSkip(url); skip {
		s.log.Debug("Skipping cached audio failure", "episode_id", e.ID, "reason", why)
		return done(OutcomeSkipped, why)
	}

	dir, cleanup, err := s.d.Tools.WorkDir("ep-" + e.ID.String()[:8])
	if err != nil {
		return done(OutcomeFailed, "workdir: "+err.Error())
	}
	defer cleanup()

	if err := s.d.Fetcher.Head(ctx, url); err != nil {
		if errors.Is(err, ErrAudioNotFound) {
			return done(OutcomeFailed, s.recordFailure(ctx, e, url, true, err))
		}
		// Plenty of hosts reject HEAD; the GET decides.
		s.log.Debug("HEAD check failed; trying GET", "episode_id", e.ID, "error", err)
	}

	src := filepath.Join(dir, "source"+audioExt(url))
	err = retry.Do(ctx, s.cfg.Download, func() error {
		_, err := s.d.Fetcher.Download(ctx, url, src)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAudioNotFound), ctx.Err() != nil:
			return retry.Permanent(err)
		}
		var sc httpx.HTTPStatusCoder
		if errors.As(err, &sc) {
			return err
		}
		return retry.Transient(err)
	}, func(err error, wait time.Duration) {
		s.log.Warn("Audio download retrying", "episode_id", e.ID, "wait", wait.String(), "error", err)
	})
	if err != nil {
		return done(OutcomeFailed, s.recordFailure(ctx, e, url, errors.Is(err, ErrAudioNotFound), err))
	}

	dur, err := s.d.Tools.ProbeDuration(ctx, src)
	if err != nil {
		return done(OutcomeFailed, s.recordFailure(ctx, e, url, false, fmt.Errorf("unreadable audio: %w", err)))
	}
	if dur > s.cfg.MaxEpisodeDuration {
		return done(OutcomeSkipped, fmt.Sprintf("exceeds max episode duration (%s)", dur.Round(time.Second)))
	}

	transcript, chunks, err := s.transcribe(ctx, e, src, filepath.Join(dir, "chunks"))
	res.Chunks = chunks
	if err != nil {
		return done(OutcomeFailed, s.recordFailure(ctx, e, url, false, err))
	}
	if err := s.d.Episodes.MarkTranscribed(dbctx.New(ctx), e.ID, transcript); err != nil {
		return done(OutcomeFailed, "save transcript: "+err.Error())
	}
	s.cache.RecordSuccess(url)
	return done(OutcomeCompleted, "")
}

// transcribe converts and splits the audio on the CPU pool, then recognizes the
// chunks concurrently. A failed chunk leaves a gap; all chunks failing is an error.
func (s *Service) transcribe(ctx context.Context, e *types.Episode, src, chunkDir string) (string, int, error) {
	if err := s.cpu.Acquire(ctx, 1); err != nil {
		return "", 0, err
	}
	chunks, err := s.d.Tools.SplitAudio(ctx, src, chunkDir, s.cfg.ChunkDuration, localmedia.AudioOptions{})
	s.cpu.Release(1)
	if err != nil {
		return "", 0, fmt.Errorf("split audio: %w", err)
	}
	if len(chunks) > 1 {
		s.log.Info("Split long episode", "episode_id", e.ID, "chunks", len(chunks))
	}

	outs := make([]chunkTranscript, len(chunks))
	var g errgroup.Group
	g.SetLimit(s.cfg.ChunkConcurrency)
	for i, c := range chunks {
		outs[i] = chunkTranscript{Index: c.Index, Offset: c.Offset}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outs[i].Err = fmt.Errorf("panic: %v", r)
				}
			}()
			r, err := s.d.Transcriber.TranscribeFile(ctx, c.Path, s.cfg.Speech)
			outs[i].Result, outs[i].Err = r, err
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	failed := 0
	for _, o := range outs {
		if o.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.Err
			}
			s.log.Warn("Chunk transcription failed", "episode_id", e.ID, "chunk", o.Index, "error", o.Err)
		}
	}
	if failed == len(outs) {
		return "", len(chunks), fmt.Errorf("transcription failed for all %d chunks: %w", len(outs), firstErr)
	}
	transcript := Assemble(outs)
	if strings.TrimSpace(transcript) == "" {
		return "", len(chunks), errors.New("empty transcript")
	}
	return transcript, len(chunks), nil
}

func (s *Service) recordFailure(ctx context.Context, e *types.Episode, url string, permanent bool, err error) string {
	reason := err.Error()
	status := types.AudioURLFailedTemp
	if permanent {
		status = types.AudioURLFailed404
	}
	s.cache.RecordFailure(url, permanent, reason)
	if dbErr := s.d.Episodes.MarkAudioFailure(dbctx.New(ctx), e.ID, status, reason); dbErr != nil {
		s.log.Error("Recording audio failure failed", "episode_id", e.ID, "error", dbErr)
	}
	s.log.Warn("Episode transcription failed", "episode_id", e.ID, "permanent", permanent, "error", reason)
	return reason
}

// seedFromRow folds failure state persisted by any worker into the local cache.
func (s *Service) seedFromRow(e *types.Episode, url string) {
	var last time.Time
	if e.AudioURLLastFailureAt != nil {
		last = *e.AudioURLLastFailureAt
	}
	reason := ""
	if e.TranscriptionError != nil {
		reason = *e.TranscriptionError
	}
	s.cache.Seed(url, e.AudioURLFailureCount, e.AudioURLStatus == types.AudioURLFailed404, last, reason)
}

func audioExt(url string) string {
	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch ext := strings.ToLower(path.Ext(u)); ext {
	case ".mp3", ".m4a", ".aac", ".wav", ".flac", ".ogg", ".opus", ".mp4":
		return ext
	}
	return ".audio"
}

// TranscribePending batches up to limit episodes flagged for transcription.
func (s *Service) TranscribePending(ctx context.Context, limit int) (*BatchResult, error) {
	eps, err := s.d.Episodes.ListPendingTranscription(dbctx.New(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending episodes: %w", err)
	}
	if len(eps) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(eps))
	for i, e := range eps {
		ids[i] = e.ID
	}
	batchID, err := s.CreateBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.ProcessBatch(ctx, batchID)
}

// Janitor prunes batch tracking older than the batch retention and failure cache
// entries older than the failure retention.
func (s *Service) Janitor() (batches int, failures int) {
	cutoff := s.d.Now().Add(-s.cfg.BatchRetention)
	s.mu.Lock()
	for id, b := range s.batches {
		if b.Status != BatchProcessing && b.CreatedAt.Before(cutoff) {
			delete(s.batches, id)
			batches++
		}
	}
	s.mu.Unlock()
	failures = s.cache.Prune(s.cfg.FailureRetention)
	return batches, failures
}

// RunJanitor calls Janitor every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b, f := s.Janitor()
			if b > 0 || f > 0 {
				s.log.Info("Transcription janitor pruned state", "batches", b, "failure_entries", f)
			}
		}
	}
}
