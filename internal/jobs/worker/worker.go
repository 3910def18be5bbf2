package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/podreach-backend/internal/modules/orchestrator"
	"github.com/yungbote/podreach-backend/internal/modules/transcription"
	"github.com/yungbote/podreach-backend/internal/modules/vetting"
	"github.com/yungbote/podreach-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Enrichment interface {
	RunEnrichmentCycle(ctx context.Context, limit int) (orchestrator.CycleResult, error)
	SweepStaleEnrichment(ctx context.Context) (int64, error)
}

type Vetting interface {
	RunBatch(ctx context.Context, limit int) (vetting.BatchResult, error)
	SweepStaleLocks(ctx context.Context) (int64, error)
}

type Transcription interface {
	TranscribePending(ctx context.Context, limit int) (*transcription.BatchResult, error)
	RunJanitor(ctx context.Context, interval time.Duration)
}

type Config struct {
	EnrichmentInterval    time.Duration
	EnrichmentBatch       int
	VettingInterval       time.Duration
	VettingBatch          int
	SweepInterval         time.Duration
	TranscriptionInterval time.Duration
	TranscriptionBatch    int
	JanitorInterval       time.Duration
	// FatalBackoff pauses a loop after a fatal error such as missing credentials.
	FatalBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnrichmentInterval:    30 * time.Second,
		EnrichmentBatch:       10,
		VettingInterval:       15 * time.Second,
		VettingBatch:          10,
		SweepInterval:         30 * time.Minute,
		TranscriptionInterval: time.Minute,
		TranscriptionBatch:    5,
		JanitorInterval:       time.Hour,
		FatalBackoff:          5 * time.Minute,
	}
}

// Worker runs the pipeline's background loops. Any component may be nil, which
// disables its loops.
type Worker struct {
	log           *logger.Logger
	cfg           Config
	enrichment    Enrichment
	vetting       Vetting
	transcription Transcription
	wg            sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, cfg Config, enrichment Enrichment, vet Vetting, tr Transcription) *Worker {
	def := DefaultConfig()
	orDur := func(v, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return v
	}
	orInt := func(v, d int) int {
		if v <= 0 {
			return d
		}
		return v
	}
	cfg.EnrichmentInterval = orDur(cfg.EnrichmentInterval, def.EnrichmentInterval)
	cfg.VettingInterval = orDur(cfg.VettingInterval, def.VettingInterval)
	cfg.SweepInterval = orDur(cfg.SweepInterval, def.SweepInterval)
	cfg.TranscriptionInterval = orDur(cfg.TranscriptionInterval, def.TranscriptionInterval)
	cfg.JanitorInterval = orDur(cfg.JanitorInterval, def.JanitorInterval)
	cfg.FatalBackoff = orDur(cfg.FatalBackoff, def.FatalBackoff)
	cfg.EnrichmentBatch = orInt(cfg.EnrichmentBatch, def.EnrichmentBatch)
	cfg.VettingBatch = orInt(cfg.VettingBatch, def.VettingBatch)
	cfg.TranscriptionBatch = orInt(cfg.TranscriptionBatch, def.TranscriptionBatch)
	return &Worker{
		log:           baseLog.With("component", "PipelineWorker"),
		cfg:           cfg,
		enrichment:    enrichment,
		vetting:       vet,
		transcription: tr,
	}
}

// Start launches every loop and returns immediately. Loops stop when ctx is done;
// Wait blocks until they have.
func (w *Worker) Start(ctx context.Context) {
	if w.enrichment != nil {
		w.loop(ctx, "enrichment", w.cfg.EnrichmentInterval, func(ctx context.Context) error {
			_, err := w.enrichment.RunEnrichmentCycle(ctx, w.cfg.EnrichmentBatch)
			return err
		})
	}
	if w.vetting != nil {
		w.loop(ctx, "vetting", w.cfg.VettingInterval, func(ctx context.Context) error {
			_, err := w.vetting.RunBatch(ctx, w.cfg.VettingBatch)
			return err
		})
	}
	if w.enrichment != nil || w.vetting != nil {
		w.loop(ctx, "stale_sweep", w.cfg.SweepInterval, w.sweep)
	}
	if w.transcription != nil {
		w.loop(ctx, "transcription", w.cfg.TranscriptionInterval, func(ctx context.Context) error {
			_, err := w.transcription.TranscribePending(ctx, w.cfg.TranscriptionBatch)
			return err
		})
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.transcription.RunJanitor(ctx, w.cfg.JanitorInterval)
		}()
	}
	w.log.Info("Pipeline worker started",
		"enrichment", w.enrichment != nil,
		"vetting", w.vetting != nil,
		"transcription", w.transcription != nil,
	)
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) sweep(ctx context.Context) error {
	if w.vetting != nil {
		n, err := w.vetting.SweepStaleLocks(ctx)
		if err != nil {
			w.log.Warn("Vetting lock sweep failed", "error", err)
		} else if n > 0 {
			w.log.Info("Reset stale vetting locks", "count", n)
		}
	}
	if w.enrichment != nil {
		n, err := w.enrichment.SweepStaleEnrichment(ctx)
		if err != nil {
			w.log.Warn("Enrichment claim sweep failed", "error", err)
		} else if n > 0 {
			w.log.Info("Reset stale enrichment claims", "count", n)
		}
	}
	return nil
}

func (w *Worker) loop(ctx context.Context, name string, every time.Duration, run func(ctx context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Worker loop stopped", "loop", name)
				return
			case <-ticker.C:
			}
			rd := &ctxutil.RunData{Loop: name, RunID: uuid.NewString()}
			err := w.runOnce(ctxutil.WithRunData(ctx, rd), name, run)
			if err == nil || ctx.Err() != nil {
				continue
			}
			if !apperr.IsFatal(err) {
				w.log.Warn("Worker loop iteration failed", "loop", name, "run_id", rd.RunID, "error", err)
				continue
			}
			w.log.Error("Worker loop hit a fatal error; backing off", "loop", name, "run_id", rd.RunID, "backoff", w.cfg.FatalBackoff.String(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.FatalBackoff):
			}
		}
	}()
}

func (w *Worker) runOnce(ctx context.Context, name string, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Worker loop panic", "loop", name, "panic", r)
			err = fmt.Errorf("panic in %s loop: %v", name, r)
		}
	}()
	return run(ctx)
}
