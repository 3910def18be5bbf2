package app

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/yungbote/podreach-backend/internal/data/db"
	"github.com/yungbote/podreach-backend/internal/jobs/worker"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
	"github.com/yungbote/podreach-backend/internal/platform/observability"
)

type App struct {
	Log      *logger.Logger
	Pools    *db.Pools
	Cfg      Config
	Repos    Repos
	Clients  *Clients
	Services Services
	Worker   *worker.Worker

	shutdownTracing func(context.Context) error
	cancel          context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	if cfg.Transcription.MemoryLimitMB > 0 {
		debug.SetMemoryLimit(cfg.Transcription.Module.MemoryLimitBytes)
		log.Info("Soft memory limit set", "limit_mb", cfg.Transcription.MemoryLimitMB)
	}

	shutdownTracing := observability.Init(ctx, log, cfg.Tracing)

	pools, err := db.NewPools(cfg.DB, log)
	if err != nil {
		_ = shutdownTracing(ctx)
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := db.AutoMigrateAll(pools.Background); err != nil {
		pools.Close()
		_ = shutdownTracing(ctx)
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	reposet := wireRepos(pools, log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		pools.Close()
		_ = shutdownTracing(ctx)
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(log, cfg, reposet, clients)

	return &App{
		Log:             log,
		Pools:           pools,
		Cfg:             cfg,
		Repos:           reposet,
		Clients:         clients,
		Services:        serviceset,
		Worker:          wireWorker(log, cfg, serviceset),
		shutdownTracing: shutdownTracing,
	}, nil
}

// wireWorker passes only the components that were built; a nil pointer must not
// reach the worker as a non-nil interface.
func wireWorker(log *logger.Logger, cfg Config, s Services) *worker.Worker {
	var (
		enr worker.Enrichment
		vet worker.Vetting
		tr  worker.Transcription
	)
	if s.Orchestrator != nil {
		enr = s.Orchestrator
	}
	if s.Vetting != nil {
		vet = s.Vetting
	} else {
		log.Warn("Vetting loop disabled: no LLM client")
	}
	if s.Transcription != nil {
		tr = s.Transcription
	} else {
		log.Warn("Transcription loop disabled")
	}
	return worker.NewWorker(log, cfg.Worker, enr, vet, tr)
}

func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.Worker.Start(ctx)
}

// Close stops the loops, waits for in-flight work and releases every resource.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		a.Worker.Wait()
	}
	a.Clients.Close()
	a.Pools.Close()
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("Tracer shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
