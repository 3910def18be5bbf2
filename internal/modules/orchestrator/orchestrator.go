package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/modules/hosts"
	"github.com/yungbote/podreach-backend/internal/modules/quality"
	"github.com/yungbote/podreach-backend/internal/pkg/ctxutil"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/eventbus"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Config struct {
	Concurrency int
	StaleAfter  time.Duration
}

func DefaultConfig() Config {
	return Config{Concurrency: 3, StaleAfter: 30 * time.Minute}
}

type DiscoveryStore interface {
	AcquireEnrichmentBatch(dbc dbctx.Context, limit int) ([]*types.Discovery, error)
	CleanupStaleEnrichment(dbc dbctx.Context, staleAfter time.Duration) (int64, error)
	SetEnrichmentStatusForMedia(dbc dbctx.Context, mediaID uuid.UUID, claimed []uuid.UUID, status string, reason string) (int64, error)
}

type MediaStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error)
}

type Enricher interface {
	Enrich(ctx context.Context, mediaID uuid.UUID) (*types.EnrichedProfile, error)
}

type HostVerifier interface {
	NeedsVerification(m *types.Media) bool
	Verify(ctx context.Context, mediaID uuid.UUID) (*hosts.Result, error)
}

type QualityScorer interface {
	MaybeUpdate(ctx context.Context, mediaID uuid.UUID) (*quality.Breakdown, error)
}

// Deps wires the orchestrator. Hosts and Quality are optional.
type Deps struct {
	Log         *logger.Logger
	Discoveries DiscoveryStore
	Media       MediaStore
	Enricher    Enricher
	Hosts       HostVerifier
	Quality     QualityScorer
	Events      eventbus.Publisher
}

type CycleResult struct {
	Claimed   int
	Media     int
	Completed int
	Failed    int
	Released  int
}

type Orchestrator struct {
	log *logger.Logger
	cfg Config
	d   Deps
}

func New(deps Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if deps.Events == nil {
		deps.Events = eventbus.Nop()
	}
	return &Orchestrator{log: deps.Log.With("service", "Orchestrator"), cfg: cfg, d: deps}
}

// RunEnrichmentCycle claims up to limit pending discoveries and runs enrichment,
// host verification (when due) and quality scoring once per distinct media. The
// outcome is written to every open discovery of that media. A fatal error stops
// the cycle, returns unprocessed claims to pending and is returned.
func (o *Orchestrator) RunEnrichmentCycle(ctx context.Context, limit int) (CycleResult, error) {
	ctx, span := otel.Tracer("podreach/orchestrator").Start(ctx, "orchestrator.enrichment_cycle")
	defer span.End()

	var res CycleResult
	claims, err := o.d.Discoveries.AcquireEnrichmentBatch(dbctx.New(ctx), limit)
	if err != nil {
		return res, fmt.Errorf("acquire enrichment batch: %w", err)
	}
	res.Claimed = len(claims)
	if len(claims) == 0 {
		return res, nil
	}

	byMedia := map[uuid.UUID][]*types.Discovery{}
	var order []uuid.UUID
	for _, c := range claims {
		if _, ok := byMedia[c.MediaID]; !ok {
			order = append(order, c.MediaID)
		}
		byMedia[c.MediaID] = append(byMedia[c.MediaID], c)
	}
	res.Media = len(order)
	span.SetAttributes(attribute.Int("claimed", res.Claimed), attribute.Int("media", res.Media))

	var (
		mu       sync.Mutex
		fatalErr error
	)
	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatalErr != nil
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, mediaID := range order {
		discs := byMedia[mediaID]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("Enrichment panicked", "media_id", mediaID, "panic", r)
					o.finish(context.WithoutCancel(ctx), mediaID, discs, types.StatusFailed, "Internal error while enriching.")
					mu.Lock()
					res.Failed++
					mu.Unlock()
				}
			}()
			if stopped() {
				o.release(context.WithoutCancel(ctx), mediaID, discs)
				mu.Lock()
				res.Released++
				mu.Unlock()
				return nil
			}
			status, err := o.processMedia(ctx, mediaID, discs)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if fatalErr == nil {
					fatalErr = err
				}
				res.Released++
			case status == types.StatusCompleted:
				res.Completed++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	o.log.With(ctxutil.LogFields(ctx)...).Info("Enrichment cycle finished",
		"claimed", res.Claimed,
		"media", res.Media,
		"completed", res.Completed,
		"failed", res.Failed,
		"released", res.Released,
	)
	if fatalErr != nil {
		span.RecordError(fatalErr)
	}
	return res, fatalErr
}

// processMedia returns the final discovery status, or a fatal error after
// releasing the claims.
func (o *Orchestrator) processMedia(ctx context.Context, mediaID uuid.UUID, discs []*types.Discovery) (string, error) {
	log := o.log.With("media_id", mediaID)

	profile, err := o.d.Enricher.Enrich(ctx, mediaID)
	if err != nil {
		if apperr.IsFatal(err) || errors.Is(err, context.Canceled) {
			o.release(context.WithoutCancel(ctx), mediaID, discs)
			return "", err
		}
		log.Warn("Enrichment failed", "error", err)
		o.finish(ctx, mediaID, discs, types.StatusFailed, fmt.Sprintf("Enrichment failed: %v", err))
		return types.StatusFailed, nil
	}
	if profile == nil {
		o.finish(ctx, mediaID, discs, types.StatusFailed, "Media record not found.")
		return types.StatusFailed, nil
	}

	data := map[string]any{"hosts": len(profile.Hosts)}
	if o.d.Hosts != nil {
		if err := o.verifyHosts(ctx, mediaID, data); err != nil {
			o.release(context.WithoutCancel(ctx), mediaID, discs)
			return "", err
		}
	}
	if o.d.Quality != nil {
		b, err := o.d.Quality.MaybeUpdate(ctx, mediaID)
		switch {
		case err != nil && apperr.IsFatal(err):
			o.release(context.WithoutCancel(ctx), mediaID, discs)
			return "", err
		case err != nil:
			log.Warn("Quality scoring failed", "error", err)
		case b != nil:
			data["quality_score"] = b.Total
		}
	}

	o.finish(ctx, mediaID, discs, types.StatusCompleted, "")
	o.publish(ctx, eventbus.EnrichmentCompleted, mediaID, data)
	return types.StatusCompleted, nil
}

// verifyHosts runs verification when the stored row is due. Only fatal errors
// are returned.
func (o *Orchestrator) verifyHosts(ctx context.Context, mediaID uuid.UUID, data map[string]any) error {
	m, err := o.d.Media.GetByID(dbctx.New(ctx), mediaID)
	if err != nil {
		if err = apperr.Store(err); apperr.IsFatal(err) {
			return err
		}
		o.log.Warn("Reload media for host verification failed", "media_id", mediaID, "error", err)
		return nil
	}
	if m == nil || !o.d.Hosts.NeedsVerification(m) {
		return nil
	}
	vr, err := o.d.Hosts.Verify(ctx, mediaID)
	if err != nil {
		if apperr.IsFatal(err) {
			return err
		}
		o.log.Warn("Host verification failed", "media_id", mediaID, "error", err)
		return nil
	}
	if vr != nil {
		data["hosts_verified"] = len(vr.Verified)
		data["hosts_needs_review"] = vr.NeedsReview()
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, mediaID uuid.UUID, discs []*types.Discovery, status, reason string) {
	n, err := o.d.Discoveries.SetEnrichmentStatusForMedia(dbctx.New(ctx), mediaID, claimIDs(discs), status, reason)
	if err != nil {
		o.log.Error("Write enrichment status failed", "media_id", mediaID, "status", status, "error", err)
		return
	}
	if status == types.StatusFailed {
		trace.SpanFromContext(ctx).AddEvent("enrichment.media_failed", trace.WithAttributes(
			attribute.String("media_id", mediaID.String()),
			attribute.String("reason", reason),
		))
		o.publish(ctx, eventbus.EnrichmentFailed, mediaID, map[string]any{"error": reason, "discoveries": len(discs)})
	}
	o.log.Debug("Enrichment status written", "media_id", mediaID, "status", status, "rows", n)
}

func (o *Orchestrator) release(ctx context.Context, mediaID uuid.UUID, discs []*types.Discovery) {
	if _, err := o.d.Discoveries.SetEnrichmentStatusForMedia(dbctx.New(ctx), mediaID, claimIDs(discs), types.StatusPending, ""); err != nil {
		o.log.Warn("Release enrichment claim failed; stale sweep will reset it", "media_id", mediaID, "error", err)
	}
}

func claimIDs(discs []*types.Discovery) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(discs))
	for _, d := range discs {
		ids = append(ids, d.ID)
	}
	return ids
}

func (o *Orchestrator) publish(ctx context.Context, t eventbus.EventType, mediaID uuid.UUID, data map[string]any) {
	ev := eventbus.Event{Type: t, MediaID: mediaID, Data: data, At: time.Now().UTC()}
	if err := o.d.Events.Publish(ctx, ev); err != nil {
		o.log.Warn("Publish event failed", "type", string(t), "media_id", mediaID, "error", err)
	}
}

// SweepStaleEnrichment resets enrichment claims abandoned by a crashed worker.
func (o *Orchestrator) SweepStaleEnrichment(ctx context.Context) (int64, error) {
	return o.d.Discoveries.CleanupStaleEnrichment(dbctx.New(ctx), o.cfg.StaleAfter)
}
