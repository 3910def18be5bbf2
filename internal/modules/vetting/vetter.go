package vetting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/podreach-backend/internal/data/repos/discovery"
	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/ctxutil"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/eventbus"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type Config struct {
	// MatchThreshold is on the 0-100 vetting scale; scores at or above it create a match suggestion.
	MatchThreshold          float64
	HostConfidenceThreshold float64
	StaleAfter              time.Duration
	Concurrency             int
	SummaryMaxChars         int
}

func DefaultConfig() Config {
	return Config{
		MatchThreshold:          50,
		HostConfidenceThreshold: 0.7,
		StaleAfter:              30 * time.Minute,
		Concurrency:             3,
		SummaryMaxChars:         8000,
	}
}

type DiscoveryStore interface {
	AcquireVettingBatch(dbc dbctx.Context, limit int) ([]*types.Discovery, error)
	CleanupStaleVettingLocks(dbc dbctx.Context, staleAfter time.Duration) (int64, error)
	CompleteVetting(dbc dbctx.Context, id uuid.UUID, lockToken uuid.UUID, result discovery.VettingResult) error
	FailVetting(dbc dbctx.Context, id uuid.UUID, lockToken uuid.UUID, reason string) error
}

type MediaStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error)
}

type CampaignStore interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Campaign, error)
}

type MatchStore interface {
	Upsert(dbc dbctx.Context, in discovery.MatchSuggestionInput) (*types.MatchSuggestion, error)
}

// LLM is satisfied by openai.Client.
type LLM interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type Deps struct {
	Log         *logger.Logger
	Discoveries DiscoveryStore
	Media       MediaStore
	Campaigns   CampaignStore
	Matches     MatchStore
	AI          LLM
	Events      eventbus.Publisher
	Now         func() time.Time
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusLockLost means the row was swept and possibly re-claimed before write-back.
	StatusLockLost Status = "lock_lost"
)

type Outcome struct {
	DiscoveryID       uuid.UUID
	Status            Status
	Score             *float64
	MatchSuggestionID *uuid.UUID
	Error             string
}

type BatchResult struct {
	Claimed   int
	Completed int
	Failed    int
	LockLost  int
	Matches   int
}

type Vetter struct {
	log *logger.Logger
	cfg Config
	d   Deps
}

func NewVetter(deps Deps, cfg Config) *Vetter {
	def := DefaultConfig()
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}
	if cfg.HostConfidenceThreshold <= 0 {
		cfg.HostConfidenceThreshold = def.HostConfidenceThreshold
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = def.SummaryMaxChars
	}
	if deps.Events == nil {
		deps.Events = eventbus.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Vetter{log: deps.Log.With("service", "Vetter"), cfg: cfg, d: deps}
}

// Vet scores one claimed discovery and writes the result back under its lock.
// Returned errors are fatal to the run (DB loss, missing credentials); every other
// problem is recorded on the row as a failure.
func (v *Vetter) Vet(ctx context.Context, claim *types.Discovery) (*Outcome, error) {
	if !claim.Claimed() {
		return nil, fmt.Errorf("vet: discovery is not claimed: %w", apperr.ErrInvalidArgument)
	}
	ctx, span := otel.Tracer("podreach/vetting").Start(ctx, "vetting.vet")
	defer span.End()
	span.SetAttributes(
		attribute.String("discovery_id", claim.ID.String()),
		attribute.String("media_id", claim.MediaID.String()),
	)
	dbc := dbctx.New(ctx)

	camp, err := v.d.Campaigns.GetByID(dbc, claim.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", apperr.Store(err))
	}
	if camp == nil {
		return v.fail(ctx, claim, "Campaign no longer exists.")
	}
	m, err := v.d.Media.GetByID(dbc, claim.MediaID)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", apperr.Store(err))
	}
	if m == nil {
		return v.fail(ctx, claim, "Podcast record no longer exists.")
	}
	if strings.TrimSpace(pointers.Deref(camp.IdealPodcastDescription)) == "" {
		return v.fail(ctx, claim, "Campaign has no ideal podcast description to vet against.")
	}
	if strings.TrimSpace(pointers.Deref(m.AIDescription)) == "" && strings.TrimSpace(pointers.Deref(m.Description)) == "" {
		return v.fail(ctx, claim, "Podcast has no description yet; enrichment must run first.")
	}

	hosts := hostLines(m, v.cfg.HostConfidenceThreshold)
	prompt := vettingPrompt(camp, m, claim, hosts, v.cfg.SummaryMaxChars)
	obj, err := v.d.AI.GenerateJSON(ctx, vettingSystem, prompt, "podcast_vetting", vettingSchema())
	if err != nil {
		if apperr.IsFatal(err) || ctx.Err() != nil {
			// The claim stays in_progress; the stale sweep returns it to pending.
			return nil, fmt.Errorf("vetting llm: %w", err)
		}
		return v.fail(ctx, claim, "The AI vetting request failed after retries: "+shorten(err.Error(), 300))
	}
	res, err := coerceVetting(obj)
	if err != nil {
		return v.fail(ctx, claim, "The AI returned an unusable vetting result: "+err.Error())
	}
	if low := unverifiedNames(hosts); len(low) > 0 {
		res.Checklist["host_attribution_unverified"] = map[string]any{
			"met":      false,
			"evidence": "Host names not verified: " + strings.Join(low, ", "),
			"hosts":    low,
		}
	}

	out := &Outcome{DiscoveryID: claim.ID, Score: &res.Score}
	var matchID *uuid.UUID
	if res.Score >= v.cfg.MatchThreshold {
		ms, err := v.d.Matches.Upsert(dbc, discovery.MatchSuggestionInput{
			CampaignID: claim.CampaignID,
			MediaID:    claim.MediaID,
			Score:      res.Score,
			Reasoning:  res.Reasoning,
			Checklist:  res.Checklist,
			Keywords:   matchedKeywords(claim),
		})
		if err != nil {
			return nil, fmt.Errorf("upsert match suggestion: %w", apperr.Store(err))
		}
		matchID = &ms.ID
		out.MatchSuggestionID = matchID
	}

	err = v.d.Discoveries.CompleteVetting(dbc, claim.ID, *claim.VettingLockToken, discovery.VettingResult{
		Score:             res.Score,
		Reasoning:         res.Reasoning,
		Checklist:         res.Checklist,
		MatchSuggestionID: matchID,
	})
	if errors.Is(err, apperr.ErrLockLost) {
		v.log.Warn("Vetting lock lost before write-back", "discovery_id", claim.ID)
		out.Status = StatusLockLost
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("complete vetting: %w", apperr.Store(err))
	}
	out.Status = StatusCompleted
	span.SetAttributes(attribute.Float64("vetting_score", res.Score))

	data := map[string]any{"vetting_score": res.Score}
	if matchID != nil {
		data["match_suggestion_id"] = matchID.String()
	}
	v.publish(ctx, eventbus.VettingCompleted, claim, data)
	v.log.Info("Vetting completed", "discovery_id", claim.ID, "media_id", claim.MediaID, "score", res.Score, "matched", matchID != nil)
	return out, nil
}

func (v *Vetter) fail(ctx context.Context, claim *types.Discovery, reason string) (*Outcome, error) {
	out := &Outcome{DiscoveryID: claim.ID, Status: StatusFailed, Error: reason}
	err := v.d.Discoveries.FailVetting(dbctx.New(ctx), claim.ID, *claim.VettingLockToken, reason)
	if errors.Is(err, apperr.ErrLockLost) {
		out.Status = StatusLockLost
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fail vetting: %w", apperr.Store(err))
	}
	v.log.Warn("Vetting failed", "discovery_id", claim.ID, "media_id", claim.MediaID, "reason", reason)
	v.publish(ctx, eventbus.VettingFailed, claim, map[string]any{"error": reason})
	return out, nil
}

func (v *Vetter) publish(ctx context.Context, t eventbus.EventType, claim *types.Discovery, data map[string]any) {
	cid, did := claim.CampaignID, claim.ID
	ev := eventbus.Event{Type: t, MediaID: claim.MediaID, CampaignID: &cid, DiscoveryID: &did, Data: data, At: v.d.Now().UTC()}
	if err := v.d.Events.Publish(ctx, ev); err != nil {
		v.log.Warn("Publish event failed", "type", string(t), "discovery_id", claim.ID, "error", err)
	}
}

// RunBatch claims up to limit rows and vets them concurrently. A panic or ordinary
// error in one item does not affect the others; the first fatal error is returned
// after in-flight items finish.
func (v *Vetter) RunBatch(ctx context.Context, limit int) (BatchResult, error) {
	var res BatchResult
	claims, err := v.d.Discoveries.AcquireVettingBatch(dbctx.New(ctx), limit)
	if err != nil {
		return res, fmt.Errorf("acquire vetting batch: %w", err)
	}
	res.Claimed = len(claims)
	if len(claims) == 0 {
		return res, nil
	}

	var (
		mu       sync.Mutex
		fatalErr error
	)
	record := func(o *Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if fatalErr == nil {
				fatalErr = err
			}
			return
		}
		switch o.Status {
		case StatusCompleted:
			res.Completed++
			if o.MatchSuggestionID != nil {
				res.Matches++
			}
		case StatusFailed:
			res.Failed++
		case StatusLockLost:
			res.LockLost++
		}
	}

	var g errgroup.Group
	g.SetLimit(v.cfg.Concurrency)
	for _, c := range claims {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					v.log.Error("Vetting panicked", "discovery_id", c.ID, "panic", r)
					record(v.fail(context.WithoutCancel(ctx), c, "Internal error while vetting."))
				}
			}()
			mu.Lock()
			stop := fatalErr != nil
			mu.Unlock()
			if stop {
				return nil
			}
			record(v.Vet(ctx, c))
			return nil
		})
	}
	_ = g.Wait()

	v.log.With(ctxutil.LogFields(ctx)...).Info("Vetting batch finished",
		"claimed", res.Claimed,
		"completed", res.Completed,
		"failed", res.Failed,
		"lock_lost", res.LockLost,
		"matches", res.Matches,
	)
	return res, fatalErr
}

// SweepStaleLocks returns claims older than the stale threshold to pending.
func (v *Vetter) SweepStaleLocks(ctx context.Context) (int64, error) {
	n, err := v.d.Discoveries.CleanupStaleVettingLocks(dbctx.New(ctx), v.cfg.StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale vetting locks: %w", err)
	}
	return n, nil
}

// shorten keeps at most n runes of s.
func shorten(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
