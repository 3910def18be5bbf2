package discovery

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// VettingResult is what a successful vetting pass writes back.
type VettingResult struct {
	Score             float64
	Reasoning         string
	Checklist         map[string]any
	MatchSuggestionID *uuid.UUID
}

type DiscoveryRepo interface {
	Create(dbc dbctx.Context, rows []*types.Discovery) ([]*types.Discovery, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Discovery, error)
	ListByMedia(dbc dbctx.Context, mediaID uuid.UUID) ([]*types.Discovery, error)

	AcquireVettingBatch(dbc dbctx.Context, limit int) ([]*types.Discovery, error)
	CleanupStaleVettingLocks(dbc dbctx.Context, staleAfter time.Duration) (int64, error)
	CompleteVetting(dbc dbctx.Context, id uuid.UUID, lockToken uuid.UUID, result VettingResult) error
	FailVetting(dbc dbctx.Context, id uuid.UUID, lockToken uuid.UUID, reason string) error

	AcquireEnrichmentBatch(dbc dbctx.Context, limit int) ([]*types.Discovery, error)
	CleanupStaleEnrichment(dbc dbctx.Context, staleAfter time.Duration) (int64, error)
	SetEnrichmentStatusForMedia(dbc dbctx.Context, mediaID uuid.UUID, claimed []uuid.UUID, status string, reason string) (int64, error)
}

type discoveryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscoveryRepo(db *gorm.DB, baseLog *logger.Logger) DiscoveryRepo {
	return &discoveryRepo{
		db:  db,
		log: baseLog.With("repo", "DiscoveryRepo"),
	}
}

func (r *discoveryRepo) Create(dbc dbctx.Context, rows []*types.Discovery) ([]*types.Discovery, error) {
	if len(rows) == 0 {
		return []*types.Discovery{}, nil
	}
	for _, d := range rows {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.EnrichmentStatus == "" {
			d.EnrichmentStatus = types.StatusPending
		}
		if d.VettingStatus == "" {
			d.VettingStatus = types.StatusPending
		}
	}
	if err := dbc.Handle(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *discoveryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Discovery, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var d types.Discovery
	if err := dbc.Handle(r.db).Where("id = ?", id).Limit(1).Find(&d).Error; err != nil {
		return nil, err
	}
	if d.ID == uuid.Nil {
		return nil, nil
	}
	return &d, nil
}

func (r *discoveryRepo) ListByMedia(dbc dbctx.Context, mediaID uuid.UUID) ([]*types.Discovery, error) {
	var out []*types.Discovery
	if err := dbc.Handle(r.db).Where("media_id = ?", mediaID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AcquireVettingBatch claims up to limit vetting-ready rows in one statement. Each
// claimed row gets its own lock token; concurrent callers skip rows another
// transaction holds, so two claimers never receive the same row.
func (r *discoveryRepo) AcquireVettingBatch(dbc dbctx.Context, limit int) ([]*types.Discovery, error) {
	if limit <= 0 {
		return []*types.Discovery{}, nil
	}
	var out []*types.Discovery
	err := dbc.Handle(r.db).Raw(`
		UPDATE campaign_media_discoveries
		SET vetting_status = ?,
		    vetting_lock_token = uuid_generate_v4(),
		    vetting_locked_at = now(),
		    vetting_error = NULL,
		    updated_at = now()
		WHERE vetting_status = ?
		  AND id IN (
		    SELECT d.id
		    FROM campaign_media_discoveries d
		    JOIN media m ON m.media_id = d.media_id
		    JOIN campaigns c ON c.campaign_id = d.campaign_id
		    WHERE d.vetting_status = ?
		      AND d.enrichment_status = ?
		      AND m.ai_description IS NOT NULL AND btrim(m.ai_description) <> ''
		      AND c.ideal_podcast_description IS NOT NULL AND btrim(c.ideal_podcast_description) <> ''
		    ORDER BY d.created_at ASC
		    LIMIT ?
		    FOR UPDATE OF d SKIP LOCKED
		  )
		RETURNING *
	`, types.StatusInProgress, types.StatusPending, types.StatusPending, types.StatusCompleted, limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		r.log.Debug("Claimed vetting batch", "count", len(out))
	}
	return out, nil
}

// CleanupStaleVettingLocks returns in_progress rows whose lock is older than
// staleAfter to pending. Rows claimed before lock columns existed fall back to updated_at.
func (r *discoveryRepo) CleanupStaleVettingLocks(dbc dbctx.Context, staleAfter time.Duration) (int64, error) {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	cutoff := time.Now().UTC().Add(-staleAfter)
	res := dbc.Handle(r.db).Exec(`
		UPDATE campaign_media_discoveries
		SET vetting_status = ?,
		    vetting_lock_token = NULL,
		    vetting_locked_at = NULL,
		    vetting_error = NULL,
		    updated_at = now()
		WHERE vetting_status = ?
		  AND COALESCE(vetting_locked_at, updated_at) < ?
	`, types.StatusPending, types.StatusInProgress, cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("Reset stale vetting locks", "count", res.RowsAffected, "stale_after", staleAfter.String())
	}
	return res.RowsAffected, nil
}

// CompleteVetting writes the result only while lockToken still holds the row.
// ErrLockLost means the lock was swept and possibly re-claimed; nothing was written.
func (r *discoveryRepo) CompleteVetting(dbc dbctx.Context, id uuid.UUID, lockToken uuid.UUID, result VettingResult) error {
	checklist := result.Checklist
	if checklist == nil {
		checklist = map[string]any{}
	}
	updates := map[string]interface{}{
		"vetting_status":      types.StatusCompleted,
		"vetting_score":       result.Score,
		"vetting_reasoning":   result.Reasoning,
		"vetting_checklist":   datatypes.NewJSONType(checklist),
		"vetting_error":       nil,
		"vetting_lock_token":  nil,
		"vetting_locked_at":   nil,
		"vetted_at":           time.Now().UTC(),
		"updated_at":          time.Now().UTC(),
		"match_suggestion_id": result.MatchSuggestionID,
	}
	return r.fencedUpdate(dbc, id, lockToken, updates)
}

func (r *discoveryRepo) FailVetting(dbc dbctx.Context, id uuid.UUID, lockToken uuid.UUID, reason string) error {
	updates := map[string]interface{}{
		"vetting_status":     types.StatusFailed,
		"vetting_error":      reason,
		"vetting_lock_token": nil,
		"vetting_locked_at":  nil,
		"updated_at":         time.Now().UTC(),
	}
	return r.fencedUpdate(dbc, id, lockToken, updates)
}

func (r *discoveryRepo) fencedUpdate(dbc dbctx.Context, id, lockToken uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || lockToken == uuid.Nil {
		return apperr.ErrLockLost
	}
	res := dbc.Handle(r.db).
		Model(&types.Discovery{}).
		Where("id = ? AND vetting_status = ? AND vetting_lock_token = ?", id, types.StatusInProgress, lockToken).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("Vetting write skipped; lock no longer held", "discovery_id", id, "lock_token", lockToken)
		return apperr.ErrLockLost
	}
	return nil
}

// AcquireEnrichmentBatch claims pending enrichment rows with the same skip-locked
// pattern as vetting.
func (r *discoveryRepo) AcquireEnrichmentBatch(dbc dbctx.Context, limit int) ([]*types.Discovery, error) {
	if limit <= 0 {
		return []*types.Discovery{}, nil
	}
	var out []*types.Discovery
	err := dbc.Handle(r.db).Raw(`
		UPDATE campaign_media_discoveries
		SET enrichment_status = ?,
		    enrichment_started_at = now(),
		    enrichment_error = NULL,
		    updated_at = now()
		WHERE enrichment_status = ?
		  AND id IN (
		    SELECT id
		    FROM campaign_media_discoveries
		    WHERE enrichment_status = ?
		    ORDER BY created_at ASC
		    LIMIT ?
		    FOR UPDATE SKIP LOCKED
		  )
		RETURNING *
	`, types.StatusInProgress, types.StatusPending, types.StatusPending, limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *discoveryRepo) CleanupStaleEnrichment(dbc dbctx.Context, staleAfter time.Duration) (int64, error) {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	cutoff := time.Now().UTC().Add(-staleAfter)
	res := dbc.Handle(r.db).Exec(`
		UPDATE campaign_media_discoveries
		SET enrichment_status = ?,
		    enrichment_started_at = NULL,
		    updated_at = now()
		WHERE enrichment_status = ?
		  AND COALESCE(enrichment_started_at, updated_at) < ?
	`, types.StatusPending, types.StatusInProgress, cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("Reset stale enrichment claims", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// SetEnrichmentStatusForMedia moves the caller's claimed rows and every still
// pending discovery of a media to status. One enrichment pass serves all campaigns
// that discovered the media. Rows in progress under another worker's claim are
// left alone.
func (r *discoveryRepo) SetEnrichmentStatusForMedia(dbc dbctx.Context, mediaID uuid.UUID, claimed []uuid.UUID, status string, reason string) (int64, error) {
	if mediaID == uuid.Nil {
		return 0, nil
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"enrichment_status": status,
		"updated_at":        now,
	}
	switch status {
	case types.StatusCompleted:
		updates["enrichment_completed_at"] = now
		updates["enrichment_error"] = nil
	case types.StatusFailed:
		updates["enrichment_error"] = reason
	}
	res := dbc.Handle(r.db).
		Model(&types.Discovery{}).
		Where("media_id = ?", mediaID).
		Where(r.db.Where("enrichment_status = ?", types.StatusPending).
			Or("enrichment_status = ? AND id IN ?", types.StatusInProgress, append([]uuid.UUID{uuid.Nil}, claimed...))).
		Updates(updates)
	return res.RowsAffected, res.Error
}
