package media

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type EpisodeRepo interface {
	CreateIfMissing(dbc dbctx.Context, episodes []*types.Episode) (int64, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Episode, error)
	ListByMedia(dbc dbctx.Context, mediaID uuid.UUID, limit int) ([]*types.Episode, error)
	ListTranscribed(dbc dbctx.Context, mediaID uuid.UUID, limit int) ([]*types.Episode, error)
	CountTranscribed(dbc dbctx.Context, mediaID uuid.UUID) (int64, error)
	ListPendingTranscription(dbc dbctx.Context, limit int) ([]*types.Episode, error)
	MarkTranscribed(dbc dbctx.Context, id uuid.UUID, transcript string) error
	MarkAudioFailure(dbc dbctx.Context, id uuid.UUID, status string, reason string) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	PruneToRecent(dbc dbctx.Context, mediaID uuid.UUID, keep int) (int64, error)
}

type episodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEpisodeRepo(db *gorm.DB, baseLog *logger.Logger) EpisodeRepo {
	return &episodeRepo{
		db:  db,
		log: baseLog.With("repo", "EpisodeRepo"),
	}
}

// CreateIfMissing inserts episodes, skipping any whose (media_id, audio_url) already exists.
func (r *episodeRepo) CreateIfMissing(dbc dbctx.Context, episodes []*types.Episode) (int64, error) {
	if len(episodes) == 0 {
		return 0, nil
	}
	for _, e := range episodes {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.AudioURLStatus == "" {
			e.AudioURLStatus = types.AudioURLAvailable
		}
	}
	res := dbc.Handle(r.db).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "media_id"}, {Name: "audio_url"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "audio_url <> ''"}}},
			DoNothing:   true,
		}).
		Create(&episodes)
	return res.RowsAffected, res.Error
}

func (r *episodeRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Episode, error) {
	var out []*types.Episode
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Handle(r.db).Where("episode_id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *episodeRepo) ListByMedia(dbc dbctx.Context, mediaID uuid.UUID, limit int) ([]*types.Episode, error) {
	var out []*types.Episode
	q := dbc.Handle(r.db).
		Where("media_id = ?", mediaID).
		Order("publish_date DESC NULLS LAST").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func transcribedScope(db *gorm.DB) *gorm.DB {
	return db.Where("downloaded = TRUE AND transcript IS NOT NULL AND btrim(transcript) <> ''")
}

func (r *episodeRepo) ListTranscribed(dbc dbctx.Context, mediaID uuid.UUID, limit int) ([]*types.Episode, error) {
	var out []*types.Episode
	q := dbc.Handle(r.db).
		Scopes(transcribedScope).
		Where("media_id = ?", mediaID).
		Order("publish_date DESC NULLS LAST")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *episodeRepo) CountTranscribed(dbc dbctx.Context, mediaID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Handle(r.db).
		Model(&types.Episode{}).
		Scopes(transcribedScope).
		Where("media_id = ?", mediaID).
		Count(&n).Error
	return n, err
}

// ListPendingTranscription returns episodes flagged for transcription that have no
// transcript yet and whose audio is not known to be gone.
func (r *episodeRepo) ListPendingTranscription(dbc dbctx.Context, limit int) ([]*types.Episode, error) {
	if limit <= 0 {
		limit = 25
	}
	var out []*types.Episode
	err := dbc.Handle(r.db).
		Where("transcribe = TRUE AND downloaded = FALSE").
		Where("audio_url <> ''").
		Where("audio_url_status <> ?", types.AudioURLFailed404).
		Order("publish_date DESC NULLS LAST").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *episodeRepo) MarkTranscribed(dbc dbctx.Context, id uuid.UUID, transcript string) error {
	now := time.Now().UTC()
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"transcript":               transcript,
		"downloaded":               true,
		"audio_url_status":         types.AudioURLAvailable,
		"transcription_error":      nil,
		"transcription_updated_at": now,
	})
}

func (r *episodeRepo) MarkAudioFailure(dbc dbctx.Context, id uuid.UUID, status string, reason string) error {
	now := time.Now().UTC()
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"audio_url_status":          status,
		"audio_url_failure_count":   gorm.Expr("audio_url_failure_count + 1"),
		"audio_url_last_failure_at": now,
		"transcription_error":       reason,
		"transcription_updated_at":  now,
	})
}

func (r *episodeRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Handle(r.db).
		Model(&types.Episode{}).
		Where("episode_id = ?", id).
		Updates(updates).Error
}

// PruneToRecent keeps the newest keep episodes for a media and deletes the rest.
func (r *episodeRepo) PruneToRecent(dbc dbctx.Context, mediaID uuid.UUID, keep int) (int64, error) {
	if mediaID == uuid.Nil || keep <= 0 {
		return 0, nil
	}
	res := dbc.Handle(r.db).Exec(`
		DELETE FROM episodes
		WHERE media_id = ?
		  AND episode_id NOT IN (
		    SELECT episode_id FROM episodes
		    WHERE media_id = ?
		    ORDER BY publish_date DESC NULLS LAST, created_at DESC
		    LIMIT ?
		  )
	`, mediaID, mediaID, keep)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Debug("Pruned old episodes", "media_id", mediaID, "deleted", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
