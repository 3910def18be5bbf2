package media

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/podreach-backend/internal/data/merge"
	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/normalization"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type UpsertAction string

const (
	UpsertInserted  UpsertAction = "inserted"
	UpsertUpdated   UpsertAction = "updated"
	UpsertUnchanged UpsertAction = "unchanged"
)

type UpsertResult struct {
	Action UpsertAction
	// APIIDConflict is set when a promotion to a new api_id was dropped because
	// another row already owns that id.
	APIIDConflict bool
	// RaceRecovered is set when the insert lost a race and the winner's row was used.
	RaceRecovered bool
	Changed       []string
}

type MediaRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Media, error)
	GetByRSSURL(dbc dbctx.Context, rssURL string) (*types.Media, error)
	GetByAPIID(dbc dbctx.Context, apiID string) (*types.Media, error)
	Upsert(dbc dbctx.Context, candidate *types.Media) (*types.Media, UpsertResult, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListNeedingHostVerification(dbc dbctx.Context, verifiedBefore time.Time, limit int) ([]*types.Media, error)
}

type mediaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMediaRepo(db *gorm.DB, baseLog *logger.Logger) MediaRepo {
	return &mediaRepo{
		db:  db,
		log: baseLog.With("repo", "MediaRepo"),
	}
}

func (r *mediaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Media, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.Handle(r.db).Where("media_id = ?", id))
}

func (r *mediaRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Media, error) {
	var out []*types.Media
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Handle(r.db).Where("media_id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mediaRepo) GetByRSSURL(dbc dbctx.Context, rssURL string) (*types.Media, error) {
	rssURL = normalization.FeedURL(rssURL)
	if rssURL == "" {
		return nil, nil
	}
	return r.first(dbc.Handle(r.db).Where("rss_url = ?", rssURL))
}

func (r *mediaRepo) GetByAPIID(dbc dbctx.Context, apiID string) (*types.Media, error) {
	apiID = strings.TrimSpace(apiID)
	if apiID == "" {
		return nil, nil
	}
	return r.first(dbc.Handle(r.db).Where("api_id = ?", apiID))
}

func (r *mediaRepo) first(q *gorm.DB) (*types.Media, error) {
	var m types.Media
	if err := q.Limit(1).Find(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

// Upsert resolves the candidate to at most one row: by normalized rss_url, then by
// api_id alone (source_api may have changed), then inserts. A unique violation on
// insert means a concurrent writer won; its row is re-read and merged into instead.
func (r *mediaRepo) Upsert(dbc dbctx.Context, candidate *types.Media) (*types.Media, UpsertResult, error) {
	var res UpsertResult
	if candidate == nil {
		return nil, res, fmt.Errorf("upsert media: nil candidate")
	}
	cand := *candidate
	if cand.RSSURL != nil {
		if norm := normalization.FeedURL(*cand.RSSURL); norm != "" {
			cand.RSSURL = &norm
		} else {
			cand.RSSURL = nil
		}
	}
	if cand.APIID != nil && strings.TrimSpace(*cand.APIID) == "" {
		cand.APIID = nil
	}
	if rep := normalization.RepairMedia(&cand); rep.Changed() {
		r.log.Debug("Repaired email-in-URL fields on candidate", "fields", rep.ClearedFields)
	}

	existing, err := r.resolve(dbc, &cand)
	if err != nil {
		return nil, res, err
	}
	if existing == nil {
		inserted, raced, err := r.insert(dbc, &cand)
		if err != nil {
			return nil, res, err
		}
		if !raced {
			res.Action = UpsertInserted
			return inserted, res, nil
		}
		res.RaceRecovered = true
		existing, err = r.resolve(dbc, &cand)
		if err != nil {
			return nil, res, err
		}
		if existing == nil {
			return nil, res, fmt.Errorf("upsert media: unique violation but no conflicting row found")
		}
		r.log.Info("Media insert lost race; merging into winner", "media_id", existing.ID)
	}
	return r.mergeInto(dbc, existing, &cand, res)
}

func (r *mediaRepo) resolve(dbc dbctx.Context, cand *types.Media) (*types.Media, error) {
	if cand.RSSURL != nil {
		m, err := r.GetByRSSURL(dbc, *cand.RSSURL)
		if err != nil || m != nil {
			return m, err
		}
	}
	if cand.APIID != nil {
		m, err := r.GetByAPIID(dbc, *cand.APIID)
		if err != nil || m != nil {
			return m, err
		}
	}
	// Re-enrichment of a row that has neither key yet.
	if cand.ID != uuid.Nil {
		return r.GetByID(dbc, cand.ID)
	}
	return nil, nil
}

func (r *mediaRepo) insert(dbc dbctx.Context, cand *types.Media) (*types.Media, bool, error) {
	row := *cand
	row.ID = uuid.New()
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now
	err := r.guarded(dbc, "media_insert", func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if isUniqueViolation(err) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert media: %w", err)
	}
	return &row, false, nil
}

func (r *mediaRepo) mergeInto(dbc dbctx.Context, existing, cand *types.Media, res UpsertResult) (*types.Media, UpsertResult, error) {
	before := *existing
	updates := merge.Into(existing, cand)

	promoted := false
	if cand.APIID != nil && (existing.APIID == nil || *existing.APIID != *cand.APIID) {
		owner, err := r.GetByAPIID(dbc, *cand.APIID)
		if err != nil {
			return nil, res, err
		}
		if owner != nil && owner.ID != existing.ID {
			res.APIIDConflict = true
			r.log.Warn("Dropping api_id promotion; id belongs to another media",
				"media_id", existing.ID, "api_id", *cand.APIID, "owner_media_id", owner.ID)
		} else {
			promoted = true
			updates["api_id"] = *cand.APIID
			existing.APIID = cand.APIID
			if cand.SourceAPI != nil && *cand.SourceAPI != "" {
				updates["source_api"] = *cand.SourceAPI
				existing.SourceAPI = cand.SourceAPI
			}
		}
	}

	if len(updates) == 0 {
		if res.Action == "" {
			res.Action = UpsertUnchanged
		}
		return existing, res, nil
	}

	now := time.Now().UTC()
	updates["updated_at"] = now
	err := r.guarded(dbc, "media_update", func(tx *gorm.DB) error {
		return tx.Model(&types.Media{}).Where("media_id = ?", existing.ID).Updates(updates).Error
	})
	if isUniqueViolation(err) && promoted {
		// Another writer claimed the api_id between the check and the update.
		delete(updates, "api_id")
		delete(updates, "source_api")
		existing.APIID, existing.SourceAPI = before.APIID, before.SourceAPI
		res.APIIDConflict = true
		err = r.guarded(dbc, "media_update", func(tx *gorm.DB) error {
			return tx.Model(&types.Media{}).Where("media_id = ?", existing.ID).Updates(updates).Error
		})
	}
	if err != nil {
		return nil, res, fmt.Errorf("update media %s: %w", existing.ID, err)
	}
	existing.UpdatedAt = now
	for col := range updates {
		if col != "updated_at" {
			res.Changed = append(res.Changed, col)
		}
	}
	if len(res.Changed) == 0 {
		res.Action = UpsertUnchanged
	} else {
		res.Action = UpsertUpdated
	}
	return existing, res, nil
}

// guarded runs fn so that a failed statement does not poison an outer transaction.
func (r *mediaRepo) guarded(dbc dbctx.Context, name string, fn func(tx *gorm.DB) error) error {
	if dbc.Tx == nil {
		return fn(dbc.Handle(r.db))
	}
	tx := dbc.Handle(r.db)
	if err := tx.SavePoint(name).Error; err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

func (r *mediaRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Media{}).
		Where("media_id = ?", id).
		Updates(updates).Error
}

// ListNeedingHostVerification returns media with at least one host name that were
// never verified or last verified before verifiedBefore.
func (r *mediaRepo) ListNeedingHostVerification(dbc dbctx.Context, verifiedBefore time.Time, limit int) ([]*types.Media, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Media
	err := dbc.Handle(r.db).
		Where("jsonb_array_length(host_names) > 0").
		Where("host_names_last_verified IS NULL OR host_names_last_verified < ?", verifiedBefore).
		Order("host_names_last_verified ASC NULLS FIRST").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "sqlstate 23505")
}
