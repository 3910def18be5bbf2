package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type MatchSuggestionInput struct {
	CampaignID uuid.UUID
	MediaID    uuid.UUID
	Score      float64
	Reasoning  string
	Checklist  map[string]any
	Keywords   []string
}

type MatchSuggestionRepo interface {
	Upsert(dbc dbctx.Context, in MatchSuggestionInput) (*types.MatchSuggestion, error)
	GetByCampaignMedia(dbc dbctx.Context, campaignID, mediaID uuid.UUID) (*types.MatchSuggestion, error)
}

type matchSuggestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMatchSuggestionRepo(db *gorm.DB, baseLog *logger.Logger) MatchSuggestionRepo {
	return &matchSuggestionRepo{
		db:  db,
		log: baseLog.With("repo", "MatchSuggestionRepo"),
	}
}

// Upsert creates the suggestion or, on repeat vetting of the same pair, refreshes
// the score and unions matched keywords. Review status is left untouched.
func (r *matchSuggestionRepo) Upsert(dbc dbctx.Context, in MatchSuggestionInput) (*types.MatchSuggestion, error) {
	if in.CampaignID == uuid.Nil || in.MediaID == uuid.Nil {
		return nil, fmt.Errorf("match suggestion: campaign and media required")
	}
	keywords := in.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	kwJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, err
	}
	checklist := in.Checklist
	if checklist == nil {
		checklist = map[string]any{}
	}
	clJSON, err := json.Marshal(checklist)
	if err != nil {
		return nil, err
	}
	var out types.MatchSuggestion
	err = dbc.Handle(r.db).Raw(`
		INSERT INTO match_suggestions
		  (match_id, campaign_id, media_id, status, vetting_score, vetting_reasoning,
		   vetting_checklist, matched_keywords, last_vetted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?::jsonb, ?::jsonb, now(), now(), now())
		ON CONFLICT (campaign_id, media_id) DO UPDATE SET
		  vetting_score = EXCLUDED.vetting_score,
		  vetting_reasoning = EXCLUDED.vetting_reasoning,
		  vetting_checklist = EXCLUDED.vetting_checklist,
		  matched_keywords = (
		    SELECT COALESCE(jsonb_agg(DISTINCT k ORDER BY k), '[]'::jsonb)
		    FROM jsonb_array_elements_text(match_suggestions.matched_keywords || EXCLUDED.matched_keywords) AS k
		  ),
		  last_vetted_at = now(),
		  updated_at = now()
		RETURNING *
	`, uuid.New(), in.CampaignID, in.MediaID, types.MatchStatusPending, in.Score, in.Reasoning,
		string(clJSON), string(kwJSON)).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, fmt.Errorf("match suggestion upsert returned no row")
	}
	return &out, nil
}

func (r *matchSuggestionRepo) GetByCampaignMedia(dbc dbctx.Context, campaignID, mediaID uuid.UUID) (*types.MatchSuggestion, error) {
	var out types.MatchSuggestion
	err := dbc.Handle(r.db).
		Where("campaign_id = ? AND media_id = ?", campaignID, mediaID).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
