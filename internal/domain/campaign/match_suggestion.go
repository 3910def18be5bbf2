package campaign

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MatchStatusPending  = "pending"
	MatchStatusApproved = "approved"
	MatchStatusRejected = "rejected"
)

type MatchSuggestion struct {
	ID               uuid.UUID                          `gorm:"column:match_id;type:uuid;default:uuid_generate_v4();primaryKey" json:"match_id"`
	CampaignID       uuid.UUID                          `gorm:"column:campaign_id;type:uuid;not null;uniqueIndex:idx_match_campaign_media,priority:1" json:"campaign_id"`
	MediaID          uuid.UUID                          `gorm:"column:media_id;type:uuid;not null;uniqueIndex:idx_match_campaign_media,priority:2" json:"media_id"`
	Status           string                             `gorm:"column:status;type:text;not null;default:'pending';index" json:"status"`
	VettingScore     *float64                           `gorm:"column:vetting_score;type:double precision" json:"vetting_score,omitempty"`
	VettingReasoning *string                            `gorm:"column:vetting_reasoning;type:text" json:"vetting_reasoning,omitempty"`
	VettingChecklist datatypes.JSONType[map[string]any] `gorm:"column:vetting_checklist;type:jsonb;not null;default:'{}'" json:"vetting_checklist"`
	MatchedKeywords  datatypes.JSONSlice[string]        `gorm:"column:matched_keywords;type:jsonb;not null;default:'[]'" json:"matched_keywords"`
	LastVettedAt     *time.Time                         `gorm:"column:last_vetted_at" json:"last_vetted_at,omitempty"`
	CreatedAt        time.Time                          `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time                          `gorm:"not null;default:now()" json:"updated_at"`
}

func (MatchSuggestion) TableName() string { return "match_suggestions" }
