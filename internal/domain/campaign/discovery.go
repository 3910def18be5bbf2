package campaign

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Discovery records that a campaign found a media via a keyword. Enrichment and
// vetting progress independently; vetting claims are held through the lock columns.
type Discovery struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;not null;uniqueIndex:idx_discovery_campaign_media_keyword,priority:1" json:"campaign_id"`
	MediaID    uuid.UUID `gorm:"column:media_id;type:uuid;not null;index;uniqueIndex:idx_discovery_campaign_media_keyword,priority:2" json:"media_id"`
	Keyword    string    `gorm:"column:discovery_keyword;type:text;not null;default:'';uniqueIndex:idx_discovery_campaign_media_keyword,priority:3" json:"discovery_keyword"`

	EnrichmentStatus    string     `gorm:"column:enrichment_status;type:text;not null;default:'pending';index" json:"enrichment_status"`
	EnrichmentError     *string    `gorm:"column:enrichment_error;type:text" json:"enrichment_error,omitempty"`
	EnrichmentStartedAt *time.Time `gorm:"column:enrichment_started_at" json:"enrichment_started_at,omitempty"`
	EnrichmentCompleted *time.Time `gorm:"column:enrichment_completed_at" json:"enrichment_completed_at,omitempty"`

	VettingStatus    string                             `gorm:"column:vetting_status;type:text;not null;default:'pending';index" json:"vetting_status"`
	VettingScore     *float64                           `gorm:"column:vetting_score;type:double precision" json:"vetting_score,omitempty"`
	VettingReasoning *string                            `gorm:"column:vetting_reasoning;type:text" json:"vetting_reasoning,omitempty"`
	VettingChecklist datatypes.JSONType[map[string]any] `gorm:"column:vetting_checklist;type:jsonb;not null;default:'{}'" json:"vetting_checklist"`
	VettingError     *string                            `gorm:"column:vetting_error;type:text" json:"vetting_error,omitempty"`
	VettingLockToken *uuid.UUID                         `gorm:"column:vetting_lock_token;type:uuid;index" json:"vetting_lock_token,omitempty"`
	VettingLockedAt  *time.Time                         `gorm:"column:vetting_locked_at" json:"vetting_locked_at,omitempty"`
	VettedAt         *time.Time                         `gorm:"column:vetted_at" json:"vetted_at,omitempty"`

	MatchSuggestionID *uuid.UUID `gorm:"column:match_suggestion_id;type:uuid" json:"match_suggestion_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Discovery) TableName() string { return "campaign_media_discoveries" }

// Claimed reports whether a vetting worker currently holds the row.
func (d *Discovery) Claimed() bool {
	return d != nil && d.VettingStatus == StatusInProgress && d.VettingLockToken != nil
}
