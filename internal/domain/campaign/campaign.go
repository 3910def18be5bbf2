package campaign

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Campaign is owned by the campaign service; this module only reads it.
type Campaign struct {
	ID                      uuid.UUID                   `gorm:"column:campaign_id;type:uuid;default:uuid_generate_v4();primaryKey" json:"campaign_id"`
	Name                    string                      `gorm:"column:campaign_name;type:text;not null;default:''" json:"campaign_name"`
	IdealPodcastDescription *string                     `gorm:"column:ideal_podcast_description;type:text" json:"ideal_podcast_description,omitempty"`
	Keywords                datatypes.JSONSlice[string] `gorm:"column:campaign_keywords;type:jsonb;not null;default:'[]'" json:"campaign_keywords"`
	CreatedAt               time.Time                   `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt               time.Time                   `gorm:"not null;default:now()" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }
