package media

import (
	"time"

	"github.com/google/uuid"
)

const (
	AudioURLAvailable  = "available"
	AudioURLFailed404  = "failed_404"
	AudioURLFailedTemp = "failed_temp"
)

// Episode belongs to exactly one Media. It is retried for transcription only while
// Transcribe && !Downloaded.
type Episode struct {
	ID      uuid.UUID `gorm:"column:episode_id;type:uuid;default:uuid_generate_v4();primaryKey" json:"episode_id"`
	MediaID uuid.UUID `gorm:"column:media_id;type:uuid;not null;index:idx_episode_media_published,priority:1" json:"media_id"`

	Title       string     `gorm:"column:title;type:text;not null;default:''" json:"title"`
	PublishDate *time.Time `gorm:"column:publish_date;index:idx_episode_media_published,priority:2" json:"publish_date,omitempty"`
	AudioURL    string     `gorm:"column:audio_url;type:text;not null;default:''" json:"audio_url"`
	DurationSec int        `gorm:"column:duration_sec;not null;default:0" json:"duration_sec"`

	Transcript       *string `gorm:"column:transcript;type:text" json:"transcript,omitempty"`
	AIEpisodeSummary *string `gorm:"column:ai_episode_summary;type:text" json:"ai_episode_summary,omitempty"`

	Transcribe bool `gorm:"column:transcribe;not null;default:false;index" json:"transcribe"`
	Downloaded bool `gorm:"column:downloaded;not null;default:false;index" json:"downloaded"`

	AudioURLStatus         string     `gorm:"column:audio_url_status;type:text;not null;default:'available'" json:"audio_url_status"`
	AudioURLFailureCount   int        `gorm:"column:audio_url_failure_count;not null;default:0" json:"audio_url_failure_count"`
	AudioURLLastFailureAt  *time.Time `gorm:"column:audio_url_last_failure_at" json:"audio_url_last_failure_at,omitempty"`
	TranscriptionError     *string    `gorm:"column:transcription_error;type:text" json:"transcription_error,omitempty"`
	TranscriptionUpdatedAt *time.Time `gorm:"column:transcription_updated_at" json:"transcription_updated_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Episode) TableName() string { return "episodes" }

// HasTranscript reports a usable, non-blank transcript.
func (e *Episode) HasTranscript() bool {
	if e == nil || e.Transcript == nil {
		return false
	}
	for _, r := range *e.Transcript {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

func (e *Episode) Duration() time.Duration {
	return time.Duration(e.DurationSec) * time.Second
}
