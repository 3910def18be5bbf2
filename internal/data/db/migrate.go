package db

import (
	"fmt"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	if err := db.AutoMigrate(types.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := EnsureMediaIndexes(db); err != nil {
		return err
	}
	return EnsureDiscoveryIndexes(db)
}

// EnsureMediaIndexes creates the partial unique indexes that AutoMigrate cannot
// express: one row per non-empty rss_url, api_id unique only when present.
func EnsureMediaIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_media_rss_url
		ON media (rss_url)
		WHERE rss_url IS NOT NULL AND rss_url <> '';
	`).Error; err != nil {
		return fmt.Errorf("create idx_media_rss_url: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_media_api_id
		ON media (api_id)
		WHERE api_id IS NOT NULL AND api_id <> '';
	`).Error; err != nil {
		return fmt.Errorf("create idx_media_api_id: %w", err)
	}
	// Host verification candidate scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_media_host_names_last_verified
		ON media (host_names_last_verified NULLS FIRST);
	`).Error; err != nil {
		return fmt.Errorf("create idx_media_host_names_last_verified: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_media_audio_url
		ON episodes (media_id, audio_url)
		WHERE audio_url <> '';
	`).Error; err != nil {
		return fmt.Errorf("create idx_episodes_media_audio_url: %w", err)
	}
	// Transcription backlog.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_episodes_transcribe_pending
		ON episodes (publish_date DESC)
		WHERE transcribe = TRUE AND downloaded = FALSE;
	`).Error; err != nil {
		return fmt.Errorf("create idx_episodes_transcribe_pending: %w", err)
	}
	return nil
}

func EnsureDiscoveryIndexes(db *gorm.DB) error {
	// Vetting claim scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_discovery_vetting_pending
		ON campaign_media_discoveries (created_at)
		WHERE vetting_status = 'pending' AND enrichment_status = 'completed';
	`).Error; err != nil {
		return fmt.Errorf("create idx_discovery_vetting_pending: %w", err)
	}
	// Stale sweep.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_discovery_vetting_in_progress
		ON campaign_media_discoveries (vetting_locked_at)
		WHERE vetting_status = 'in_progress';
	`).Error; err != nil {
		return fmt.Errorf("create idx_discovery_vetting_in_progress: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_discovery_enrichment_pending
		ON campaign_media_discoveries (created_at)
		WHERE enrichment_status = 'pending';
	`).Error; err != nil {
		return fmt.Errorf("create idx_discovery_enrichment_pending: %w", err)
	}
	return nil
}
