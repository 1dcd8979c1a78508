package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/benvon/todo-digest/internal/models"
)

// SettingsRepository handles user settings database operations
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetByUserID returns the user's settings, or an error wrapping ErrNotFound
func (r *SettingsRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	settings := &models.UserSettings{}
	query := `
		SELECT user_id, slack_channel_ids, notion_page_ids, timezone, created_at, updated_at
		FROM user_settings
		WHERE user_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID,
		pq.Array(&settings.SlackChannelIDs),
		pq.Array(&settings.NotionPageIDs),
		&settings.Timezone,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		return nil, notFound("settings", err)
	}
	return settings, nil
}

// Upsert creates or replaces the user's settings
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.UserSettings) error {
	query := `
		INSERT INTO user_settings (user_id, slack_channel_ids, notion_page_ids, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			slack_channel_ids = EXCLUDED.slack_channel_ids,
			notion_page_ids = EXCLUDED.notion_page_ids,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		settings.UserID,
		pq.Array(cleanIDs(settings.SlackChannelIDs)),
		pq.Array(cleanIDs(settings.NotionPageIDs)),
		settings.Timezone,
		now,
	).Scan(&settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

// cleanIDs trims allow-list entries and drops blanks and repeats
func cleanIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
