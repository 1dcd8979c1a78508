package models

import (
	"time"

	"github.com/google/uuid"
)

// UserSettings holds per-user generation preferences, including provider allow-lists
type UserSettings struct {
	UserID          uuid.UUID `json:"user_id"`
	SlackChannelIDs []string  `json:"slack_channel_ids"`
	NotionPageIDs   []string  `json:"notion_page_ids"`
	Timezone        string    `json:"timezone,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Connection is a stored provider credential for a user.
// AccessToken is an OAuth bearer token or, for Notion, an integration key.
type Connection struct {
	UserID      uuid.UUID `json:"user_id"`
	Provider    Provider  `json:"provider"`
	AccessToken string    `json:"-"`
	TeamID      string    `json:"team_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
