package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/todo-digest/internal/models"
)

// ConnectionRepository stores provider credentials per user
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Get returns the user's connection for provider, or an error wrapping ErrNotFound
func (r *ConnectionRepository) Get(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error) {
	conn := &models.Connection{}
	query := `
		SELECT user_id, provider, access_token, team_id, updated_at
		FROM provider_connections
		WHERE user_id = $1 AND provider = $2
	`

	err := r.db.QueryRowContext(ctx, query, userID, string(provider)).Scan(
		&conn.UserID,
		&conn.Provider,
		&conn.AccessToken,
		&conn.TeamID,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(string(provider)+" connection", err)
	}
	return conn, nil
}

// Upsert stores or replaces a provider connection
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *models.Connection) error {
	query := `
		INSERT INTO provider_connections (user_id, provider, access_token, team_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			team_id = EXCLUDED.team_id,
			updated_at = EXCLUDED.updated_at
	`

	conn.UpdatedAt = time.Now()
	if _, err := r.db.ExecContext(ctx, query,
		conn.UserID,
		string(conn.Provider),
		conn.AccessToken,
		conn.TeamID,
		conn.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}
