package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/todo-digest/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, "id", id)
}

// GetBySubject retrieves a user by the identity provider's subject claim
func (r *UserRepository) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	return r.getOne(ctx, "subject", subject)
}

func (r *UserRepository) getOne(ctx context.Context, column string, value any) (*models.User, error) {
	user := &models.User{}
	// column is always one of the literals above
	query := `
		SELECT id, email, subject, name, created_at, updated_at
		FROM users
		WHERE ` + column + ` = $1
	`

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Email,
		&user.Subject,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// EnsureBySubject returns the user for subject, creating it on first sign-in
func (r *UserRepository) EnsureBySubject(ctx context.Context, subject, email string, name *string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, subject, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (subject) DO UPDATE SET
			email = EXCLUDED.email,
			name = COALESCE(EXCLUDED.name, users.name),
			updated_at = EXCLUDED.updated_at
		RETURNING id, email, subject, name, created_at, updated_at
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, uuid.New(), email, subject, name, time.Now()).Scan(
		&user.ID,
		&user.Email,
		&user.Subject,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return user, nil
}
