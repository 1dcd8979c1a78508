package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/benvon/todo-digest/internal/models"
)

// TodoRepositoryInterface defines the interface for todo repository operations
// This interface enables better testability by allowing mock implementations
type TodoRepositoryInterface interface {
	Create(ctx context.Context, todo *models.Todo) error
	ListRecentTitles(ctx context.Context, userID uuid.UUID, limit int) ([]string, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Todo, error)
}

// SettingsRepositoryInterface defines the interface for settings repository operations
type SettingsRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
}

// ConnectionRepositoryInterface defines the interface for provider credential lookups
type ConnectionRepositoryInterface interface {
	Get(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.Connection, error)
}

// UserRepositoryInterface defines the interface for user lookups during authentication
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	EnsureBySubject(ctx context.Context, subject, email string, name *string) (*models.User, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TodoRepositoryInterface       = (*TodoRepository)(nil)
	_ SettingsRepositoryInterface   = (*SettingsRepository)(nil)
	_ ConnectionRepositoryInterface = (*ConnectionRepository)(nil)
	_ UserRepositoryInterface       = (*UserRepository)(nil)
)
