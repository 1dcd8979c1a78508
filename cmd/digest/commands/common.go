package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
)

// env holds the connections a command needs
type env struct {
	cfg    *config.Config
	db     *database.DB
	logger *zap.Logger
}

// openEnv loads configuration, creates a logger and connects to the database
func openEnv(ctx context.Context, debug bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr only with --debug so stdout stays parseable.
	zapLogger := zap.NewNop()
	if debug {
		if zapLogger, err = logger.New(true, "console"); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &env{cfg: cfg, db: db, logger: zapLogger}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	_ = logger.Sync(e.logger)
}

// userLookup is the subset of the user repository needed to resolve --user
type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
}

// resolveUser accepts a user id or an identity-provider subject
func resolveUser(ctx context.Context, users userLookup, ref string) (*models.User, error) {
	if ref == "" {
		return nil, fmt.Errorf("--user is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		user, err := users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to find user %s: %w", ref, err)
		}
		return user, nil
	}
	user, err := users.GetBySubject(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to find user with subject %q: %w", ref, err)
	}
	return user, nil
}
