package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/todo-digest/internal/models"
)

// TodoRepository handles todo database operations
type TodoRepository struct {
	db *DB
}

// NewTodoRepository creates a new todo repository
func NewTodoRepository(db *DB) *TodoRepository {
	return &TodoRepository{db: db}
}

// Create inserts a todo at the end of the user's list (position max+1)
func (r *TodoRepository) Create(ctx context.Context, todo *models.Todo) error {
	query := `
		INSERT INTO todos (id, user_id, title, description, due_date, priority, emoji, tag, tag_color,
			completed, position, sources, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM todos WHERE user_id = $2),
			$11, $12, $12)
		RETURNING position, created_at, updated_at
	`

	sourcesJSON, err := marshalSources(todo.Sources)
	if err != nil {
		return err
	}

	now := time.Now()
	err = r.db.QueryRowContext(ctx, query,
		todo.ID,
		todo.UserID,
		todo.Title,
		todo.Description,
		todo.DueDate,
		todo.Priority,
		todo.Emoji,
		todo.Tag,
		todo.TagColor,
		todo.Completed,
		sourcesJSON,
		now,
	).Scan(&todo.Position, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create todo: %w", err)
	}

	return nil
}

// ListRecentTitles returns up to limit titles of the user's most recently created todos
func (r *TodoRepository) ListRecentTitles(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	query := `
		SELECT title
		FROM todos
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list todo titles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	titles := make([]string, 0, limit)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan todo title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todo titles: %w", err)
	}
	return titles, nil
}

// ListByUserID returns the user's todos in list order
func (r *TodoRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Todo, error) {
	query := `
		SELECT id, user_id, title, description, due_date, priority, emoji, tag, tag_color,
			completed, position, sources, created_at, updated_at
		FROM todos
		WHERE user_id = $1
		ORDER BY position ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	todos := []*models.Todo{}
	for rows.Next() {
		todo := &models.Todo{}
		var sourcesJSON []byte
		if err := rows.Scan(
			&todo.ID,
			&todo.UserID,
			&todo.Title,
			&todo.Description,
			&todo.DueDate,
			&todo.Priority,
			&todo.Emoji,
			&todo.Tag,
			&todo.TagColor,
			&todo.Completed,
			&todo.Position,
			&sourcesJSON,
			&todo.CreatedAt,
			&todo.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		if todo.Sources, err = unmarshalSources(sourcesJSON); err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}
	return todos, nil
}

// marshalSources always stores a JSON array, never null
func marshalSources(sources []models.TodoSource) ([]byte, error) {
	if sources == nil {
		sources = []models.TodoSource{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sources: %w", err)
	}
	return data, nil
}

func unmarshalSources(data []byte) ([]models.TodoSource, error) {
	sources := []models.TodoSource{}
	if len(data) == 0 {
		return sources, nil
	}
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
	}
	if sources == nil {
		sources = []models.TodoSource{}
	}
	return sources, nil
}
