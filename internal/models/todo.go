package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the urgency assigned to a todo
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NormalizePriority maps free-form model output onto a known priority, defaulting to medium
func NormalizePriority(p string) Priority {
	switch Priority(p) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(p)
	default:
		return PriorityMedium
	}
}

// TodoSource references the SourceItem a todo was derived from
type TodoSource struct {
	Type  SourceType `json:"type" validate:"omitempty,source_type"`
	ID    string     `json:"id" validate:"required,notblank"`
	Link  string     `json:"link" validate:"required,notblank"`
	Title string     `json:"title,omitempty"`
}

// TodoCandidate is a todo proposed by the model before acceptance
type TodoCandidate struct {
	Title       string       `json:"title" validate:"required,notblank,max=200"`
	Description string       `json:"description,omitempty"`
	DueDate     string       `json:"dueDate,omitempty"`
	Priority    string       `json:"priority,omitempty"`
	Emoji       string       `json:"emoji,omitempty"`
	Tag         string       `json:"tag,omitempty"`
	TagColor    string       `json:"tagColor,omitempty"`
	Sources     []TodoSource `json:"sources" validate:"min=1,dive"`
}

// Todo represents a persisted todo item
type Todo struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	DueDate     string       `json:"due_date,omitempty"`
	Priority    Priority     `json:"priority"`
	Emoji       string       `json:"emoji,omitempty"`
	Tag         string       `json:"tag,omitempty"`
	TagColor    string       `json:"tag_color,omitempty"`
	Completed   bool         `json:"completed"`
	Position    int          `json:"position"`
	Sources     []TodoSource `json:"sources"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTodoFromCandidate builds an unsaved todo for the user from an accepted candidate
func NewTodoFromCandidate(userID uuid.UUID, c TodoCandidate) *Todo {
	sources := c.Sources
	if sources == nil {
		sources = []TodoSource{}
	}
	return &Todo{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       c.Title,
		Description: c.Description,
		DueDate:     c.DueDate,
		Priority:    NormalizePriority(c.Priority),
		Emoji:       c.Emoji,
		Tag:         c.Tag,
		TagColor:    c.TagColor,
		Sources:     sources,
	}
}
