package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/generation"
)

type mockUserLookup struct {
	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetBySubjectFunc func(ctx context.Context, subject string) (*models.User, error)
}

func (m *mockUserLookup) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockUserLookup) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	return m.GetBySubjectFunc(ctx, subject)
}

func TestResolveUser(t *testing.T) {
	t.Parallel()

	known := &models.User{ID: uuid.New(), Subject: "auth0|abc"}
	users := &mockUserLookup{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.User, error) {
			if id == known.ID {
				return known, nil
			}
			return nil, fmt.Errorf("user %w", database.ErrNotFound)
		},
		GetBySubjectFunc: func(ctx context.Context, subject string) (*models.User, error) {
			if subject == known.Subject {
				return known, nil
			}
			return nil, fmt.Errorf("user %w", database.ErrNotFound)
		},
	}

	tests := []struct {
		name        string
		ref         string
		expectError bool
	}{
		{name: "by id", ref: known.ID.String()},
		{name: "by subject", ref: "auth0|abc"},
		{name: "unknown id", ref: uuid.NewString(), expectError: true},
		{name: "unknown subject", ref: "google|zzz", expectError: true},
		{name: "empty", ref: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			user, err := resolveUser(context.Background(), users, tt.ref)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if user.ID != known.ID {
				t.Errorf("Expected user %s, got %s", known.ID, user.ID)
			}
		})
	}
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()

	todo := &models.Todo{Title: "Reply to Dana", Emoji: "📧", Priority: models.PriorityHigh}

	tests := []struct {
		name string
		ev   generation.Event
		json bool
		want string
	}{
		{
			name: "status",
			ev:   generation.Event{Type: generation.EventStatus, Step: generation.StepGmail, Message: "Fetching Gmail messages..."},
			want: "[gmail] Fetching Gmail messages...\n",
		},
		{
			name: "todo",
			ev:   generation.Event{Type: generation.EventTodo, Todo: todo},
			want: "  + 📧 Reply to Dana (high)\n",
		},
		{
			name: "done with count",
			ev:   generation.Event{Type: generation.EventDone, Todos: []*models.Todo{todo}},
			want: "done: 1 todos saved\n",
		},
		{
			name: "done with message",
			ev:   generation.Event{Type: generation.EventDone, Message: "No new items found in connected sources"},
			want: "done: No new items found in connected sources\n",
		},
		{
			name: "error",
			ev:   generation.Event{Type: generation.EventError, Message: "settings not found"},
			want: "error: settings not found\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := printEvent(&buf, tt.ev, false); err != nil {
				t.Fatalf("printEvent() error: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("printEvent() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintEvent_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ev := generation.Event{Type: generation.EventStatus, Step: generation.StepAI, Message: "Generating todos..."}
	if err := printEvent(&buf, ev, true); err != nil {
		t.Fatalf("printEvent() error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
	}
	if got["type"] != "status" || got["step"] != "ai" {
		t.Errorf("Unexpected event %v", got)
	}
}

func TestLimitsCmd(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "limits.yaml")
	if err := os.WriteFile(path, []byte("gmail:\n  max_results: 5\n"), 0o600); err != nil {
		t.Fatalf("failed to write limits: %v", err)
	}

	cmd := NewLimitsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(out.String(), "max_results: 5") {
		t.Errorf("Expected overridden gmail max_results, got:\n%s", out.String())
	}
}
