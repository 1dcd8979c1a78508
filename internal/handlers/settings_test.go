package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/models"
)

type mockSettingsStore struct {
	GetByUserIDFunc func(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
	UpsertFunc      func(ctx context.Context, settings *models.UserSettings) error
}

func (m *mockSettingsStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
	return m.GetByUserIDFunc(ctx, userID)
}

func (m *mockSettingsStore) Upsert(ctx context.Context, settings *models.UserSettings) error {
	return m.UpsertFunc(ctx, settings)
}

type mockConnectionStore struct {
	UpsertFunc func(ctx context.Context, conn *models.Connection) error
}

func (m *mockConnectionStore) Upsert(ctx context.Context, conn *models.Connection) error {
	return m.UpsertFunc(ctx, conn)
}

func TestSettingsHandler_GetSettings(t *testing.T) {
	t.Parallel()

	user := testUser()

	tests := []struct {
		name       string
		get        func(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
		wantStatus int
		wantTZ     string
	}{
		{
			name: "stored settings",
			get: func(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
				return &models.UserSettings{UserID: userID, SlackChannelIDs: []string{"C1"}, Timezone: "Europe/Berlin"}, nil
			},
			wantStatus: http.StatusOK,
			wantTZ:     "Europe/Berlin",
		},
		{
			name: "missing settings default to empty",
			get: func(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
				return nil, fmt.Errorf("settings %w", database.ErrNotFound)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "repository failure",
			get: func(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error) {
				return nil, errors.New("connection refused")
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewSettingsHandler(&mockSettingsStore{GetByUserIDFunc: tt.get}, nil, nil)
			w := httptest.NewRecorder()
			h.GetSettings(w, newTestRequest(http.MethodGet, "/api/v1/settings", nil, user))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Data models.UserSettings `json:"data"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Data.UserID != user.ID {
				t.Errorf("Expected settings for %s, got %s", user.ID, body.Data.UserID)
			}
			if body.Data.Timezone != tt.wantTZ {
				t.Errorf("Expected timezone %q, got %q", tt.wantTZ, body.Data.Timezone)
			}
		})
	}
}

func TestSettingsHandler_UpdateSettings(t *testing.T) {
	t.Parallel()

	user := testUser()

	tests := []struct {
		name       string
		body       any
		upsertErr  error
		wantStatus int
		wantSaved  bool
	}{
		{
			name:       "valid update",
			body:       UpdateSettingsRequest{SlackChannelIDs: []string{"C1", "C2"}, NotionPageIDs: []string{"p1"}, Timezone: "Asia/Seoul"},
			wantStatus: http.StatusOK,
			wantSaved:  true,
		},
		{
			name:       "invalid timezone",
			body:       UpdateSettingsRequest{Timezone: "Nowhere/Town"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing body",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			body:       UpdateSettingsRequest{SlackChannelIDs: []string{"C1"}},
			upsertErr:  errors.New("deadlock"),
			wantStatus: http.StatusInternalServerError,
			wantSaved:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var saved *models.UserSettings
			store := &mockSettingsStore{UpsertFunc: func(ctx context.Context, s *models.UserSettings) error {
				saved = s
				return tt.upsertErr
			}}

			h := NewSettingsHandler(store, nil, nil)
			w := httptest.NewRecorder()
			h.UpdateSettings(w, newTestRequest(http.MethodPut, "/api/v1/settings", tt.body, user))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if (saved != nil) != tt.wantSaved {
				t.Fatalf("Expected saved=%v, got %+v", tt.wantSaved, saved)
			}
			if saved != nil && saved.UserID != user.ID {
				t.Errorf("Expected settings scoped to %s, got %s", user.ID, saved.UserID)
			}
		})
	}
}

func TestSettingsHandler_UpdateConnection(t *testing.T) {
	t.Parallel()

	user := testUser()

	tests := []struct {
		name       string
		provider   string
		body       any
		wantStatus int
	}{
		{
			name:       "slack with team",
			provider:   "slack",
			body:       UpdateConnectionRequest{AccessToken: "xoxp-1", TeamID: "T1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "notion integration key",
			provider:   "notion",
			body:       UpdateConnectionRequest{AccessToken: "secret_abc"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown provider",
			provider:   "jira",
			body:       UpdateConnectionRequest{AccessToken: "tok"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "blank token",
			provider:   "gmail",
			body:       UpdateConnectionRequest{AccessToken: "   "},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var saved *models.Connection
			conns := &mockConnectionStore{UpsertFunc: func(ctx context.Context, c *models.Connection) error {
				saved = c
				return nil
			}}

			router := mux.NewRouter()
			NewSettingsHandler(nil, conns, nil).RegisterRoutes(router)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, newTestRequest(http.MethodPut, "/connections/"+tt.provider, tt.body, user))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if saved != nil {
					t.Error("Expected nothing saved")
				}
				return
			}
			if saved == nil || string(saved.Provider) != tt.provider || saved.UserID != user.ID {
				t.Fatalf("Unexpected saved connection %+v", saved)
			}
			if strings.Contains(w.Body.String(), saved.AccessToken) {
				t.Error("Expected access token not to be echoed")
			}
		})
	}
}
