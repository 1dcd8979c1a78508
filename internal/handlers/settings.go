package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/request"
)

// SettingsStore reads and writes per-user generation settings
type SettingsStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserSettings, error)
	Upsert(ctx context.Context, settings *models.UserSettings) error
}

// ConnectionStore stores provider credentials
type ConnectionStore interface {
	Upsert(ctx context.Context, conn *models.Connection) error
}

// SettingsHandler manages allow-lists, time zone and provider connections
type SettingsHandler struct {
	settings    SettingsStore
	connections ConnectionStore
	logger      *zap.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings SettingsStore, connections ConnectionStore, log *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, connections: connections, logger: logger.OrNop(log)}
}

// RegisterRoutes registers settings and connection routes on the API router
func (h *SettingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPut)
	r.HandleFunc("/connections/{provider}", h.UpdateConnection).Methods(http.MethodPut)
}

// UpdateSettingsRequest replaces the user's settings
type UpdateSettingsRequest struct {
	SlackChannelIDs []string `json:"slack_channel_ids" validate:"max=100,dive,notblank,max=64"`
	NotionPageIDs   []string `json:"notion_page_ids" validate:"max=100,dive,notblank,max=64"`
	Timezone        string   `json:"timezone" validate:"omitempty,timezone"`
}

// UpdateConnectionRequest stores a provider credential
type UpdateConnectionRequest struct {
	AccessToken string `json:"access_token" validate:"required,notblank,max=4096"`
	TeamID      string `json:"team_id" validate:"omitempty,max=64"`
}

// GetSettings returns the user's settings, or empty settings when none are stored
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	settings, err := h.settings.GetByUserID(r.Context(), user.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		settings = &models.UserSettings{UserID: user.ID, SlackChannelIDs: []string{}, NotionPageIDs: []string{}}
	case err != nil:
		h.logger.Error("get_settings_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load settings")
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettings replaces the user's allow-lists and time zone
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req UpdateSettingsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	settings := &models.UserSettings{
		UserID:          user.ID,
		SlackChannelIDs: req.SlackChannelIDs,
		NotionPageIDs:   req.NotionPageIDs,
		Timezone:        req.Timezone,
	}
	if err := h.settings.Upsert(r.Context(), settings); err != nil {
		h.logger.Error("update_settings_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save settings")
		return
	}

	h.logger.Info("settings_updated",
		zap.String("user_id", user.ID.String()),
		zap.Int("slack_channels", len(settings.SlackChannelIDs)),
		zap.Int("notion_pages", len(settings.NotionPageIDs)))
	respondJSON(w, http.StatusOK, settings)
}

// UpdateConnection stores the credential for one provider
func (h *SettingsHandler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	provider := models.Provider(mux.Vars(r)["provider"])
	switch provider {
	case models.ProviderSlack, models.ProviderGmail, models.ProviderNotion:
	default:
		respondJSONError(w, http.StatusNotFound, "Not Found", "Unknown provider")
		return
	}

	var req UpdateConnectionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	conn := &models.Connection{
		UserID:      user.ID,
		Provider:    provider,
		AccessToken: req.AccessToken,
		TeamID:      req.TeamID,
	}
	if err := h.connections.Upsert(r.Context(), conn); err != nil {
		h.logger.Error("update_connection_failed",
			zap.String("user_id", user.ID.String()),
			zap.String("provider", string(provider)),
			zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save connection")
		return
	}

	h.logger.Info("connection_updated", zap.String("user_id", user.ID.String()), zap.String("provider", string(provider)))
	respondJSON(w, http.StatusOK, conn)
}
