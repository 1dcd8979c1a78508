package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/request"
)

// TodoLister reads a user's saved todos
type TodoLister interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Todo, error)
}

// TodoHandler handles todo-related requests
type TodoHandler struct {
	todos  TodoLister
	logger *zap.Logger
}

// NewTodoHandler creates a new todo handler
func NewTodoHandler(todos TodoLister, log *zap.Logger) *TodoHandler {
	return &TodoHandler{todos: todos, logger: logger.OrNop(log)}
}

// RegisterRoutes registers todo routes on a router already prefixed with /todos
func (h *TodoHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTodos).Methods(http.MethodGet)
}

// ListTodosResponse wraps the user's todos
type ListTodosResponse struct {
	Todos []*models.Todo `json:"todos"`
	Total int            `json:"total"`
}

// ListTodos lists todos for the authenticated user in display order
func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	todos, err := h.todos.ListByUserID(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list_todos_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list todos")
		return
	}
	if todos == nil {
		todos = []*models.Todo{}
	}

	respondJSON(w, http.StatusOK, ListTodosResponse{Todos: todos, Total: len(todos)})
}
