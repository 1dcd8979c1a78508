package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/queue"
	"github.com/benvon/todo-digest/internal/request"
	"github.com/benvon/todo-digest/internal/services/generation"
)

// DefaultPingInterval keeps idle event streams open through proxies
const DefaultPingInterval = 15 * time.Second

// asyncJobTTL bounds how long a queued generation stays eligible to run
const asyncJobTTL = time.Hour

// GenerationRunner starts a generation run and returns its event stream
type GenerationRunner interface {
	Generate(ctx context.Context, userID uuid.UUID) <-chan generation.Event
}

// JobEnqueuer publishes background jobs
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// GenerateHandler streams generation runs over server-sent events and queues background runs
type GenerateHandler struct {
	runner       GenerationRunner
	jobs         JobEnqueuer
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewGenerateHandler creates a generate handler. jobs may be nil when no queue is configured.
func NewGenerateHandler(runner GenerationRunner, jobs JobEnqueuer, log *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		runner:       runner,
		jobs:         jobs,
		pingInterval: DefaultPingInterval,
		logger:       logger.OrNop(log),
	}
}

// RegisterStreamRoutes registers the streaming routes. The router must not buffer responses.
func (h *GenerateHandler) RegisterStreamRoutes(r *mux.Router) {
	r.HandleFunc("/generate", h.Stream).Methods(http.MethodPost, http.MethodGet)
}

// RegisterRoutes registers the non-streaming routes
func (h *GenerateHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generate/async", h.Enqueue).Methods(http.MethodPost)
}

// Stream runs a generation for the authenticated user and writes each event as an SSE data frame
func (h *GenerateHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	rc := http.NewResponseController(w)
	// Runs outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("sse_write_deadline_failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("sse_flush_unsupported", zap.Error(err))
		return
	}

	ctx := r.Context()
	events := h.runner.Generate(ctx, user.ID)

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("sse_client_disconnected", zap.String("user_id", user.ID.String()))
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Warn("sse_write_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev generation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

// EnqueueResponse describes a queued background generation
type EnqueueResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// Enqueue queues a background generation for the authenticated user
func (h *GenerateHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	if h.jobs == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Background generation is not configured")
		return
	}

	job := queue.NewJob(queue.JobTypeGenerateTodos, user.ID)
	notAfter := job.CreatedAt.Add(asyncJobTTL)
	job.NotAfter = &notAfter

	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("generate_enqueue_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to queue generation")
		return
	}

	h.logger.Info("generate_enqueued",
		zap.String("user_id", user.ID.String()),
		zap.String("job_id", job.ID.String()))
	respondJSON(w, http.StatusAccepted, EnqueueResponse{JobID: job.ID, Status: "queued"})
}
