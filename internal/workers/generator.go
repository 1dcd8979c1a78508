package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/metrics"
	"github.com/benvon/todo-digest/internal/queue"
	"github.com/benvon/todo-digest/internal/services/ai"
	"github.com/benvon/todo-digest/internal/services/generation"
)

// Runner starts a generation run and streams its events
type Runner interface {
	Generate(ctx context.Context, userID uuid.UUID) <-chan generation.Event
}

// Enqueuer publishes jobs for later processing
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// DefaultJobTimeout bounds one background generation, including all fetches and the model call
const DefaultJobTimeout = 3 * time.Minute

// TodoGenerator processes background generation jobs
type TodoGenerator struct {
	runner   Runner
	jobQueue Enqueuer
	timeout  time.Duration
	logger   *zap.Logger
}

// NewTodoGenerator creates a new generation worker. jobQueue may be nil, in which case
// throttled jobs are requeued without a delay.
func NewTodoGenerator(runner Runner, jobQueue Enqueuer, timeout time.Duration, log *zap.Logger) *TodoGenerator {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &TodoGenerator{
		runner:   runner,
		jobQueue: jobQueue,
		timeout:  timeout,
		logger:   logger.OrNop(log),
	}
}

// Run processes messages until ctx is cancelled or the delivery channel closes
func (g *TodoGenerator) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			g.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				g.logger.Info("queue_consumer_closed")
				return
			}
			if err := g.ProcessJob(ctx, msg); err != nil {
				job := msg.GetJob()
				g.logger.Error("job_failed",
					zap.String("job_id", job.ID.String()),
					zap.String("job_type", string(job.Type)),
					zap.Error(err))
			}
		}
	}
}

// ProcessJob runs one job and settles its message
func (g *TodoGenerator) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if err := job.Validate(); err != nil {
		metrics.RecordJob(string(job.Type), "invalid")
		if nackErr := msg.Nack(false); nackErr != nil {
			g.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return err
	}

	saved, err := g.generate(ctx, job.UserID)
	if err != nil {
		return g.handleJobError(ctx, msg, job, err)
	}

	metrics.RecordJob(string(job.Type), "success")
	g.logger.Info("job_completed",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID.String()),
		zap.Int("todos_saved", saved))
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// generate drains a run and reports how many todos it saved, or the cause of its error event
func (g *TodoGenerator) generate(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var last generation.Event
	for ev := range g.runner.Generate(ctx, userID) {
		last = ev
	}

	switch last.Type {
	case generation.EventDone:
		return len(last.Todos), nil
	case generation.EventError:
		if last.Err != nil {
			return 0, last.Err
		}
		return 0, errors.New(last.Message)
	default:
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("generation interrupted: %w", err)
		}
		return 0, errors.New("generation ended without a result")
	}
}

func (g *TodoGenerator) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", logger.SanitizeError(err)),
	}

	if errors.Is(err, generation.ErrSettingsNotFound) {
		g.logger.Warn("job_dropped_no_settings", fields...)
		return g.deadLetter(msg, job, err)
	}

	// Only a throttled model call is rescheduled. Any other failure, a bad model reply
	// included, waits for the user to run generation again.
	if !ai.IsQuotaError(err) && !ai.IsRateLimitError(err) {
		g.logger.Warn("job_failed_not_retryable", fields...)
		return g.deadLetter(msg, job, err)
	}

	if !job.CanRetry() {
		g.logger.Warn("job_retries_exhausted", fields...)
		return g.deadLetter(msg, job, err)
	}

	delay := ai.GetRetryDelay(err, job.RetryCount)

	if g.jobQueue != nil {
		if ackErr := msg.Ack(); ackErr != nil {
			g.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
		}
		next := job.Retry(delay)
		if enqueueErr := g.jobQueue.Enqueue(ctx, next); enqueueErr != nil {
			metrics.RecordJob(string(job.Type), "failed")
			return fmt.Errorf("failed to re-enqueue job: %w", enqueueErr)
		}
		metrics.RecordJob(string(job.Type), "retried")
		g.logger.Info("job_rescheduled", append(fields,
			zap.Duration("delay", delay),
			zap.Time("not_before", *next.NotBefore))...)
		return nil
	}

	metrics.RecordJob(string(job.Type), "retried")
	if nackErr := msg.Nack(true); nackErr != nil {
		g.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (will retry): %w", err)
}

func (g *TodoGenerator) deadLetter(msg queue.MessageInterface, job *queue.Job, err error) error {
	metrics.RecordJob(string(job.Type), "dead_lettered")
	if nackErr := msg.Nack(false); nackErr != nil {
		g.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
	}
	return fmt.Errorf("job failed permanently: %w", err)
}
