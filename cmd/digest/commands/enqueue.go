package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/todo-digest/internal/app"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/queue"
)

// NewEnqueueCmd creates the enqueue command
func NewEnqueueCmd() *cobra.Command {
	var userRef string
	var delay, ttl time.Duration

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a background generation for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := resolveUser(ctx, database.NewUserRepository(e.db), userRef)
			if err != nil {
				return err
			}

			jobQueue, err := app.ConnectQueue(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = jobQueue.Close() }()

			job := queue.NewJob(queue.JobTypeGenerateTodos, user.ID)
			if delay > 0 {
				notBefore := job.CreatedAt.Add(delay)
				job.NotBefore = &notBefore
			}
			if ttl > 0 {
				notAfter := job.CreatedAt.Add(delay + ttl)
				job.NotAfter = &notAfter
			}
			if err := jobQueue.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for user %s\n", job.ID, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userRef, "user", "", "User ID or identity-provider subject")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Wait this long before running the job")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Drop the job if it has not run within this long (0 keeps it forever)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
