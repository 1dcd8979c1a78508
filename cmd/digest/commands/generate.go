package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benvon/todo-digest/internal/app"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/services/generation"
)

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	var userRef string
	var jsonOutput, debug bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a generation for a user and print its events",
		Long:  "Collect the user's Slack, Gmail and Notion items, ask the model for todos and save the accepted ones, printing progress as it happens",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, debug)
			if err != nil {
				return err
			}
			defer e.close()

			user, err := resolveUser(ctx, database.NewUserRepository(e.db), userRef)
			if err != nil {
				return err
			}

			redisClient := app.ConnectRedis(ctx, e.cfg, e.logger)
			if redisClient != nil {
				defer func() { _ = redisClient.Close() }()
			}

			service, err := app.NewGenerationService(e.cfg, e.db, redisClient, e.logger, debug)
			if err != nil {
				return fmt.Errorf("failed to create generation service: %w", err)
			}

			var last generation.Event
			for ev := range service.Generate(ctx, user.ID) {
				last = ev
				if err := printEvent(cmd.OutOrStdout(), ev, jsonOutput); err != nil {
					return err
				}
			}
			if last.Type == generation.EventError {
				return fmt.Errorf("generation failed: %s", last.Message)
			}
			if !last.Terminal() {
				return fmt.Errorf("generation interrupted")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userRef, "user", "", "User ID or identity-provider subject")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print one JSON event per line")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log pipeline details to stderr")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// printEvent writes ev as a JSON line, or as a short human-readable line
func printEvent(w io.Writer, ev generation.Event, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var err error
	switch ev.Type {
	case generation.EventStatus:
		_, err = fmt.Fprintf(w, "[%s] %s\n", ev.Step, ev.Message)
	case generation.EventTodo:
		_, err = fmt.Fprintf(w, "  + %s %s (%s)\n", ev.Todo.Emoji, ev.Todo.Title, ev.Todo.Priority)
	case generation.EventDone:
		if ev.Message != "" {
			_, err = fmt.Fprintf(w, "done: %s\n", ev.Message)
		} else {
			_, err = fmt.Fprintf(w, "done: %d todos saved\n", len(ev.Todos))
		}
	case generation.EventError:
		_, err = fmt.Fprintf(w, "error: %s\n", ev.Message)
	}
	return err
}
