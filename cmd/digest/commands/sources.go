package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/database"
	"github.com/benvon/todo-digest/internal/models"
)

// NewConnectCmd creates the connect command
func NewConnectCmd() *cobra.Command {
	var userRef, token, teamID string

	cmd := &cobra.Command{
		Use:   "connect <slack|gmail|notion>",
		Short: "Store a provider credential for a user",
		Long:  "Store an OAuth access token (Slack, Gmail) or integration key (Notion) used when collecting the user's items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := models.Provider(args[0])
			switch provider {
			case models.ProviderSlack, models.ProviderGmail, models.ProviderNotion:
			default:
				return fmt.Errorf("unknown provider %q", args[0])
			}
			if token == "" {
				return fmt.Errorf("--token is required")
			}

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

			conn := &models.Connection{UserID: user.ID, Provider: provider, AccessToken: token, TeamID: teamID}
			if err := database.NewConnectionRepository(e.db).Upsert(ctx, conn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s connection for user %s\n", provider, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userRef, "user", "", "User ID or identity-provider subject")
	cmd.Flags().StringVar(&token, "token", "", "Access token or integration key")
	cmd.Flags().StringVar(&teamID, "team", "", "Slack workspace ID, used to key the user-name cache")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// NewSettingsCmd creates the settings command
func NewSettingsCmd() *cobra.Command {
	var userRef, timezone string
	var slackChannels, notionPages []string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update a user's allow-lists and time zone",
		Long:  "Without update flags, print the user's settings. Any of --slack-channels, --notion-pages or --timezone replaces that field.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if timezone != "" {
				if _, err := time.LoadLocation(timezone); err != nil {
					return fmt.Errorf("invalid --timezone %q: %w", timezone, err)
				}
			}

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

			repo := database.NewSettingsRepository(e.db)
			settings, err := repo.GetByUserID(ctx, user.ID)
			switch {
			case errors.Is(err, database.ErrNotFound):
				settings = &models.UserSettings{UserID: user.ID}
			case err != nil:
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("slack-channels") || flags.Changed("notion-pages") || flags.Changed("timezone") {
				if flags.Changed("slack-channels") {
					settings.SlackChannelIDs = slackChannels
				}
				if flags.Changed("notion-pages") {
					settings.NotionPageIDs = notionPages
				}
				if flags.Changed("timezone") {
					settings.Timezone = timezone
				}
				if err := repo.Upsert(ctx, settings); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:           %s\n", user.ID)
			fmt.Fprintf(out, "Slack channels: %v\n", settings.SlackChannelIDs)
			fmt.Fprintf(out, "Notion pages:   %v\n", settings.NotionPageIDs)
			tz := settings.Timezone
			if tz == "" {
				tz = e.cfg.Timezone + " (default)"
			}
			fmt.Fprintf(out, "Time zone:      %s\n", tz)
			return nil
		},
	}

	cmd.Flags().StringVar(&userRef, "user", "", "User ID or identity-provider subject")
	cmd.Flags().StringSliceVar(&slackChannels, "slack-channels", nil, "Slack channel IDs to scan (empty scans every channel)")
	cmd.Flags().StringSliceVar(&notionPages, "notion-pages", nil, "Notion page IDs to include (empty includes every page)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone for due dates")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// NewLimitsCmd creates the limits command
func NewLimitsCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Print the effective pipeline limits",
		Long:  "Print the built-in limits overlaid with --file (or LIMITS_FILE), in the YAML shape the file accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("LIMITS_FILE")
			}
			limits, err := config.LoadLimits(file)
			if err != nil {
				return err
			}
			out, err := limits.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Limits YAML file to validate and render")

	return cmd
}
