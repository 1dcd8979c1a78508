package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/todo-digest/cmd/digest/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "todo-digest",
		Short: "Operator tool for Todo Digest",
		Long:  "CLI tool for running generations, queueing background jobs and managing user sources",
	}

	rootCmd.AddCommand(commands.NewGenerateCmd())
	rootCmd.AddCommand(commands.NewEnqueueCmd())
	rootCmd.AddCommand(commands.NewConnectCmd())
	rootCmd.AddCommand(commands.NewSettingsCmd())
	rootCmd.AddCommand(commands.NewLimitsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
