package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"clipflow/config"
	"clipflow/logger"
	"clipflow/models"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps the result to an exit code: 0 for success
// or an expected no-op, 2 for invalid input, 1 for anything else.
func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	defer logger.Close()
	if err == nil {
		return 0
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch models.StatusFor(err) {
	case http.StatusOK:
		return 0
	case http.StatusBadRequest:
		return 2
	default:
		return 1
	}
}

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "clipflow",
		Short:         "Video ingestion, transcoding and analysis pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return models.Invalid("config", err, "invalid configuration")
			}
			if err := logger.Init(loaded.LogFile, true); err != nil {
				return err
			}
			logger.SetLevel(logger.ParseLevel(loaded.LogLevel))
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	conf := func() *config.Config { return cfg }
	rootCmd.AddCommand(newServeCommand(conf))
	rootCmd.AddCommand(newClassifyCommand())
	rootCmd.AddCommand(newUploadCommand(conf))
	rootCmd.AddCommand(newCompleteCommand(conf))
	rootCmd.AddCommand(newAnalyzeCommand(conf))
	return rootCmd
}
