package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/foreman/internal/cli"
	"github.com/aretw0/foreman/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Foreman coordinates autonomous work delegation",
	Long: `Foreman watches a work item queue, picks eligible items according to a
workflow descriptor, and hands them to autonomous agents. Agents report
back through the callback API to move items through the workflow.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to foreman.yaml (default: ./foreman.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig reads the configuration named by --config.
func loadConfig(cmd *cobra.Command) (cli.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return cli.LoadConfig(path)
}

// createLogger builds the application logger from flags and config.
func createLogger(cmd *cobra.Command, cfg cli.Config) *slog.Logger {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.New(logging.ParseLevel(cfg.LogLevel))
}

// buildRuntime is the shared entry point for commands that need the wired
// application.
func buildRuntime(cmd *cobra.Command) (*cli.Runtime, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := createLogger(cmd, cfg)
	rt, err := cli.BuildRuntime(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, logger, nil
}
