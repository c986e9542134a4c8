package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/summitlabs/summit-api/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// loadedCfg holds the configuration loaded by PersistentPreRunE. Available
// to all subcommands after the root pre-run phase completes.
var loadedCfg *config.Config

// logLevel is shared between the logger and the config reload watcher so a
// log level change in the config file takes effect without a restart.
var logLevel = new(slog.LevelVar)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "summit-api",
		Short:   "Habit tracking sync API server",
		Long:    "HTTP API server for habit check-in synchronization: idempotent push, optimistic concurrency, resumable change feed.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadOrDefault(flagConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			loadedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "force JSON log output")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newHabitCmd())

	return cmd
}

// buildLogger creates an slog.Logger from the loaded config and CLI flags.
// Config supplies the baseline level and format; --verbose, --quiet, and
// --json override it because CLI flags always win. The returned logger
// shares logLevel, so the reload watcher can retune it live.
func buildLogger(cfg *config.Config) *slog.Logger {
	applyLogLevel(cfg)

	opts := &slog.HandlerOptions{Level: logLevel}

	format := cfg.Logging.LogFormat
	if flagJSON {
		format = "json"
	}

	if format == "auto" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// applyLogLevel retunes the shared level var. Called at startup and again on
// every config reload.
func applyLogLevel(cfg *config.Config) {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	logLevel.Set(level)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
