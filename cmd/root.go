package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/app"
	"github.com/Tiliavir/study-timer/internal/config"
	"github.com/Tiliavir/study-timer/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stt",
	Short: "Study Timer – time study sessions and mirror them to Notion",
	Long: `stt records timed study sessions. Start a session, stop it later, and the
elapsed time is stored and optionally pushed to a Notion database.
Sessions live in ~/.studytimer/ by default; SQLite, Postgres and Redis
stores can be selected in ~/.studytimer/config.json.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCode is returned by commands that already reported their failure.
// Execute exits with it once the command's deferred cleanup has run.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

// exitStatus maps a command error to the process exit status.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	return 1
}

// Execute is the entry point called from main.
func Execute() {
	err := rootCmd.Execute()
	var code exitCode
	if err != nil && !errors.As(err, &code) {
		fmt.Fprintln(os.Stderr, err)
	}
	if status := exitStatus(err); status != 0 {
		os.Exit(status)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.studytimer/config.json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
}

// loadConfig reads the config selected by --config, exiting on failure.
func loadConfig() config.Config {
	var (
		cfg config.Config
		err error
	)
	if configPath == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFrom(configPath, os.Getenv)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// newLogger builds the logger for cfg, falling back to defaultFormat when
// the config leaves the format empty.
func newLogger(cfg config.Config, defaultFormat string) *slog.Logger {
	format := cfg.Log.Format
	if format == "" {
		format = defaultFormat
	}
	logger, err := logging.New(cfg.Log.Level, format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return logger
}

// openInfra wires store and service for a one-shot CLI command. CLI commands
// log warnings only, so the terminal stays readable.
func openInfra(ctx context.Context) *app.Infra {
	cfg := loadConfig()
	if cfg.Log.Level == config.DefaultLogLevel {
		cfg.Log.Level = "warn"
	}
	infra, err := app.SetupInfra(ctx, cfg, newLogger(cfg, "text"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return infra
}
