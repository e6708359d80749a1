package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/config"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ccg",
	Short: "Cloud Cost Guardian - AWS budget monitoring and alerting",
	Long: `Cloud Cost Guardian compares AWS spend against user-defined and AWS native
budgets and sends threshold alerts by email, pub/sub and chat webhooks.
Run it as a daemon with 'ccg serve' or drive single runs from the CLI.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.ccg/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// openStorage opens the budget database from config.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}
