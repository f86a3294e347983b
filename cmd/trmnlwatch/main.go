package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/livinlefevreloca/trmnlwatch/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagConfig string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trmnlwatch",
	Short: "Background sync and alerts for TRMNL devices",
	Long: `trmnlwatch records device battery history, warns when a device runs low,
and keeps announcements and blog posts in sync with their read state.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(flagConfig)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		cfg = loaded
		logger = cfg.Logging.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to configuration file (TOML)")
	rootCmd.AddCommand(
		newRunCmd(),
		newTriggerCmd(),
		newMigrateCmd(),
		newReadingsCmd(),
		newFeedCmd(),
		newRunsCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("trmnlwatch command failed", "error", err)
		os.Exit(1)
	}
}
