package main

import (
	"fmt"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/db/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var flagStatus bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.OpenWithConfig(cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer database.Close()

			out := cmd.OutOrStdout()

			if flagStatus {
				latest, err := migrations.LatestVersion()
				if err != nil {
					return err
				}
				version, dirty, err := migrations.CurrentVersion(database.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "current: %d (dirty: %t)\nlatest:  %d\n", version, dirty, latest)
				return migrations.CheckStatus(database.DB)
			}

			if err := database.Migrate(); err != nil {
				return err
			}
			version, err := database.SchemaVersion()
			if err != nil {
				return err
			}
			logger.Info("database migrated", "version", version)
			fmt.Fprintf(out, "schema at version %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagStatus, "status", false, "Report the schema version without migrating")
	return cmd
}
