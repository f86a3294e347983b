package main

import (
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/trmnlwatch/internal/config"
	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
	"github.com/livinlefevreloca/trmnlwatch/internal/notify"
	"github.com/livinlefevreloca/trmnlwatch/internal/prefs"
	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// openDatabase connects and, unless configured otherwise, migrates
func openDatabase(cfg *config.Config, logger *slog.Logger) (*db.DB, error) {
	logger.Info("connecting to database", "driver", cfg.Database.Driver, "dsn", cfg.Database.DSN)
	database, err := db.OpenWithConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Database.SkipMigrations {
		logger.Info("skipping migrations", "reason", "configured to skip")
		return database, nil
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	version, err := database.SchemaVersion()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	logger.Info("database schema ready", "version", version)
	return database, nil
}

// preferenceSource re-reads [preferences] from the config file on every job
// run when there is one
func preferenceSource(cfg *config.Config) prefs.Source {
	creds := &prefs.EnvCredential{
		Name:       cfg.API.CredentialEnv,
		DotEnvPath: cfg.API.DotEnvPath,
	}
	if cfg.Path == "" {
		return &prefs.StaticSource{Prefs: cfg.Preferences, Credentials: creds}
	}
	return &prefs.FileSource{
		Path:        cfg.Path,
		Defaults:    prefs.DefaultPreferences(),
		Credentials: creds,
	}
}

// buildJobs wires every job against the live API and database
func buildJobs(cfg *config.Config, database *db.DB, logger *slog.Logger) ([]jobs.Job, error) {
	client, err := trmnl.NewClient(cfg.API, cfg.FeedURLs(), nil, logger)
	if err != nil {
		return nil, err
	}

	notifier, err := notify.FromConfig(cfg.Notify, &notify.LogNotifier{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("configuring notifications: %w", err)
	}

	source := preferenceSource(cfg)
	clock := jobs.RealClock{}

	built := []jobs.Job{
		jobs.NewBatteryRecorder(source, client, database, clock, logger),
		jobs.NewLowBatteryEvaluator(source, client, notifier, logger),
	}
	for _, kind := range feed.Kinds {
		built = append(built, jobs.NewFeedSynchronizer(kind, source, client, database, notifier, clock, logger))
	}
	return built, nil
}
