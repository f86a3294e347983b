package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/livinlefevreloca/trmnlwatch/internal/notify"
	"github.com/livinlefevreloca/trmnlwatch/internal/prefs"
	"github.com/livinlefevreloca/trmnlwatch/internal/runlog"
	"github.com/livinlefevreloca/trmnlwatch/internal/scheduler"
	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// Config represents the application configuration
type Config struct {
	Database    db.Config         `toml:"database"`
	API         trmnl.Config      `toml:"api"`
	Feeds       FeedsConfig       `toml:"feeds"`
	Preferences prefs.Preferences `toml:"preferences"`
	Scheduler   scheduler.Config  `toml:"scheduler"`
	RunLog      runlog.Config     `toml:"runlog"`
	Notify      notify.Config     `toml:"notify"`
	Logging     LoggingConfig     `toml:"logging"`

	// Path the config was loaded from; empty when running on defaults
	Path string `toml:"-"`
}

// FeedsConfig holds the content feed endpoints. Empty URLs fall back to
// paths under the API base URL.
type FeedsConfig struct {
	AnnouncementsURL string `toml:"announcements_url"`
	BlogPostsURL     string `toml:"blog_posts_url"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: db.Config{
			Driver:          "sqlite3",
			DSN:             "trmnlwatch.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			SkipMigrations:  false,
		},
		API:         trmnl.DefaultConfig(),
		Preferences: prefs.DefaultPreferences(),
		Scheduler:   scheduler.DefaultConfig(),
		RunLog:      runlog.DefaultConfig(),
		Notify:      notify.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// Decode job tables on their own so partial tables can be merged with
	// the defaults field by field.
	config.Scheduler.Jobs = nil
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.Scheduler.Jobs = scheduler.MergeJobSchedules(config.Scheduler.Jobs)

	config.Path = path
	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	return LoadFromFile(configPath)
}

// FeedURLs resolves the endpoint of every feed kind
func (c *Config) FeedURLs() map[feed.Kind]string {
	base := strings.TrimSuffix(c.API.BaseURL, "/")
	urls := map[feed.Kind]string{
		feed.Announcements: c.Feeds.AnnouncementsURL,
		feed.BlogPosts:     c.Feeds.BlogPostsURL,
	}
	for kind, u := range urls {
		if u == "" {
			urls[kind] = base + "/api/" + kind.String()
		}
	}
	return urls
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver: %s (must be sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be specified")
	}

	// API validation
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api base_url must be specified")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if c.API.CredentialEnv == "" {
		return fmt.Errorf("api credential_env must be specified")
	}

	if err := c.Preferences.Validate(); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	if err := c.RunLog.Validate(); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}

	if c.Notify.WebhookURL != "" && c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify timeout must be positive when webhook_url is set")
	}

	// Logging validation
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// NewLogger builds the process logger described by the logging section
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}
