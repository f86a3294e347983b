package prefs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
)

// Preferences holds the user-editable settings stored under [preferences]
type Preferences struct {
	BatteryTrackingEnabled           bool `toml:"battery_tracking_enabled"`
	LowBatteryNotificationsEnabled   bool `toml:"low_battery_notifications_enabled"`
	LowBatteryThresholdPercent       int  `toml:"low_battery_threshold_percent"`
	FeedNotificationsEnabled         bool `toml:"feed_notifications_enabled"`
	AnnouncementNotificationsEnabled bool `toml:"announcement_notifications_enabled"`
	BlogPostNotificationsEnabled     bool `toml:"blog_post_notifications_enabled"`
}

// DefaultPreferences mirrors the defaults a fresh install starts with
func DefaultPreferences() Preferences {
	return Preferences{
		BatteryTrackingEnabled:           true,
		LowBatteryNotificationsEnabled:   false,
		LowBatteryThresholdPercent:       20,
		FeedNotificationsEnabled:         true,
		AnnouncementNotificationsEnabled: true,
		BlogPostNotificationsEnabled:     true,
	}
}

// Validate checks value ranges
func (p Preferences) Validate() error {
	if p.LowBatteryThresholdPercent < 0 || p.LowBatteryThresholdPercent > 100 {
		return fmt.Errorf("low_battery_threshold_percent must be between 0 and 100, got %d", p.LowBatteryThresholdPercent)
	}
	return nil
}

// Snapshot is an immutable view of the preferences taken at the start of a
// job run
type Snapshot struct {
	CredentialPresent bool
	Preferences
}

// FeedNotificationsEnabledFor combines the master feed toggle with the toggle
// for one feed kind
func (s Snapshot) FeedNotificationsEnabledFor(kind feed.Kind) bool {
	if !s.FeedNotificationsEnabled {
		return false
	}
	switch kind {
	case feed.Announcements:
		return s.AnnouncementNotificationsEnabled
	case feed.BlogPosts:
		return s.BlogPostNotificationsEnabled
	default:
		return false
	}
}

// Source provides preference snapshots and the API credential
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Credential(ctx context.Context) (string, error)
}

// CredentialProvider returns the API key, or "" when none is configured
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// EnvCredential reads the API key from an environment variable, optionally
// loading a .env file first. Variables already set in the environment win.
type EnvCredential struct {
	Name       string
	DotEnvPath string

	loadOnce sync.Once
	loadErr  error
}

// Credential implements CredentialProvider
func (e *EnvCredential) Credential(_ context.Context) (string, error) {
	e.loadOnce.Do(func() {
		if e.DotEnvPath == "" {
			return
		}
		if _, err := os.Stat(e.DotEnvPath); os.IsNotExist(err) {
			return
		}
		if err := godotenv.Load(e.DotEnvPath); err != nil {
			e.loadErr = fmt.Errorf("loading %s: %w", e.DotEnvPath, err)
		}
	})
	if e.loadErr != nil {
		return "", e.loadErr
	}
	return strings.TrimSpace(os.Getenv(e.Name)), nil
}

// StaticCredential is a fixed API key; the empty string means no credential
type StaticCredential string

// Credential implements CredentialProvider
func (c StaticCredential) Credential(_ context.Context) (string, error) {
	return string(c), nil
}

// StaticSource serves fixed preferences
type StaticSource struct {
	Prefs       Preferences
	Credentials CredentialProvider
}

// Snapshot implements Source
func (s *StaticSource) Snapshot(ctx context.Context) (Snapshot, error) {
	return snapshot(ctx, s.Prefs, s.Credentials)
}

// Credential implements Source
func (s *StaticSource) Credential(ctx context.Context) (string, error) {
	return s.Credentials.Credential(ctx)
}

// FileSource re-reads the [preferences] table of a TOML file on every
// snapshot, so edits apply to the next job run without a restart. Keys
// missing from the file keep their defaults.
type FileSource struct {
	Path        string
	Defaults    Preferences
	Credentials CredentialProvider
}

// Snapshot implements Source
func (s *FileSource) Snapshot(ctx context.Context) (Snapshot, error) {
	doc := struct {
		Preferences Preferences `toml:"preferences"`
	}{Preferences: s.Defaults}

	if _, err := toml.DecodeFile(s.Path, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("reading preferences from %s: %w", s.Path, err)
	}
	if err := doc.Preferences.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot(ctx, doc.Preferences, s.Credentials)
}

// Credential implements Source
func (s *FileSource) Credential(ctx context.Context) (string, error) {
	return s.Credentials.Credential(ctx)
}

func snapshot(ctx context.Context, p Preferences, creds CredentialProvider) (Snapshot, error) {
	key, err := creds.Credential(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading credential: %w", err)
	}
	return Snapshot{
		CredentialPresent: key != "",
		Preferences:       p,
	}, nil
}
