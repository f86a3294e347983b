package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
)

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()

	if p.LowBatteryThresholdPercent != 20 {
		t.Errorf("expected default threshold 20, got %d", p.LowBatteryThresholdPercent)
	}
	if !p.BatteryTrackingEnabled {
		t.Error("expected battery tracking enabled by default")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestPreferences_Validate(t *testing.T) {
	tests := []struct {
		threshold int
		wantErr   bool
	}{
		{threshold: 0},
		{threshold: 100},
		{threshold: -1, wantErr: true},
		{threshold: 101, wantErr: true},
	}

	for _, tt := range tests {
		p := DefaultPreferences()
		p.LowBatteryThresholdPercent = tt.threshold
		err := p.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("threshold %d: err = %v, wantErr %v", tt.threshold, err, tt.wantErr)
		}
	}
}

func TestSnapshot_FeedNotificationsEnabledFor(t *testing.T) {
	s := Snapshot{Preferences: DefaultPreferences()}

	if !s.FeedNotificationsEnabledFor(feed.Announcements) {
		t.Error("expected announcements enabled")
	}

	s.BlogPostNotificationsEnabled = false
	if s.FeedNotificationsEnabledFor(feed.BlogPosts) {
		t.Error("expected blog posts disabled by per-kind toggle")
	}

	s.FeedNotificationsEnabled = false
	if s.FeedNotificationsEnabledFor(feed.Announcements) {
		t.Error("expected master toggle to disable every feed")
	}
}

func TestStaticSource_CredentialPresence(t *testing.T) {
	ctx := context.Background()

	with := &StaticSource{Prefs: DefaultPreferences(), Credentials: StaticCredential("key")}
	snap, err := with.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !snap.CredentialPresent {
		t.Error("expected credential present")
	}

	without := &StaticSource{Prefs: DefaultPreferences(), Credentials: StaticCredential("")}
	snap, err = without.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.CredentialPresent {
		t.Error("expected credential absent")
	}
}

func TestFileSource_ReadsPreferencesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://example.com"

[preferences]
low_battery_notifications_enabled = true
low_battery_threshold_percent = 35
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	src := &FileSource{Path: path, Defaults: DefaultPreferences(), Credentials: StaticCredential("key")}
	snap, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snap.LowBatteryThresholdPercent != 35 {
		t.Errorf("threshold = %d, want 35", snap.LowBatteryThresholdPercent)
	}
	if !snap.LowBatteryNotificationsEnabled {
		t.Error("expected low battery notifications enabled from file")
	}
	if !snap.BatteryTrackingEnabled {
		t.Error("expected missing key to keep default")
	}
}

func TestFileSource_PicksUpEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	write := func(threshold string) {
		if err := os.WriteFile(path, []byte("[preferences]\nlow_battery_threshold_percent = "+threshold+"\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
	}
	src := &FileSource{Path: path, Defaults: DefaultPreferences(), Credentials: StaticCredential("")}

	write("10")
	first, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	write("50")
	second, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if first.LowBatteryThresholdPercent != 10 || second.LowBatteryThresholdPercent != 50 {
		t.Errorf("thresholds = %d, %d; want 10, 50", first.LowBatteryThresholdPercent, second.LowBatteryThresholdPercent)
	}
}

func TestFileSource_InvalidThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[preferences]\nlow_battery_threshold_percent = 150\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	src := &FileSource{Path: path, Defaults: DefaultPreferences(), Credentials: StaticCredential("")}
	if _, err := src.Snapshot(context.Background()); err == nil {
		t.Error("expected validation error")
	}
}

func TestEnvCredential(t *testing.T) {
	t.Setenv("TRMNLWATCH_TEST_KEY", "  from-env  ")

	cred := &EnvCredential{Name: "TRMNLWATCH_TEST_KEY"}
	got, err := cred.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if got != "from-env" {
		t.Errorf("credential = %q, want from-env", got)
	}
}

func TestEnvCredential_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TRMNLWATCH_DOTENV_KEY=from-file\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("TRMNLWATCH_DOTENV_KEY", "")
	os.Unsetenv("TRMNLWATCH_DOTENV_KEY")

	cred := &EnvCredential{Name: "TRMNLWATCH_DOTENV_KEY", DotEnvPath: path}
	got, err := cred.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if got != "from-file" {
		t.Errorf("credential = %q, want from-file", got)
	}
}

func TestEnvCredential_MissingDotEnvIgnored(t *testing.T) {
	cred := &EnvCredential{Name: "TRMNLWATCH_UNSET_KEY", DotEnvPath: filepath.Join(t.TempDir(), "missing.env")}
	got, err := cred.Credential(context.Background())
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty credential, got %q", got)
	}
}
