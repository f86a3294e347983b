package runlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/testutil"
)

type memoryStore struct {
	mu   sync.Mutex
	runs []db.JobRun
	err  error
}

func (m *memoryStore) CreateJobRun(_ context.Context, run *db.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func makeRun(i int) db.JobRun {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return db.JobRun{
		RunID:       fmt.Sprintf("run-%d", i),
		JobKind:     "battery_recorder",
		TriggeredBy: "schedule",
		StartedAt:   start,
		CompletedAt: start.Add(time.Second),
		Outcome:     "success",
	}
}

func newLog(t *testing.T, cfg Config, store Store) *Log {
	t.Helper()
	l, err := New(cfg, store, testutil.NewTestLogger().Logger())
	if err != nil {
		t.Fatalf("failed to create run log: %v", err)
	}
	return l
}

// ============================================================================
// Config
// ============================================================================

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"max buffered", func(c *Config) { c.MaxBufferedRuns = 0 }},
		{"channel size", func(c *Config) { c.ChannelSize = -1 }},
		{"flush threshold", func(c *Config) { c.FlushThreshold = 0 }},
		{"flush interval", func(c *Config) { c.FlushInterval = 0 }},
		{"write timeout", func(c *Config) { c.WriteTimeout = 0 }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := New(cfg, &memoryStore{}, testutil.NewTestLogger().Logger()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// ============================================================================
// Buffering and flushing
// ============================================================================

func TestBuffer_ExceedsMaximum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBufferedRuns = 2
	l := newLog(t, cfg, &memoryStore{})

	if err := l.Buffer(makeRun(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Buffer(makeRun(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Buffer(makeRun(3)); err == nil {
		t.Error("expected error once the buffer is over its maximum")
	}
	if l.Stats().Buffered != 3 {
		t.Errorf("expected overflowing run to be kept, got %d buffered", l.Stats().Buffered)
	}
}

func TestFlushIfDue_Thresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushThreshold = 3
	cfg.FlushInterval = time.Minute
	l := newLog(t, cfg, &memoryStore{})
	now := l.lastFlush

	l.Buffer(makeRun(1))
	if err := l.FlushIfDue(now.Add(time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Stats().Buffered != 1 {
		t.Error("expected no flush below both thresholds")
	}

	l.Buffer(makeRun(2))
	l.Buffer(makeRun(3))
	l.FlushIfDue(now.Add(2 * time.Second))
	if l.Stats().Buffered != 0 {
		t.Error("expected flush at the size threshold")
	}

	l.Buffer(makeRun(4))
	l.FlushIfDue(now.Add(2 * time.Minute))
	if l.Stats().Buffered != 0 {
		t.Error("expected flush after the interval elapsed")
	}
}

func TestFlush_ChannelFullKeepsRemainder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelSize = 2
	l := newLog(t, cfg, &memoryStore{})

	for i := 0; i < 5; i++ {
		l.Buffer(makeRun(i))
	}

	if err := l.Flush(time.Now()); err == nil {
		t.Error("expected error when the channel is full")
	}
	if l.Stats().Buffered != 3 {
		t.Errorf("expected 3 runs left buffered, got %d", l.Stats().Buffered)
	}
}

// ============================================================================
// Writer and shutdown
// ============================================================================

func TestShutdown_WritesEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelSize = 2
	store := &memoryStore{}
	l := newLog(t, cfg, store)
	l.Start()

	for i := 0; i < 10; i++ {
		l.Buffer(makeRun(i))
	}
	l.Flush(time.Now())

	if err := l.Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if store.count() != 10 {
		t.Errorf("expected 10 runs written, got %d", store.count())
	}
	if l.Stats().Written != 10 {
		t.Errorf("expected written counter 10, got %d", l.Stats().Written)
	}
}

func TestWriter_StoreErrorIsLoggedAndCounted(t *testing.T) {
	store := &memoryStore{err: errors.New("database is locked")}
	logger := testutil.NewTestLogger()
	l, err := New(DefaultConfig(), store, logger.Logger())
	if err != nil {
		t.Fatalf("failed to create run log: %v", err)
	}
	l.Start()

	l.Buffer(makeRun(1))
	l.Shutdown()

	if l.Stats().Failed != 1 {
		t.Errorf("expected 1 failed write, got %d", l.Stats().Failed)
	}
	if !logger.HasError() {
		t.Error("expected write failure to be logged")
	}
}

func TestShutdown_LogsWriteCounters(t *testing.T) {
	logger := testutil.NewTestLogger()
	l, err := New(DefaultConfig(), &memoryStore{}, logger.Logger())
	if err != nil {
		t.Fatalf("failed to create run log: %v", err)
	}
	l.Start()

	for i := 0; i < 3; i++ {
		l.Buffer(makeRun(i))
	}
	if err := l.Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	for _, e := range logger.Entries() {
		if e.Message != "run log shutdown complete" {
			continue
		}
		if e.Attrs["written"] != int64(3) || e.Attrs["failed"] != int64(0) {
			t.Errorf("expected written=3 failed=0, got %v", e.Attrs)
		}
		return
	}
	t.Fatal("expected a shutdown summary")
}

func TestShutdown_NotStarted(t *testing.T) {
	l := newLog(t, DefaultConfig(), &memoryStore{})

	if err := l.Shutdown(); err != nil {
		t.Errorf("expected clean shutdown with nothing buffered, got %v", err)
	}

	l2 := newLog(t, DefaultConfig(), &memoryStore{})
	l2.Buffer(makeRun(1))
	if err := l2.Shutdown(); err == nil {
		t.Error("expected error reporting dropped runs")
	}
}

// TestSQLiteStore writes through a migrated database.
func TestSQLiteStore(t *testing.T) {
	database, err := db.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	l := newLog(t, DefaultConfig(), database)
	l.Start()

	failed := makeRun(2)
	msg := "trmnl: http 500 Internal Server Error: boom"
	failed.Outcome = "retry"
	failed.Error = &msg

	l.Buffer(makeRun(1))
	l.Buffer(failed)
	l.Shutdown()

	runs, err := database.GetJobRuns(context.Background(), "battery_recorder", 10)
	if err != nil {
		t.Fatalf("failed to read runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	got, err := database.GetJobRunByRunID(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("failed to fetch run: %v", err)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("expected error %q, got %v", msg, got.Error)
	}
}
