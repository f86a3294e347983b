package runlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
)

// Store persists job run records
type Store interface {
	CreateJobRun(ctx context.Context, run *db.JobRun) error
}

// Stats is a snapshot of the run log's buffers
type Stats struct {
	Buffered int
	Written  int64
	Failed   int64
}

// Log buffers completed runs and writes them to the store on a background
// goroutine.
//
// Buffer, Flush and FlushIfDue are meant to be called from the scheduler
// loop. Shutdown is called once, after that loop stops.
type Log struct {
	config Config
	store  Store
	logger *slog.Logger

	buffer    []db.JobRun
	lastFlush time.Time
	writes    chan db.JobRun

	mu      sync.Mutex
	written int64
	failed  int64

	started bool
	wg      sync.WaitGroup
}

// New creates a run log. Call Start before buffering runs.
func New(config Config, store Store, logger *slog.Logger) (*Log, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Log{
		config:    config,
		store:     store,
		logger:    logger,
		lastFlush: time.Now(),
		writes:    make(chan db.JobRun, config.ChannelSize),
	}, nil
}

// Start launches the writer goroutine
func (l *Log) Start() {
	l.started = true
	l.wg.Add(1)
	go l.runWriter()
}

// Buffer queues a completed run. It returns an error once the in-memory
// buffer exceeds its maximum; the run is still kept.
func (l *Log) Buffer(run db.JobRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, run)

	if len(l.buffer) > l.config.MaxBufferedRuns {
		return fmt.Errorf("run log buffer exceeded maximum size: %d > %d",
			len(l.buffer), l.config.MaxBufferedRuns)
	}
	return nil
}

// FlushIfDue flushes when the size or age threshold has been reached
func (l *Log) FlushIfDue(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buffer) == 0 {
		return nil
	}
	if len(l.buffer) < l.config.FlushThreshold && now.Sub(l.lastFlush) < l.config.FlushInterval {
		return nil
	}
	return l.flushLocked(now)
}

// Flush hands buffered runs to the writer without blocking. Runs that do
// not fit stay buffered for the next flush.
func (l *Log) Flush(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(now)
}

func (l *Log) flushLocked(now time.Time) error {
	sent := 0
	for _, run := range l.buffer {
		select {
		case l.writes <- run:
			sent++
		default:
			l.buffer = l.buffer[sent:]
			return fmt.Errorf("run log channel full, %d runs still buffered", len(l.buffer))
		}
	}

	l.buffer = nil
	l.lastFlush = now
	return nil
}

// Stats returns buffer and write counters
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Buffered: len(l.buffer),
		Written:  l.written,
		Failed:   l.failed,
	}
}

func (l *Log) runWriter() {
	defer l.wg.Done()

	for run := range l.writes {
		ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
		err := l.store.CreateJobRun(ctx, &run)
		cancel()

		l.mu.Lock()
		if err != nil {
			l.failed++
		} else {
			l.written++
		}
		l.mu.Unlock()

		if err != nil {
			l.logger.Error("failed to write job run",
				"run_id", run.RunID,
				"job_kind", run.JobKind,
				"error", err)
			continue
		}
		l.logger.Debug("wrote job run",
			"run_id", run.RunID,
			"job_kind", run.JobKind,
			"outcome", run.Outcome)
	}

	l.logger.Debug("run log writer shut down")
}

// Shutdown writes everything still buffered and waits for the writer to
// drain
func (l *Log) Shutdown() error {
	l.mu.Lock()
	remaining := l.buffer
	l.buffer = nil
	l.mu.Unlock()

	l.logger.Info("starting run log shutdown", "buffered_runs", len(remaining))

	if !l.started {
		if len(remaining) > 0 {
			return fmt.Errorf("run log never started, dropped %d runs", len(remaining))
		}
		return nil
	}

	// The channel may be smaller than the remainder, so block here instead
	// of using the non-blocking flush.
	for _, run := range remaining {
		l.writes <- run
	}

	close(l.writes)
	l.wg.Wait()

	stats := l.Stats()
	l.logger.Info("run log shutdown complete",
		"written", stats.Written,
		"failed", stats.Failed)
	return nil
}
