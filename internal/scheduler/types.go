package scheduler

import (
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
)

// registration is a pending run of one job kind: either the periodic schedule
// or a one-off trigger. Owned by the main loop.
type registration struct {
	kind       jobs.Kind
	interval   time.Duration // zero for one-off triggers
	conditions []Condition
	generation uint64

	nextRun time.Time
	attempt int // consecutive Retry outcomes

	lastCheck     time.Time
	conditionsMet bool
}

func (r *registration) oneOff() bool {
	return r.interval == 0
}

func (r *registration) due(now time.Time) bool {
	return !now.Before(r.nextRun)
}

// inFlightRun tracks a job currently executing on a worker goroutine
type inFlightRun struct {
	runID       string
	kind        jobs.Kind
	generation  uint64
	triggeredBy string
	startedAt   time.Time
}

// runComplete is sent by a worker goroutine when its job returns
type runComplete struct {
	run         inFlightRun
	result      jobs.Result
	completedAt time.Time
}

// JobStatus is a read-only view of one job kind
type JobStatus struct {
	Kind        jobs.Kind
	Scheduled   bool
	Interval    time.Duration
	Conditions  []Condition
	NextRun     time.Time
	Attempt     int
	Triggered   bool
	InFlight    bool
	LastOutcome string
}

// RunRecorder receives every completed run. The scheduler loop is its only
// caller until Shutdown.
type RunRecorder interface {
	Buffer(run db.JobRun) error
	FlushIfDue(now time.Time) error
	Shutdown() error
}

type discardRuns struct{}

func (discardRuns) Buffer(db.JobRun) error      { return nil }
func (discardRuns) FlushIfDue(time.Time) error { return nil }
func (discardRuns) Shutdown() error            { return nil }
