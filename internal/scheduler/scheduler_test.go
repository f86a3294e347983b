package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
	"github.com/livinlefevreloca/trmnlwatch/internal/testutil"
)

// =============================================================================
// Test doubles
// =============================================================================

type fakeJob struct {
	kind jobs.Kind

	mu         sync.Mutex
	outcomes   []jobs.Outcome // consumed one per run, the last one repeats
	runs       int
	running    int
	maxRunning int
	release    chan struct{}
	panicValue any
}

func newFakeJob(kind jobs.Kind, outcomes ...jobs.Outcome) *fakeJob {
	if len(outcomes) == 0 {
		outcomes = []jobs.Outcome{jobs.Success}
	}
	return &fakeJob{kind: kind, outcomes: outcomes}
}

func (f *fakeJob) Kind() jobs.Kind { return f.kind }

func (f *fakeJob) Run(ctx context.Context) jobs.Result {
	f.mu.Lock()
	f.runs++
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	outcome := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	release := f.release
	panicValue := f.panicValue
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if release != nil {
		<-release
	}
	if panicValue != nil {
		panic(panicValue)
	}
	return jobs.Result{Outcome: outcome}
}

func (f *fakeJob) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeJob) MaxRunning() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRunning
}

type fakeChecker struct {
	mu     sync.Mutex
	met    map[Condition]bool
	probes int
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{met: map[Condition]bool{
		ConditionNetwork:  true,
		ConditionIdle:     true,
		ConditionCharging: true,
	}}
}

func (f *fakeChecker) Holds(_ context.Context, c Condition) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.met[c]
}

func (f *fakeChecker) Set(c Condition, met bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.met[c] = met
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     []db.JobRun
	shutdown bool
}

func (f *fakeRecorder) Buffer(run db.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRecorder) FlushIfDue(time.Time) error { return nil }

func (f *fakeRecorder) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}

func (f *fakeRecorder) Runs() []db.JobRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]db.JobRun, len(f.runs))
	copy(out, f.runs)
	return out
}

func (f *fakeRecorder) IsShutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdown
}

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	s        *Scheduler
	clock    *testutil.MockClock
	checker  *fakeChecker
	recorder *fakeRecorder
	logger   *testutil.TestLogger
}

func testConfig() Config {
	config := DefaultConfig()
	config.LoopInterval = 2 * time.Millisecond
	config.InitialBackoff = 30 * time.Second
	config.MaxBackoff = 4 * time.Minute
	config.ConditionPollInterval = time.Minute
	config.Jobs = map[string]JobSchedule{}
	return config
}

func newHarness(t *testing.T, config Config, registered ...jobs.Job) *harness {
	t.Helper()
	h := &harness{
		clock:    testutil.NewMockClock(start),
		checker:  newFakeChecker(),
		recorder: &fakeRecorder{},
		logger:   testutil.NewTestLogger(),
	}

	s, err := New(config, registered, h.checker, h.recorder, h.clock, h.logger.Logger())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	h.s = s
	s.Start(context.Background())
	t.Cleanup(s.Shutdown)
	return h
}

func (h *harness) status(t *testing.T, kind jobs.Kind) JobStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	all, err := h.s.Status(ctx)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	for _, st := range all {
		if st.Kind == kind {
			return st
		}
	}
	t.Fatalf("no status for %s", kind)
	return JobStatus{}
}

// waitIdle waits until kind has no run in flight and at least runs runs
func (h *harness) waitIdle(t *testing.T, job *fakeJob, runs int) {
	t.Helper()
	testutil.WaitFor(t, func() bool {
		return job.Runs() >= runs && !h.status(t, job.kind).InFlight
	}, time.Second, "waiting for", job.kind)
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_DuplicateKind(t *testing.T) {
	_, err := New(testConfig(), []jobs.Job{newFakeJob("a"), newFakeJob("a")}, nil, nil, nil, testutil.NewTestLogger().Logger())
	if err == nil {
		t.Error("expected error for duplicate job kind")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	config := testConfig()
	config.LoopInterval = 0
	if _, err := New(config, nil, nil, nil, nil, testutil.NewTestLogger().Logger()); err == nil {
		t.Error("expected validation error")
	}
}

func TestUnknownKindRejected(t *testing.T) {
	h := newHarness(t, testConfig(), newFakeJob("a"))

	if err := h.s.Schedule("missing", time.Hour); err == nil {
		t.Error("expected Schedule to reject unknown kind")
	}
	if err := h.s.Cancel("missing"); err == nil {
		t.Error("expected Cancel to reject unknown kind")
	}
	if err := h.s.TriggerNow("missing"); err == nil {
		t.Error("expected TriggerNow to reject unknown kind")
	}
	if err := h.s.Schedule("a", 0); err == nil {
		t.Error("expected Schedule to reject a zero interval")
	}
}

// =============================================================================
// Periodic scheduling
// =============================================================================

// TestSchedule_RunsThenWaitsForInterval verifies a new registration runs once
// immediately and then not again until the interval has passed.
func TestSchedule_RunsThenWaitsForInterval(t *testing.T) {
	job := newFakeJob("a")
	h := newHarness(t, testConfig(), job)

	if err := h.s.Schedule("a", time.Hour, ConditionNetwork); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	h.waitIdle(t, job, 1)

	st := h.status(t, "a")
	if !st.NextRun.Equal(start.Add(time.Hour)) {
		t.Errorf("expected next run at %v, got %v", start.Add(time.Hour), st.NextRun)
	}

	time.Sleep(20 * time.Millisecond)
	if job.Runs() != 1 {
		t.Fatalf("expected 1 run before the interval elapsed, got %d", job.Runs())
	}

	h.clock.Advance(time.Hour)
	h.waitIdle(t, job, 2)
}

// TestSchedule_ReplacesExisting verifies at most one registration per kind.
func TestSchedule_ReplacesExisting(t *testing.T) {
	job := newFakeJob("a")
	config := testConfig()
	h := newHarness(t, config, job)

	h.s.Schedule("a", time.Hour)
	h.s.Schedule("a", 2*time.Hour)
	h.s.Schedule("a", 3*time.Hour)
	h.waitIdle(t, job, 1)

	time.Sleep(20 * time.Millisecond)
	if job.Runs() != 1 {
		t.Errorf("expected replacements to produce a single run, got %d", job.Runs())
	}

	st := h.status(t, "a")
	if st.Interval != 3*time.Hour {
		t.Errorf("expected latest interval to win, got %v", st.Interval)
	}
	if !st.NextRun.Equal(start.Add(3 * time.Hour)) {
		t.Errorf("expected next run from the latest interval, got %v", st.NextRun)
	}
}

// TestSchedule_ConditionsGateRuns verifies a due job waits until every
// declared condition holds.
func TestSchedule_ConditionsGateRuns(t *testing.T) {
	job := newFakeJob("a")
	h := newHarness(t, testConfig(), job)
	h.checker.Set(ConditionCharging, false)

	h.s.Schedule("a", time.Hour, ConditionNetwork, ConditionCharging)
	time.Sleep(30 * time.Millisecond)

	if job.Runs() != 0 {
		t.Fatalf("expected no run while charging is unmet, got %d", job.Runs())
	}

	h.checker.Set(ConditionCharging, true)
	time.Sleep(20 * time.Millisecond)
	if job.Runs() != 0 {
		t.Fatal("expected conditions not to be probed again before the poll interval")
	}

	h.clock.Advance(time.Minute)
	h.waitIdle(t, job, 1)
}

// =============================================================================
// Outcome handling
// =============================================================================

func TestRetry_ExponentialBackoff(t *testing.T) {
	job := newFakeJob("a", jobs.Retry, jobs.Retry, jobs.Success)
	h := newHarness(t, testConfig(), job)

	h.s.Schedule("a", time.Hour)
	h.waitIdle(t, job, 1)

	st := h.status(t, "a")
	if st.Attempt != 1 || !st.NextRun.Equal(start.Add(30*time.Second)) {
		t.Fatalf("after first retry: expected attempt 1 at +30s, got attempt %d at %v", st.Attempt, st.NextRun)
	}

	h.clock.Advance(30 * time.Second)
	h.waitIdle(t, job, 2)

	st = h.status(t, "a")
	want := start.Add(30 * time.Second).Add(time.Minute)
	if st.Attempt != 2 || !st.NextRun.Equal(want) {
		t.Fatalf("after second retry: expected attempt 2 at %v, got attempt %d at %v", want, st.Attempt, st.NextRun)
	}

	h.clock.Advance(time.Minute)
	h.waitIdle(t, job, 3)

	st = h.status(t, "a")
	want = start.Add(90 * time.Second).Add(time.Hour)
	if st.Attempt != 0 || !st.NextRun.Equal(want) {
		t.Errorf("after success: expected attempt reset and next run at %v, got attempt %d at %v", want, st.Attempt, st.NextRun)
	}
}

func TestPermanentFailure_WaitsFullInterval(t *testing.T) {
	job := newFakeJob("a", jobs.PermanentFailure)
	h := newHarness(t, testConfig(), job)

	h.s.Schedule("a", 4*time.Hour)
	h.waitIdle(t, job, 1)

	st := h.status(t, "a")
	if st.Attempt != 0 || !st.NextRun.Equal(start.Add(4*time.Hour)) {
		t.Errorf("expected next run at +4h with no retry, got attempt %d at %v", st.Attempt, st.NextRun)
	}
	if st.LastOutcome != "permanent_failure" {
		t.Errorf("expected last outcome permanent_failure, got %q", st.LastOutcome)
	}
}

// TestPanic_RecordedAsPermanentFailure verifies a panicking job does not take
// the loop down.
func TestPanic_RecordedAsPermanentFailure(t *testing.T) {
	bad := newFakeJob("bad")
	bad.panicValue = "boom"
	good := newFakeJob("good")
	h := newHarness(t, testConfig(), bad, good)

	h.s.Schedule("bad", time.Hour)
	h.s.Schedule("good", time.Hour)
	h.waitIdle(t, bad, 1)
	h.waitIdle(t, good, 1)

	var found bool
	for _, run := range h.recorder.Runs() {
		if run.JobKind == "bad" {
			found = true
			if run.Outcome != "permanent_failure" || run.Error == nil {
				t.Errorf("expected permanent failure with error, got %+v", run)
			}
		}
	}
	if !found {
		t.Error("expected the panicking run to be recorded")
	}
}

// =============================================================================
// Cancel and TriggerNow
// =============================================================================

// TestCancel_DoesNotInterruptInFlight verifies cancel stops future runs but
// lets the current one finish.
func TestCancel_DoesNotInterruptInFlight(t *testing.T) {
	job := newFakeJob("a")
	job.release = make(chan struct{})
	h := newHarness(t, testConfig(), job)

	h.s.Schedule("a", time.Minute)
	testutil.WaitFor(t, func() bool { return job.Runs() == 1 }, time.Second)

	if err := h.s.Cancel("a"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !h.status(t, "a").InFlight {
		t.Error("expected run to still be in flight after cancel")
	}

	close(job.release)
	h.waitIdle(t, job, 1)

	h.clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if job.Runs() != 1 {
		t.Errorf("expected no runs after cancel, got %d", job.Runs())
	}
	if h.status(t, "a").Scheduled {
		t.Error("expected no registration after cancel")
	}
	if len(h.recorder.Runs()) != 1 {
		t.Errorf("expected the in-flight run to be recorded, got %d", len(h.recorder.Runs()))
	}
}

func TestTriggerNow_OneOff(t *testing.T) {
	job := newFakeJob("a")
	h := newHarness(t, testConfig(), job)

	if err := h.s.TriggerNow("a"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	h.waitIdle(t, job, 1)

	st := h.status(t, "a")
	if st.Triggered || st.Scheduled {
		t.Errorf("expected one-off run to leave nothing registered, got %+v", st)
	}

	runs := h.recorder.Runs()
	if len(runs) != 1 || runs[0].TriggeredBy != db.TriggerManual {
		t.Errorf("expected one manual run, got %+v", runs)
	}
}

// TestTriggerNow_ResetsTriggerWaitingOnBackoff verifies a second trigger runs
// immediately instead of waiting out the first trigger's retry backoff.
func TestTriggerNow_ResetsTriggerWaitingOnBackoff(t *testing.T) {
	job := newFakeJob("a", jobs.Retry, jobs.Success)
	h := newHarness(t, testConfig(), job)

	if err := h.s.TriggerNow("a"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	h.waitIdle(t, job, 1)

	st := h.status(t, "a")
	if !st.Triggered {
		t.Fatalf("expected retried trigger to stay pending, got %+v", st)
	}

	// clock stays frozen, so only the reset can make it due
	if err := h.s.TriggerNow("a"); err != nil {
		t.Fatalf("second trigger failed: %v", err)
	}
	h.waitIdle(t, job, 2)

	if st := h.status(t, "a"); st.Triggered {
		t.Errorf("expected successful trigger to be cleared, got %+v", st)
	}
	if !h.logger.Contains("re-triggered job") {
		t.Error("expected re-trigger to be logged")
	}
}

func TestTriggerNow_HonoursScheduleConditions(t *testing.T) {
	job := newFakeJob("a")
	h := newHarness(t, testConfig(), job)
	h.checker.Set(ConditionNetwork, false)

	h.s.Schedule("a", time.Hour, ConditionNetwork)
	h.s.TriggerNow("a")
	time.Sleep(30 * time.Millisecond)

	if job.Runs() != 0 {
		t.Fatalf("expected trigger to wait for network, got %d runs", job.Runs())
	}
	if !h.status(t, "a").Triggered {
		t.Error("expected trigger to stay pending")
	}

	h.checker.Set(ConditionNetwork, true)
	h.clock.Advance(time.Minute)
	h.waitIdle(t, job, 1)
}

// TestNoOverlappingRuns verifies a kind never runs twice at once.
func TestNoOverlappingRuns(t *testing.T) {
	job := newFakeJob("a")
	job.release = make(chan struct{})
	h := newHarness(t, testConfig(), job)

	h.s.Schedule("a", time.Second)
	testutil.WaitFor(t, func() bool { return job.Runs() == 1 }, time.Second)

	h.s.TriggerNow("a")
	h.clock.Advance(time.Hour)
	time.Sleep(30 * time.Millisecond)

	if job.Runs() != 1 {
		t.Errorf("expected the second run to wait, got %d runs", job.Runs())
	}

	close(job.release)
	testutil.WaitFor(t, func() bool { return job.Runs() >= 2 }, time.Second)
	if job.MaxRunning() != 1 {
		t.Errorf("expected at most one concurrent run, got %d", job.MaxRunning())
	}
}

// =============================================================================
// Configuration-driven registration and shutdown
// =============================================================================

func TestApplySchedules(t *testing.T) {
	config := testConfig()
	config.Jobs = map[string]JobSchedule{
		"a":       {Interval: time.Hour, Conditions: []string{"network"}},
		"b":       {Disabled: true, Interval: time.Hour},
		"unknown": {Interval: time.Hour},
	}
	a, b := newFakeJob("a"), newFakeJob("b")
	h := newHarness(t, config, a, b)

	if err := h.s.ApplySchedules(); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	h.waitIdle(t, a, 1)

	if h.status(t, "b").Scheduled {
		t.Error("expected disabled job to stay unscheduled")
	}
	if b.Runs() != 0 {
		t.Error("expected disabled job not to run")
	}
	if !h.logger.HasWarning() {
		t.Error("expected a warning for the unknown job kind")
	}
}

// TestShutdown_WaitsForInFlight verifies shutdown lets the running job finish
// and records it before shutting down the recorder.
func TestShutdown_WaitsForInFlight(t *testing.T) {
	job := newFakeJob("a")
	job.release = make(chan struct{})
	h := newHarness(t, testConfig(), job)

	h.s.Schedule("a", time.Hour)
	testutil.WaitFor(t, func() bool { return job.Runs() == 1 }, time.Second)

	done := make(chan struct{})
	go func() {
		h.s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a run was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(job.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return after the run finished")
	}

	if len(h.recorder.Runs()) != 1 {
		t.Errorf("expected the in-flight run to be recorded, got %d", len(h.recorder.Runs()))
	}
	if !h.recorder.IsShutdown() {
		t.Error("expected the recorder to be shut down")
	}
}

func TestShutdown_LogsInboxStats(t *testing.T) {
	job := newFakeJob("a")
	h := newHarness(t, testConfig(), job)

	h.s.Schedule("a", time.Hour)
	h.waitIdle(t, job, 1)
	h.s.Shutdown()

	var entry *testutil.LogEntry
	for _, e := range h.logger.Entries() {
		if e.Message == "scheduler shutdown complete" {
			entry = &e
		}
	}
	if entry == nil {
		t.Fatal("expected a shutdown summary")
	}

	sent, ok := entry.Attrs["inbox_sent"].(int64)
	if !ok || sent < 2 {
		t.Errorf("expected at least 2 inbox messages sent, got %v", entry.Attrs["inbox_sent"])
	}
	if entry.Attrs["inbox_received"] != entry.Attrs["inbox_sent"] {
		t.Errorf("expected every message received, got sent=%v received=%v",
			entry.Attrs["inbox_sent"], entry.Attrs["inbox_received"])
	}
	if entry.Attrs["inbox_timeouts"] != int64(0) {
		t.Errorf("expected no timeouts, got %v", entry.Attrs["inbox_timeouts"])
	}
}
