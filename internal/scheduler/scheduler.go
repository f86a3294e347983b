package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/inbox"
	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
)

// Scheduler runs registered jobs on fixed intervals once their declared
// conditions hold.
//
// All scheduling state is owned by a single loop goroutine. Public methods
// talk to it through the inbox; workers report back on a completion channel
// that has room for one result per job kind, so they never block.
type Scheduler struct {
	// Configuration
	config  Config
	logger  *slog.Logger
	clock   jobs.Clock
	checker ConditionChecker
	runs    RunRecorder

	// Immutable after New
	jobs map[jobs.Kind]jobs.Job

	// State (accessed only by main loop)
	periodic    map[jobs.Kind]*registration
	triggered   map[jobs.Kind]*registration
	inFlight    map[jobs.Kind]*inFlightRun
	lastOutcome map[jobs.Kind]string
	generation  uint64

	// Communication
	inbox       *inbox.Inbox[Message]
	completions chan runComplete

	// Control
	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}
	started      atomic.Bool
	workers      sync.WaitGroup
}

// New creates a scheduler for the given jobs. runs may be nil.
func New(config Config, registered []jobs.Job, checker ConditionChecker, runs RunRecorder, clock jobs.Clock, logger *slog.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	byKind := make(map[jobs.Kind]jobs.Job, len(registered))
	for _, job := range registered {
		if _, dup := byKind[job.Kind()]; dup {
			return nil, fmt.Errorf("job kind %s registered twice", job.Kind())
		}
		byKind[job.Kind()] = job
	}

	if checker == nil {
		checker = AlwaysMet{}
	}
	if runs == nil {
		runs = discardRuns{}
	}
	if clock == nil {
		clock = jobs.RealClock{}
	}

	return &Scheduler{
		config:      config,
		logger:      logger,
		clock:       clock,
		checker:     checker,
		runs:        runs,
		jobs:        byKind,
		periodic:    make(map[jobs.Kind]*registration),
		triggered:   make(map[jobs.Kind]*registration),
		inFlight:    make(map[jobs.Kind]*inFlightRun),
		lastOutcome: make(map[jobs.Kind]string),
		inbox:       inbox.New[Message](config.InboxBufferSize, config.InboxSendTimeout, logger),
		completions: make(chan runComplete, len(byKind)),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// ApplySchedules registers every enabled entry of Config.Jobs
func (s *Scheduler) ApplySchedules() error {
	kinds := make([]string, 0, len(s.config.Jobs))
	for kind := range s.config.Jobs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		job := s.config.Jobs[kind]
		if job.Disabled {
			s.logger.Info("job disabled by configuration", "job_kind", kind)
			continue
		}
		if _, ok := s.jobs[jobs.Kind(kind)]; !ok {
			s.logger.Warn("schedule configured for unknown job", "job_kind", kind)
			continue
		}
		conditions, err := ParseConditions(job.Conditions)
		if err != nil {
			return fmt.Errorf("jobs.%s: %w", kind, err)
		}
		if err := s.Schedule(jobs.Kind(kind), job.Interval, conditions...); err != nil {
			return err
		}
	}
	return nil
}

// Schedule registers kind to run every interval once all conditions hold.
// Scheduling a kind again replaces its previous registration.
func (s *Scheduler) Schedule(kind jobs.Kind, interval time.Duration, conditions ...Condition) error {
	if _, ok := s.jobs[kind]; !ok {
		return fmt.Errorf("unknown job kind: %s", kind)
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	return s.send(Message{
		Type: MsgSchedule,
		Data: ScheduleMsg{Kind: kind, Interval: interval, Conditions: conditions},
	})
}

// Cancel removes the periodic registration and any pending trigger for kind.
// A run already in progress is left to finish.
func (s *Scheduler) Cancel(kind jobs.Kind) error {
	if _, ok := s.jobs[kind]; !ok {
		return fmt.Errorf("unknown job kind: %s", kind)
	}
	return s.send(Message{Type: MsgCancel, Data: CancelMsg{Kind: kind}})
}

// TriggerNow queues a one-off run of kind. It still waits for the conditions
// of the kind's periodic registration.
func (s *Scheduler) TriggerNow(kind jobs.Kind) error {
	if _, ok := s.jobs[kind]; !ok {
		return fmt.Errorf("unknown job kind: %s", kind)
	}
	return s.send(Message{Type: MsgTriggerNow, Data: TriggerNowMsg{Kind: kind}})
}

// Status returns the state of every registered job kind
func (s *Scheduler) Status(ctx context.Context) ([]JobStatus, error) {
	resp := make(chan any, 1)
	if err := s.send(Message{Type: MsgGetStatus, ResponseChan: resp}); err != nil {
		return nil, err
	}

	select {
	case r := <-resp:
		return r.(StatusResponse).Jobs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) send(msg Message) error {
	if !s.inbox.Send(msg) {
		return fmt.Errorf("scheduler inbox full, dropped %s message", msg.Type)
	}
	return nil
}

// Start launches the main loop. Cancelling ctx has the same effect as
// Shutdown, except that it does not wait.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.logger.Info("starting scheduler", "job_count", len(s.jobs))
		go s.run(ctx)
	})
}

// Shutdown stops dispatching, waits for in-flight runs to finish and shuts
// down the run recorder
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})
	if s.started.Load() {
		<-s.done
	}
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.LoopInterval)
	defer ticker.Stop()

	// In-flight runs must not be interrupted by shutdown.
	runCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-s.shutdown:
			s.handleShutdown()
			return

		case <-ctx.Done():
			s.handleShutdown()
			return

		case msg := <-s.inbox.C():
			s.inbox.Ack()
			s.handleMessage(msg)

		case c := <-s.completions:
			s.handleCompletion(c)

		case <-ticker.C:
			s.iteration(runCtx)
		}
	}
}

// iteration performs a single pass of the scheduler loop
func (s *Scheduler) iteration(ctx context.Context) {
	now := s.clock.Now()

	// Step 1: Process ALL pending messages so replacements apply first
	s.processInbox()

	// Step 2: Start due jobs whose conditions hold
	s.dispatchDue(ctx, now)

	// Step 3: Flush completed runs
	if err := s.runs.FlushIfDue(now); err != nil {
		s.logger.Error("failed to flush run log", "error", err)
	}
}

func (s *Scheduler) processInbox() int {
	processed := 0
	for {
		msg, ok := s.inbox.TryReceive()
		if !ok {
			return processed
		}
		s.handleMessage(msg)
		processed++
	}
}

// handleMessage dispatches messages to appropriate handlers
func (s *Scheduler) handleMessage(msg Message) {
	s.logger.Debug("handling message", "type", msg.Type.String())

	switch msg.Type {
	case MsgSchedule:
		s.handleSchedule(msg.Data.(ScheduleMsg))
	case MsgCancel:
		s.handleCancel(msg.Data.(CancelMsg))
	case MsgTriggerNow:
		s.handleTriggerNow(msg.Data.(TriggerNowMsg))
	case MsgGetStatus:
		if msg.ResponseChan != nil {
			msg.ResponseChan <- StatusResponse{Jobs: s.status()}
		}
	default:
		s.logger.Warn("unknown message type", "type", msg.Type)
	}
}

func (s *Scheduler) handleSchedule(m ScheduleMsg) {
	s.generation++
	_, replaced := s.periodic[m.Kind]

	s.periodic[m.Kind] = &registration{
		kind:       m.Kind,
		interval:   m.Interval,
		conditions: m.Conditions,
		generation: s.generation,
		nextRun:    s.clock.Now(),
	}

	s.logger.Info("scheduled job",
		"job_kind", string(m.Kind),
		"interval", m.Interval,
		"conditions", conditionNames(m.Conditions),
		"replaced", replaced)
}

func (s *Scheduler) handleCancel(m CancelMsg) {
	_, scheduled := s.periodic[m.Kind]
	_, triggered := s.triggered[m.Kind]
	if !scheduled && !triggered {
		s.logger.Warn("attempted to cancel job that is not scheduled", "job_kind", string(m.Kind))
		return
	}

	delete(s.periodic, m.Kind)
	delete(s.triggered, m.Kind)

	_, running := s.inFlight[m.Kind]
	s.logger.Info("cancelled job", "job_kind", string(m.Kind), "run_in_flight", running)
}

func (s *Scheduler) handleTriggerNow(m TriggerNowMsg) {
	if t, pending := s.triggered[m.Kind]; pending {
		if _, running := s.inFlight[m.Kind]; running {
			s.logger.Debug("trigger already pending", "job_kind", string(m.Kind))
			return
		}
		// A trigger waiting out a retry backoff runs again now
		t.nextRun = s.clock.Now()
		t.attempt = 0
		t.lastCheck = time.Time{}
		t.conditionsMet = false
		s.logger.Info("re-triggered job", "job_kind", string(m.Kind))
		return
	}

	var conditions []Condition
	if p, ok := s.periodic[m.Kind]; ok {
		conditions = p.conditions
	}

	s.generation++
	s.triggered[m.Kind] = &registration{
		kind:       m.Kind,
		conditions: conditions,
		generation: s.generation,
		nextRun:    s.clock.Now(),
	}

	s.logger.Info("triggered job", "job_kind", string(m.Kind))
}

// dispatchDue starts at most one run per kind, preferring a pending trigger
// over the periodic registration
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	for _, kind := range s.sortedKinds() {
		if _, running := s.inFlight[kind]; running {
			continue
		}

		reg, triggeredBy := s.dueRegistration(kind, now)
		if reg == nil {
			continue
		}

		if !s.conditionsHold(ctx, reg, now) {
			continue
		}

		s.startRun(ctx, reg, triggeredBy, now)
	}
}

func (s *Scheduler) dueRegistration(kind jobs.Kind, now time.Time) (*registration, string) {
	if t, ok := s.triggered[kind]; ok && t.due(now) {
		return t, db.TriggerManual
	}
	if p, ok := s.periodic[kind]; ok && p.due(now) {
		return p, db.TriggerSchedule
	}
	return nil, ""
}

// conditionsHold probes the declared conditions, reusing a negative answer
// until the poll interval has passed
func (s *Scheduler) conditionsHold(ctx context.Context, reg *registration, now time.Time) bool {
	if len(reg.conditions) == 0 {
		return true
	}
	if !reg.lastCheck.IsZero() && !reg.conditionsMet && now.Sub(reg.lastCheck) < s.config.ConditionPollInterval {
		return false
	}

	var unmet []string
	for _, c := range reg.conditions {
		if !s.checker.Holds(ctx, c) {
			unmet = append(unmet, c.String())
		}
	}

	reg.lastCheck = now
	reg.conditionsMet = len(unmet) == 0
	if !reg.conditionsMet {
		s.logger.Debug("job due but conditions not met",
			"job_kind", string(reg.kind),
			"unmet", unmet)
	}
	return reg.conditionsMet
}

func (s *Scheduler) startRun(ctx context.Context, reg *registration, triggeredBy string, now time.Time) {
	job := s.jobs[reg.kind]
	run := inFlightRun{
		runID:       uuid.NewString(),
		kind:        reg.kind,
		generation:  reg.generation,
		triggeredBy: triggeredBy,
		startedAt:   now,
	}
	s.inFlight[reg.kind] = &run

	s.logger.Info("starting job run",
		"job_kind", string(reg.kind),
		"run_id", run.runID,
		"triggered_by", triggeredBy,
		"attempt", reg.attempt+1)

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		result := jobs.Execute(ctx, job, s.logger)
		s.completions <- runComplete{run: run, result: result, completedAt: s.clock.Now()}
	}()
}

// handleCompletion records the run and reschedules its registration if the
// registration has not been replaced in the meantime
func (s *Scheduler) handleCompletion(c runComplete) {
	delete(s.inFlight, c.run.kind)
	s.lastOutcome[c.run.kind] = c.result.Outcome.String()

	logArgs := []any{
		"job_kind", string(c.run.kind),
		"run_id", c.run.runID,
		"outcome", c.result.Outcome.String(),
		"duration", c.completedAt.Sub(c.run.startedAt),
	}
	if c.result.Err != nil {
		logArgs = append(logArgs, "error", c.result.Err)
	}
	s.logger.Info("job run complete", logArgs...)

	record := db.JobRun{
		RunID:       c.run.runID,
		JobKind:     string(c.run.kind),
		TriggeredBy: c.run.triggeredBy,
		StartedAt:   c.run.startedAt,
		CompletedAt: c.completedAt,
		Outcome:     c.result.Outcome.String(),
	}
	if c.result.Err != nil {
		msg := c.result.Err.Error()
		record.Error = &msg
	}
	if err := s.runs.Buffer(record); err != nil {
		s.logger.Error("failed to buffer job run", "run_id", c.run.runID, "error", err)
	}

	regs := s.periodic
	if c.run.triggeredBy == db.TriggerManual {
		regs = s.triggered
	}
	reg, ok := regs[c.run.kind]
	if !ok || reg.generation != c.run.generation {
		return
	}

	s.reschedule(regs, reg, c.result.Outcome, c.completedAt)
}

func (s *Scheduler) reschedule(regs map[jobs.Kind]*registration, reg *registration, outcome jobs.Outcome, now time.Time) {
	reg.lastCheck = time.Time{}
	reg.conditionsMet = false

	if outcome == jobs.Retry {
		reg.attempt++
		delay := s.config.Backoff(reg.attempt)
		reg.nextRun = now.Add(delay)
		s.logger.Info("job will retry",
			"job_kind", string(reg.kind),
			"attempt", reg.attempt,
			"backoff", delay)
		return
	}

	if reg.oneOff() {
		delete(regs, reg.kind)
		return
	}

	reg.attempt = 0
	reg.nextRun = now.Add(reg.interval)
}

func (s *Scheduler) status() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, kind := range s.sortedKinds() {
		st := JobStatus{Kind: kind, LastOutcome: s.lastOutcome[kind]}
		if p, ok := s.periodic[kind]; ok {
			st.Scheduled = true
			st.Interval = p.interval
			st.Conditions = p.conditions
			st.NextRun = p.nextRun
			st.Attempt = p.attempt
		}
		_, st.Triggered = s.triggered[kind]
		_, st.InFlight = s.inFlight[kind]
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) sortedKinds() []jobs.Kind {
	kinds := make([]jobs.Kind, 0, len(s.jobs))
	for kind := range s.jobs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// handleShutdown waits for in-flight runs, then shuts down the run recorder
func (s *Scheduler) handleShutdown() {
	s.logger.Info("shutting down scheduler", "in_flight", len(s.inFlight))

	for len(s.inFlight) > 0 {
		s.handleCompletion(<-s.completions)
	}
	s.workers.Wait()

	if err := s.runs.Shutdown(); err != nil {
		s.logger.Error("error shutting down run log", "error", err)
	}

	stats := s.inbox.Stats()
	s.logger.Info("scheduler shutdown complete",
		"inbox_sent", stats.TotalSent,
		"inbox_received", stats.TotalReceived,
		"inbox_timeouts", stats.TimeoutCount,
		"inbox_max_depth", stats.MaxDepthSeen)
}

func conditionNames(conditions []Condition) []string {
	names := make([]string, len(conditions))
	for i, c := range conditions {
		names[i] = c.String()
	}
	return names
}
