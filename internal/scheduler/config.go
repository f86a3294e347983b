package scheduler

import (
	"fmt"
	"time"
)

// Config defines configuration for the scheduler's main loop
type Config struct {
	// Main loop iteration interval
	LoopInterval time.Duration `toml:"loop_interval"`

	// Inbox buffer size
	InboxBufferSize int `toml:"inbox_buffer_size"`

	// Timeout for sending to inbox
	InboxSendTimeout time.Duration `toml:"inbox_send_timeout"`

	// Retry backoff: initial_backoff * 2^(attempt-1), capped at max_backoff
	InitialBackoff time.Duration `toml:"initial_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff"`

	// How long a due job waits before its unmet conditions are probed again
	ConditionPollInterval time.Duration `toml:"condition_poll_interval"`

	// Per-kind schedules, keyed by job kind
	Jobs map[string]JobSchedule `toml:"jobs"`
}

// JobSchedule is the periodic registration for one job kind
type JobSchedule struct {
	Disabled   bool          `toml:"disabled"`
	Interval   time.Duration `toml:"interval"`
	Conditions []string      `toml:"conditions"`
}

// withDefaults fills an unset interval or condition list from def
func (j JobSchedule) withDefaults(def JobSchedule) JobSchedule {
	if j.Interval == 0 {
		j.Interval = def.Interval
	}
	if j.Conditions == nil {
		j.Conditions = def.Conditions
	}
	return j
}

// MergeJobSchedules overlays configured schedules on the defaults. A kind
// named in configured keeps any field it leaves unset from the default.
func MergeJobSchedules(configured map[string]JobSchedule) map[string]JobSchedule {
	merged := DefaultJobSchedules()
	for kind, job := range configured {
		if def, ok := merged[kind]; ok {
			job = job.withDefaults(def)
		}
		merged[kind] = job
	}
	return merged
}

// DefaultConfig returns scheduler defaults
func DefaultConfig() Config {
	return Config{
		LoopInterval:          1 * time.Second,
		InboxBufferSize:       100,
		InboxSendTimeout:      5 * time.Second,
		InitialBackoff:        30 * time.Second,
		MaxBackoff:            5 * time.Hour,
		ConditionPollInterval: 30 * time.Second,
		Jobs:                  DefaultJobSchedules(),
	}
}

// DefaultJobSchedules returns the cadence of each built-in job
func DefaultJobSchedules() map[string]JobSchedule {
	return map[string]JobSchedule{
		"battery_recorder": {
			Interval:   4 * time.Hour,
			Conditions: []string{"network"},
		},
		"low_battery": {
			Interval:   24 * time.Hour,
			Conditions: []string{"network"},
		},
		"announcements_sync": {
			Interval:   24 * time.Hour,
			Conditions: []string{"network"},
		},
		"blog_posts_sync": {
			Interval:   7 * 24 * time.Hour,
			Conditions: []string{"network", "idle"},
		},
	}
}

// Validate checks loop settings and every job schedule
func (c Config) Validate() error {
	if c.LoopInterval <= 0 {
		return fmt.Errorf("loop_interval must be positive, got %v", c.LoopInterval)
	}

	if c.InboxBufferSize <= 0 {
		return fmt.Errorf("inbox_buffer_size must be positive, got %d", c.InboxBufferSize)
	}

	if c.InboxSendTimeout <= 0 {
		return fmt.Errorf("inbox_send_timeout must be positive, got %v", c.InboxSendTimeout)
	}

	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive, got %v", c.InitialBackoff)
	}

	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must not be less than initial_backoff (%v)",
			c.MaxBackoff, c.InitialBackoff)
	}

	if c.ConditionPollInterval <= 0 {
		return fmt.Errorf("condition_poll_interval must be positive, got %v", c.ConditionPollInterval)
	}

	for kind, job := range c.Jobs {
		if job.Disabled {
			continue
		}
		if job.Interval <= 0 {
			return fmt.Errorf("jobs.%s: interval must be positive, got %v", kind, job.Interval)
		}
		if _, err := ParseConditions(job.Conditions); err != nil {
			return fmt.Errorf("jobs.%s: %w", kind, err)
		}
	}

	return nil
}

// Backoff returns the delay before retry number attempt (1-based)
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff || d <= 0 {
			return c.MaxBackoff
		}
	}
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
