package db

import "time"

// BatteryReading is one device's battery state captured during a collection run.
// Readings from the same run share CollectedAt exactly.
type BatteryReading struct {
	ID             string
	DeviceID       string
	DeviceName     string
	PercentCharged float64
	Voltage        *float64 // nil when the device did not report a voltage
	CollectedAt    time.Time
}

// Values for JobRun.TriggeredBy
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// JobRun records the outcome of a single scheduled job execution
type JobRun struct {
	RunID       string
	JobKind     string
	TriggeredBy string
	StartedAt   time.Time
	CompletedAt time.Time
	Outcome     string
	Error       *string
}
