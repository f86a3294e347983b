package scheduler

import (
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
)

// Message is the container for all requests sent to the scheduler loop
type Message struct {
	Type         MessageType
	Data         any
	ResponseChan chan<- any // Optional, for request/response
}

// MessageType identifies the type of message being sent to the scheduler
type MessageType int

const (
	MsgSchedule MessageType = iota
	MsgCancel
	MsgTriggerNow
	MsgGetStatus
)

// String returns a human-readable representation of the message type
func (m MessageType) String() string {
	switch m {
	case MsgSchedule:
		return "schedule"
	case MsgCancel:
		return "cancel"
	case MsgTriggerNow:
		return "trigger_now"
	case MsgGetStatus:
		return "get_status"
	default:
		return "unknown"
	}
}

// ScheduleMsg registers or replaces the periodic schedule of a job kind
type ScheduleMsg struct {
	Kind       jobs.Kind
	Interval   time.Duration
	Conditions []Condition
}

// CancelMsg removes the periodic schedule and any pending trigger
type CancelMsg struct {
	Kind jobs.Kind
}

// TriggerNowMsg queues a one-off run
type TriggerNowMsg struct {
	Kind jobs.Kind
}

// StatusResponse answers MsgGetStatus
type StatusResponse struct {
	Jobs []JobStatus
}
