package inbox

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Inbox is a buffered, typed mailbox with one reader. Senders give up after a
// timeout instead of blocking the owner forever.
type Inbox[T any] struct {
	ch      chan T
	timeout time.Duration
	logger  *slog.Logger

	sent     atomic.Int64
	received atomic.Int64
	timeouts atomic.Int64
	maxDepth atomic.Int64
}

// Stats is a point-in-time view of inbox usage
type Stats struct {
	TotalSent     int64
	TotalReceived int64
	TimeoutCount  int64
	CurrentDepth  int
	MaxDepthSeen  int
}

// New creates an inbox with the given buffer size and send timeout
func New[T any](bufferSize int, timeout time.Duration, logger *slog.Logger) *Inbox[T] {
	return &Inbox[T]{
		ch:      make(chan T, bufferSize),
		timeout: timeout,
		logger:  logger,
	}
}

// Send delivers msg, returning false if the inbox stayed full for the whole
// timeout
func (ib *Inbox[T]) Send(msg T) bool {
	timer := time.NewTimer(ib.timeout)
	defer timer.Stop()

	select {
	case ib.ch <- msg:
		ib.sent.Add(1)
		ib.observeDepth()
		return true
	case <-timer.C:
		ib.timeouts.Add(1)
		ib.logger.Warn("inbox send timeout",
			"timeout", ib.timeout,
			"current_depth", len(ib.ch))
		return false
	}
}

// TryReceive returns the next message without blocking
func (ib *Inbox[T]) TryReceive() (T, bool) {
	select {
	case msg := <-ib.ch:
		ib.received.Add(1)
		return msg, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for use in a select. Callers that take a message
// from C must call Ack so the counters stay accurate.
func (ib *Inbox[T]) C() <-chan T {
	return ib.ch
}

// Ack records a message taken directly from C
func (ib *Inbox[T]) Ack() {
	ib.received.Add(1)
}

func (ib *Inbox[T]) observeDepth() {
	depth := int64(len(ib.ch))
	for {
		seen := ib.maxDepth.Load()
		if depth <= seen || ib.maxDepth.CompareAndSwap(seen, depth) {
			return
		}
	}
}

// Stats returns current counters
func (ib *Inbox[T]) Stats() Stats {
	return Stats{
		TotalSent:     ib.sent.Load(),
		TotalReceived: ib.received.Load(),
		TimeoutCount:  ib.timeouts.Load(),
		CurrentDepth:  len(ib.ch),
		MaxDepthSeen:  int(ib.maxDepth.Load()),
	}
}

// Len returns the number of queued messages
func (ib *Inbox[T]) Len() int {
	return len(ib.ch)
}
