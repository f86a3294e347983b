package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// Outcome is what a job run reports back to the scheduler
type Outcome int

const (
	Success Outcome = iota
	Retry
	PermanentFailure
)

// String returns a human-readable representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Result is an outcome plus the error that caused it, if any
type Result struct {
	Outcome Outcome
	Err     error
}

func succeeded() Result {
	return Result{Outcome: Success}
}

func retry(err error) Result {
	return Result{Outcome: Retry, Err: err}
}

func permanent(err error) Result {
	return Result{Outcome: PermanentFailure, Err: err}
}

// Kind names a scheduled job
type Kind string

const (
	KindBatteryRecorder   Kind = "battery_recorder"
	KindLowBattery        Kind = "low_battery"
	KindAnnouncementsSync Kind = "announcements_sync"
	KindBlogPostsSync     Kind = "blog_posts_sync"
)

// FeedSyncKind returns the job kind that synchronizes a feed
func FeedSyncKind(k feed.Kind) Kind {
	switch k {
	case feed.Announcements:
		return KindAnnouncementsSync
	case feed.BlogPosts:
		return KindBlogPostsSync
	default:
		return Kind(k.String() + "_sync")
	}
}

// Job is a unit of scheduled work
type Job interface {
	Kind() Kind
	Run(ctx context.Context) Result
}

// Execute runs a job and converts a panic into a PermanentFailure so nothing
// escapes the job boundary
func Execute(ctx context.Context, job Job, logger *slog.Logger) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked",
				"job_kind", string(job.Kind()),
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()))
			result = permanent(fmt.Errorf("job %s panicked: %v", job.Kind(), p))
		}
	}()

	return job.Run(ctx)
}

// Clock abstracts time retrieval so runs are deterministic in tests
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// DeviceSource lists devices for an API key
type DeviceSource interface {
	ListDevices(ctx context.Context, apiKey string) ([]trmnl.Device, error)
}

// FeedSource fetches the current entries of a feed
type FeedSource interface {
	FetchFeed(ctx context.Context, kind feed.Kind) ([]feed.Item, error)
}

// ReadingStore persists battery readings
type ReadingStore interface {
	InsertBatteryReadings(ctx context.Context, readings []db.BatteryReading) error
}

// FeedStore persists feed items
type FeedStore interface {
	GetFeedItems(ctx context.Context, kind feed.Kind) ([]feed.Item, error)
	UpsertFeedItems(ctx context.Context, kind feed.Kind, items []feed.Item) error
}
