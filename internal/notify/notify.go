package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Kind identifies what a notification is about
type Kind string

const (
	KindLowBattery   Kind = "low_battery"
	KindNewFeedItems Kind = "new_feed_items"
)

// Notification is a single user-facing alert
type Notification struct {
	Kind          Kind   `json:"kind"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	AffectedCount int    `json:"affected_count"`
}

// Notifier delivers notifications to whatever presents them to the user.
// Delivery is fire-and-forget from the caller's point of view: a returned
// error is logged, never retried.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.Info("notification",
		"kind", string(n.Kind),
		"title", n.Title,
		"body", n.Body,
		"affected_count", n.AffectedCount)
	return nil
}

// Multi fans a notification out to every notifier, attempting all of them
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
