package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/livinlefevreloca/trmnlwatch/internal/notify"
	"github.com/livinlefevreloca/trmnlwatch/internal/prefs"
)

// FeedSynchronizer merges a remote feed into local storage without losing
// read state, and notifies about ids it has never stored before
type FeedSynchronizer struct {
	kind     feed.Kind
	prefs    prefs.Source
	source   FeedSource
	store    FeedStore
	notifier notify.Notifier
	clock    Clock
	logger   *slog.Logger
}

// NewFeedSynchronizer creates a synchronizer for one feed kind
func NewFeedSynchronizer(kind feed.Kind, source prefs.Source, remote FeedSource, store FeedStore, notifier notify.Notifier, clock Clock, logger *slog.Logger) *FeedSynchronizer {
	if clock == nil {
		clock = RealClock{}
	}
	return &FeedSynchronizer{
		kind:     kind,
		prefs:    source,
		source:   remote,
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With("job_kind", string(FeedSyncKind(kind)), "feed", kind.String()),
	}
}

// Kind implements Job
func (s *FeedSynchronizer) Kind() Kind {
	return FeedSyncKind(s.kind)
}

// Run implements Job
func (s *FeedSynchronizer) Run(ctx context.Context) Result {
	remote, err := s.source.FetchFeed(ctx, s.kind)
	if err != nil {
		outcome := classifyFeedFailure(err)
		logFetchFailure(s.logger, outcome, err)
		return Result{Outcome: outcome, Err: err}
	}

	// Stored state is fully materialized before anything is written.
	existing, err := s.store.GetFeedItems(ctx, s.kind)
	if err != nil {
		s.logger.Error("failed to read stored items", "error", err)
		return permanent(fmt.Errorf("reading stored %s: %w", s.kind, err))
	}

	merged := feed.Merge(existing, remote, s.clock.Now())
	if len(merged.Items) == 0 {
		s.logger.Info("remote feed empty, nothing to store", "stored_count", len(existing))
		return succeeded()
	}

	if err := s.store.UpsertFeedItems(ctx, s.kind, merged.Items); err != nil {
		s.logger.Error("failed to store items", "error", err, "count", len(merged.Items))
		return permanent(fmt.Errorf("storing %s: %w", s.kind, err))
	}

	s.logger.Info("synchronized feed",
		"remote_count", len(merged.Items),
		"new_count", merged.NewCount)

	if merged.NewCount == 0 {
		return succeeded()
	}

	snap, err := s.prefs.Snapshot(ctx)
	if err != nil {
		// Items are already stored; losing the notification is not worth a rerun.
		s.logger.Warn("failed to read preferences, skipping notification", "error", err)
		return succeeded()
	}
	if !snap.FeedNotificationsEnabledFor(s.kind) {
		s.logger.Debug("feed notifications disabled", "new_count", merged.NewCount)
		return succeeded()
	}

	if err := s.notifier.Notify(ctx, NewItemsNotification(s.kind, merged.NewCount)); err != nil {
		s.logger.Warn("failed to deliver notification", "error", err)
	}
	return succeeded()
}

// NewItemsNotification builds the notification for newCount unseen items
func NewItemsNotification(kind feed.Kind, newCount int) notify.Notification {
	title := fmt.Sprintf("%d new %s", newCount, kind.Label())
	if newCount == 1 {
		title = fmt.Sprintf("1 new %s", singular(kind))
	}
	return notify.Notification{
		Kind:          notify.KindNewFeedItems,
		Title:         title,
		Body:          fmt.Sprintf("TRMNL published %d new %s", newCount, kind.Label()),
		AffectedCount: newCount,
	}
}

func singular(kind feed.Kind) string {
	switch kind {
	case feed.Announcements:
		return "announcement"
	case feed.BlogPosts:
		return "blog post"
	default:
		return kind.Label()
	}
}
