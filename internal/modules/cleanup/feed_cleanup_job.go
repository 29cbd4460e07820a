// Package cleanup removes stale rows from the feed event log.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// FeedStore is the subset of the feed repository the cleanup job needs.
type FeedStore interface {
	DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteUserEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FeedCleanupJob purges seen feed rows and old UI interaction events past
// the retention window. Unseen rows are kept: they are still candidates for
// backfill regardless of age.
type FeedCleanupJob struct {
	store     FeedStore
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewFeedCleanupJob creates a new feed cleanup job.
func NewFeedCleanupJob(store FeedStore, retention time.Duration, log zerolog.Logger) *FeedCleanupJob {
	return &FeedCleanupJob{
		store:     store,
		retention: retention,
		log:       log.With().Str("job", "feed_cleanup").Logger(),
		now:       time.Now,
	}
}

// Run executes the cleanup job.
func (j *FeedCleanupJob) Run() error {
	ctx := context.Background()
	cutoff := j.now().Add(-j.retention)

	seenDeleted, err := j.store.DeleteSeenBefore(ctx, cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete seen feed rows")
		return err
	}

	eventsDeleted, err := j.store.DeleteUserEventsBefore(ctx, cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete old user events")
		return err
	}

	if seenDeleted > 0 || eventsDeleted > 0 {
		j.log.Info().
			Int64("seen_feed_rows", seenDeleted).
			Int64("user_events", eventsDeleted).
			Time("cutoff", cutoff).
			Msg("Feed cleanup completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *FeedCleanupJob) Name() string {
	return "feed_cleanup"
}
