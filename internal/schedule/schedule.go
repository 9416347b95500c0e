// Package schedule records when a watched item's auction-ended notification
// is due.
package schedule

import (
	"context"

	"github.com/rs/zerolog"

	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/logging"
	"auction-tracker/internal/models"
	"auction-tracker/internal/store"
)

// Scheduler turns newly created watchlist items into scheduled notifications.
type Scheduler struct {
	store  store.NotificationStore
	logger zerolog.Logger
}

// New creates a Scheduler.
func New(notifications store.NotificationStore, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:  notifications,
		logger: logging.WithOperation(logger, "schedule"),
	}
}

// Schedule records a notification for item, due at its end time. Items
// without an absolute end time are skipped. Calling Schedule again for the
// same item overwrites the pending record; records that have already left
// the scheduled state are left alone.
func (s *Scheduler) Schedule(ctx context.Context, userID string, item *models.WatchlistItem) error {
	log := logging.WithItem(s.logger, userID, item.ID)

	if !item.HasEndTime() {
		log.Info().Msg("No auction end time, notification not scheduled")
		return nil
	}

	n := &models.ScheduledNotification{
		UserID:        userID,
		ItemID:        item.ID,
		CardName:      item.CardName,
		ScheduledTime: item.Timing.EndTime,
		Status:        models.StatusScheduled,
	}
	if err := s.store.UpsertNotification(ctx, n); err != nil {
		return apperrors.Wrapf(err, "scheduling notification for item %s", item.ID)
	}

	logging.LogScheduled(log, userID, item.ID, n.ScheduledTime)
	return nil
}

// Unschedule drops the pending notification for an item that no longer has
// an end time. A record a sweep has already claimed is left to finish.
func (s *Scheduler) Unschedule(ctx context.Context, userID, itemID string) error {
	removed, err := s.store.CancelNotification(ctx, userID, itemID)
	if err != nil {
		return apperrors.Wrapf(err, "cancelling notification for item %s", itemID)
	}
	if removed {
		log := logging.WithItem(s.logger, userID, itemID)
		log.Info().Msg("Pending notification cancelled")
	}
	return nil
}
