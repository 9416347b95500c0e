// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"auction-tracker/internal/models"
)

// UserStore resolves account records.
type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// CollectionStore holds the three per-user collections. Writes are
// per item; ReplaceWatchlist is the only whole-collection write and is
// last-write-wins.
type CollectionStore interface {
	// Watchlist
	SaveWatchItem(ctx context.Context, userID string, item *models.WatchlistItem) error
	GetWatchItem(ctx context.Context, userID, itemID string) (*models.WatchlistItem, error)
	GetWatchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	DeleteWatchItem(ctx context.Context, userID, itemID string) error
	ReplaceWatchlist(ctx context.Context, userID string, items []models.WatchlistItem) error

	// Current bids
	SaveBid(ctx context.Context, userID string, bid *models.CurrentBid) error
	GetBid(ctx context.Context, userID, bidID string) (*models.CurrentBid, error)
	GetBids(ctx context.Context, userID string) ([]models.CurrentBid, error)
	DeleteBid(ctx context.Context, userID, bidID string) error

	// Relative countdowns. The write only lands while the row is still
	// relative and still holds from.
	SetWatchCountdown(ctx context.Context, userID, itemID string, from, to float64) (bool, error)
	SetBidCountdown(ctx context.Context, userID, bidID string, from, to float64) (bool, error)

	// Future cards
	SaveFutureCard(ctx context.Context, userID string, card *models.FutureCard) error
	GetFutureCard(ctx context.Context, userID, cardID string) (*models.FutureCard, error)
	GetFutureCards(ctx context.Context, userID string) ([]models.FutureCard, error)
	DeleteFutureCard(ctx context.Context, userID, cardID string) error

	GetUserData(ctx context.Context, userID string) (*models.UserData, error)
}

// NotificationStore persists scheduled notification records.
type NotificationStore interface {
	UpsertNotification(ctx context.Context, n *models.ScheduledNotification) error
	GetNotification(ctx context.Context, userID, itemID string) (*models.ScheduledNotification, error)
	ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]models.ScheduledNotification, error)

	// CancelNotification drops a record that is still scheduled. It
	// reports false when there was none or a sweep already claimed it.
	CancelNotification(ctx context.Context, userID, itemID string) (bool, error)

	// TransitionNotification moves a record from one status to another in
	// a single conditional write. It fails with ErrClaimLost when the
	// record is no longer in the expected status.
	TransitionNotification(ctx context.Context, userID, itemID string, from, to models.NotificationStatus, reason string) error
}

// MailStore is the outbox of dispatched messages.
type MailStore interface {
	SaveMail(ctx context.Context, mail *models.MailRecord) error
	GetMail(ctx context.Context, limit int) ([]models.MailRecord, error)
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	UserStore
	CollectionStore
	NotificationStore
	MailStore

	Close() error
}

// NotificationFilter represents filters for querying scheduled notifications.
type NotificationFilter struct {
	UserID string
	Status models.NotificationStatus
	Limit  int
}
