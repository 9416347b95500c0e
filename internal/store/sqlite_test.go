package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWatchItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	end := time.Date(2025, 5, 1, 18, 30, 0, 0, time.UTC)
	price := decimal.RequireFromString("1250.50")
	item := &models.WatchlistItem{
		ID:              "w1",
		CardName:        "Ancient Dragon",
		Seller:          "Mordred",
		Price:           &price,
		Description:     "foil",
		Race:            models.RaceElf,
		Rarity:          6,
		HasBids:         true,
		ActivelyBidding: false,
		Timing:          models.AbsoluteWindow(end, 24),
	}
	require.NoError(t, s.SaveWatchItem(ctx, "u1", item))

	got, err := s.GetWatchItem(ctx, "u1", "w1")
	require.NoError(t, err)

	assert.Equal(t, "Ancient Dragon", got.CardName)
	assert.Equal(t, "Mordred", got.Seller)
	require.NotNil(t, got.Price)
	assert.True(t, price.Equal(*got.Price))
	assert.Equal(t, models.RaceElf, got.Race)
	assert.Equal(t, 6, got.Rarity)
	assert.True(t, got.HasBids)
	assert.Equal(t, models.TimingAbsolute, got.Timing.Kind)
	assert.True(t, end.Equal(got.Timing.EndTime))
	assert.Equal(t, 24.0, got.Timing.DurationHours)
	assert.True(t, got.HasEndTime())
}

func TestWatchItemRelativeTiming(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{
		ID:       "legacy",
		CardName: "Goblin Scout",
		Timing:   models.RelativeCountdown(2),
	}))

	got, err := s.GetWatchItem(ctx, "u1", "legacy")
	require.NoError(t, err)
	assert.Equal(t, models.TimingRelative, got.Timing.Kind)
	assert.Equal(t, "2", got.Timing.TimeLeft())
	assert.Nil(t, got.Price)
	assert.False(t, got.HasEndTime())
}

func TestWatchlistOrderAndUpdateKeepsPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{ID: id, CardName: id, Timing: models.RelativeCountdown(1)}))
	}

	require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{ID: "a", CardName: "renamed", Timing: models.RelativeCountdown(1)}))

	list, err := s.GetWatchlist(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "renamed", list[0].CardName)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)

	other, err := s.GetWatchlist(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteWatchItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{ID: "a", CardName: "a"}))
	require.NoError(t, s.DeleteWatchItem(ctx, "u1", "a"))

	_, err := s.GetWatchItem(ctx, "u1", "a")
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
	assert.ErrorIs(t, s.DeleteWatchItem(ctx, "u1", "a"), apperrors.ErrItemNotFound)
}

func TestReplaceWatchlist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{ID: "old", CardName: "old"}))
	require.NoError(t, s.ReplaceWatchlist(ctx, "u1", []models.WatchlistItem{
		{ID: "x", CardName: "x"},
		{ID: "y", CardName: "y"},
	}))

	list, err := s.GetWatchlist(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "x", list[0].ID)
	assert.Equal(t, "y", list[1].ID)
}

func TestBidsAndFutureCards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gold := decimal.NewFromInt(300)
	require.NoError(t, s.SaveBid(ctx, "u1", &models.CurrentBid{
		ID:         "b1",
		CardName:   "Frost Giant",
		GoldAmount: &gold,
		Outbid:     true,
		Timing:     models.RelativeCountdown(5.5),
	}))
	require.NoError(t, s.SaveFutureCard(ctx, "u1", &models.FutureCard{ID: "f1", Name: "Phoenix"}))

	data, err := s.GetUserData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", data.User.ID)
	assert.Empty(t, data.User.Email)
	require.Len(t, data.CurrentBids, 1)
	assert.True(t, data.CurrentBids[0].Outbid)
	assert.True(t, gold.Equal(*data.CurrentBids[0].GoldAmount))
	assert.Equal(t, "5.5", data.CurrentBids[0].Timing.TimeLeft())
	assert.False(t, data.CurrentBids[0].BidTime.IsZero())
	require.Len(t, data.FutureCards, 1)
	assert.Equal(t, "Phoenix", data.FutureCards[0].Name)
	assert.Empty(t, data.Watchlist)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "a@example.com"}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "b@example.com"}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", u.Email)
}

func TestUpsertNotificationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	n := &models.ScheduledNotification{UserID: "u1", ItemID: "i1", CardName: "Dragon", ScheduledTime: at}
	require.NoError(t, s.UpsertNotification(ctx, n))
	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{
		UserID: "u1", ItemID: "i1", CardName: "Dragon v2", ScheduledTime: at.Add(time.Hour),
	}))

	all, err := s.ListNotifications(ctx, NotificationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Dragon v2", all[0].CardName)
	assert.Equal(t, models.StatusScheduled, all[0].Status)
	assert.True(t, at.Add(time.Hour).Equal(all[0].ScheduledTime))
}

func TestUpsertNotificationDoesNotReviveFinishedRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: "i1", CardName: "Dragon", ScheduledTime: at}))
	require.NoError(t, s.TransitionNotification(ctx, "u1", "i1", models.StatusScheduled, models.StatusProcessing, ""))
	require.NoError(t, s.TransitionNotification(ctx, "u1", "i1", models.StatusProcessing, models.StatusCompleted, ""))

	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: "i1", CardName: "Dragon", ScheduledTime: at}))

	got, err := s.GetNotification(ctx, "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestCancelNotificationOnlyWhileScheduled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: "pending", CardName: "A", ScheduledTime: at}))
	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: "claimed", CardName: "B", ScheduledTime: at}))
	require.NoError(t, s.TransitionNotification(ctx, "u1", "claimed", models.StatusScheduled, models.StatusProcessing, ""))

	removed, err := s.CancelNotification(ctx, "u1", "pending")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = s.GetNotification(ctx, "u1", "pending")
	assert.ErrorIs(t, err, apperrors.ErrNotificationAbsent)

	removed, err = s.CancelNotification(ctx, "u1", "claimed")
	require.NoError(t, err)
	assert.False(t, removed)
	got, err := s.GetNotification(ctx, "u1", "claimed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	removed, err = s.CancelNotification(ctx, "u1", "never")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSetCountdownIsConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	end := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{ID: "rel", CardName: "A", Timing: models.RelativeCountdown(2)}))
	require.NoError(t, s.SaveWatchItem(ctx, "u1", &models.WatchlistItem{ID: "abs", CardName: "B", Timing: models.AbsoluteWindow(end, 3)}))
	require.NoError(t, s.SaveBid(ctx, "u1", &models.CurrentBid{ID: "bid", CardName: "C", Timing: models.RelativeCountdown(1.5)}))

	ok, err := s.SetWatchCountdown(ctx, "u1", "rel", 2, 1.98)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale from value
	ok, err = s.SetWatchCountdown(ctx, "u1", "rel", 2, 1.98)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SetWatchCountdown(ctx, "u1", "abs", 0, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SetWatchCountdown(ctx, "u1", "missing", 2, 1.98)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SetBidCountdown(ctx, "u1", "bid", 1.5, 1.48)
	require.NoError(t, err)
	assert.True(t, ok)

	rel, err := s.GetWatchItem(ctx, "u1", "rel")
	require.NoError(t, err)
	assert.Equal(t, "1.98", rel.Timing.TimeLeft())

	abs, err := s.GetWatchItem(ctx, "u1", "abs")
	require.NoError(t, err)
	assert.True(t, end.Equal(abs.Timing.EndTime))

	bid, err := s.GetBid(ctx, "u1", "bid")
	require.NoError(t, err)
	assert.Equal(t, "1.48", bid.Timing.TimeLeft())

	_, err = s.GetWatchItem(ctx, "u1", "missing")
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
}

func TestListDueNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		item string
		at   time.Time
	}{
		{"past2", now.Add(-2 * time.Hour)},
		{"past1", now.Add(-time.Minute)},
		{"exact", now},
		{"future", now.Add(time.Second)},
		{"claimed", now.Add(-3 * time.Hour)},
	}
	for _, sd := range seed {
		require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: sd.item, CardName: sd.item, ScheduledTime: sd.at}))
	}
	require.NoError(t, s.TransitionNotification(ctx, "u1", "claimed", models.StatusScheduled, models.StatusProcessing, ""))

	due, err := s.ListDueNotifications(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "past2", due[0].ItemID)
	assert.Equal(t, "past1", due[1].ItemID)
	assert.Equal(t, "exact", due[2].ItemID)

	limited, err := s.ListDueNotifications(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Non-UTC input is normalised before comparison.
	local := now.In(time.FixedZone("UTC+5", 5*3600))
	due, err = s.ListDueNotifications(ctx, local, 50)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestTransitionNotification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: "i1", CardName: "x", ScheduledTime: time.Now()}))

	err := s.TransitionNotification(ctx, "u1", "i1", models.StatusScheduled, models.StatusCompleted, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	require.NoError(t, s.TransitionNotification(ctx, "u1", "i1", models.StatusScheduled, models.StatusProcessing, ""))

	err = s.TransitionNotification(ctx, "u1", "i1", models.StatusScheduled, models.StatusProcessing, "")
	assert.ErrorIs(t, err, apperrors.ErrClaimLost)

	require.NoError(t, s.TransitionNotification(ctx, "u1", "i1", models.StatusProcessing, models.StatusError, "user u1 not found"))
	got, err := s.GetNotification(ctx, "u1", "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "user u1 not found", got.Error)

	err = s.TransitionNotification(ctx, "u1", "missing", models.StatusScheduled, models.StatusProcessing, "")
	assert.ErrorIs(t, err, apperrors.ErrNotificationAbsent)
}

func TestTransitionNotificationSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNotification(ctx, &models.ScheduledNotification{UserID: "u1", ItemID: "i1", CardName: "x", ScheduledTime: time.Now()}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.TransitionNotification(ctx, "u1", "i1", models.StatusScheduled, models.StatusProcessing, ""); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMailOutbox(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMail(ctx, &models.MailRecord{To: "a@example.com", Subject: "hi", Text: "body"}))

	mail, err := s.GetMail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mail, 1)
	assert.NotEmpty(t, mail[0].ID)
	assert.Equal(t, "a@example.com", mail[0].To)
	assert.Equal(t, "body", mail[0].Text)
}

func TestClosedStoreReportsDatabaseError(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, apperrors.ErrDatabaseError)
	assert.NotErrorIs(t, err, apperrors.ErrUserNotFound)
}
