package sweep

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/models"
	"auction-tracker/internal/notify"
	"auction-tracker/internal/schedule"
	"auction-tracker/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *recordingDispatcher) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.sent...)
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() Config {
	return Config{BatchSize: 50, Concurrency: 4, DispatchAttempts: 1, ResultsBaseURL: "https://yourapp.com"}
}

func newSweeper(s *store.SQLiteStore, d notify.Dispatcher, now time.Time) *Sweeper {
	sw := New(testConfig(), s, s, d, zerolog.Nop())
	sw.now = func() time.Time { return now }
	return sw
}

func addNotification(t *testing.T, s *store.SQLiteStore, userID, itemID, card string, at time.Time) {
	t.Helper()
	require.NoError(t, s.UpsertNotification(context.Background(), &models.ScheduledNotification{
		UserID:        userID,
		ItemID:        itemID,
		CardName:      card,
		ScheduledTime: at,
	}))
}

func status(t *testing.T, s *store.SQLiteStore, userID, itemID string) *models.ScheduledNotification {
	t.Helper()
	n, err := s.GetNotification(context.Background(), userID, itemID)
	require.NoError(t, err)
	return n
}

func TestRunOnceNothingDue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	addNotification(t, s, "u1", "future", "Phoenix", now.Add(time.Hour))

	d := &recordingDispatcher{}
	res, err := newSweeper(s, d, now).RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{}, res)
	assert.Empty(t, d.messages())
	assert.Equal(t, models.StatusScheduled, status(t, s, "u1", "future").Status)
}

func TestRunOnceMixedOutcomes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u0", Email: "zero@example.com"}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u2", Email: "two@example.com"}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u3", Email: ""}))
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u4", Email: "four@example.com"}))

	for i, uid := range []string{"u0", "u1", "u2", "u3", "u4"} {
		addNotification(t, s, uid, "item", "Card "+uid, now.Add(-time.Duration(i+1)*time.Minute))
	}

	d := &recordingDispatcher{}
	res, err := newSweeper(s, d, now).RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, Result{Due: 5, Completed: 3, Failed: 2}, res)
	assert.Len(t, d.messages(), 3)

	for _, uid := range []string{"u0", "u2", "u4"} {
		n := status(t, s, uid, "item")
		assert.Equal(t, models.StatusCompleted, n.Status, uid)
		assert.Empty(t, n.Error)
	}

	missing := status(t, s, "u1", "item")
	assert.Equal(t, models.StatusError, missing.Status)
	assert.Equal(t, "User u1 not found", missing.Error)

	noEmail := status(t, s, "u3", "item")
	assert.Equal(t, models.StatusError, noEmail.Status)
	assert.Equal(t, "No email found for user u3", noEmail.Error)
}

func TestTwentyFourHourWindowNotifiesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "jo@example.com"}))
	item := &models.WatchlistItem{ID: "w1", CardName: "Ancient Dragon", Timing: models.WindowFrom(t0, 24)}
	require.NoError(t, schedule.New(s, zerolog.Nop()).Schedule(ctx, "u1", item))

	d := &recordingDispatcher{}

	res, err := newSweeper(s, d, t0.Add(23*time.Hour)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Empty(t, d.messages())

	res, err = newSweeper(s, d, t0.Add(24*time.Hour)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)

	res, err = newSweeper(s, d, t0.Add(25*time.Hour)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)

	msgs := d.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "jo@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "Ancient Dragon")
	assert.Contains(t, msgs[0].HTML, "https://yourapp.com/auctions/w1")
	assert.Equal(t, models.StatusCompleted, status(t, s, "u1", "w1").Status)
}

func TestDispatchFailureMarksError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "jo@example.com"}))
	addNotification(t, s, "u1", "w1", "Phoenix", now)

	d := &recordingDispatcher{err: apperrors.NewDispatchError("smtp", "jo@example.com", errors.New("connection refused"))}
	res, err := newSweeper(s, d, now).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 1, Failed: 1}, res)

	n := status(t, s, "u1", "w1")
	assert.Equal(t, models.StatusError, n.Status)
	assert.Contains(t, n.Error, "connection refused")

	// error records are not retried by later sweeps
	res, err = newSweeper(s, &recordingDispatcher{}, now.Add(time.Hour)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
}

type flakyDispatcher struct {
	calls atomic.Int32
	fails int32
}

func (f *flakyDispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	if f.calls.Add(1) <= f.fails {
		return errors.New("temporary")
	}
	return nil
}

func TestDispatchRetryWhenConfigured(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "jo@example.com"}))
	addNotification(t, s, "u1", "w1", "Phoenix", now)

	cfg := testConfig()
	cfg.DispatchAttempts = 3
	cfg.RetryDelay = time.Millisecond

	d := &flakyDispatcher{fails: 2}
	sw := New(cfg, s, s, d, zerolog.Nop())
	sw.now = func() time.Time { return now }

	res, err := sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, int32(3), d.calls.Load())
}

func TestConcurrentSweepsDeliverOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", Email: "jo@example.com"}))
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		addNotification(t, s, "u1", id, "Card "+id, now.Add(-time.Minute))
	}

	d := &recordingDispatcher{}
	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := newSweeper(s, d, now).RunOnce(ctx)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	completed := 0
	for _, r := range results {
		completed += r.Completed
	}
	assert.Equal(t, 6, completed)

	seen := map[string]int{}
	for _, m := range d.messages() {
		seen[m.Subject]++
	}
	assert.Len(t, seen, 6)
	for subject, count := range seen {
		assert.Equal(t, 1, count, subject)
	}
}

// brokenStore fails the batch query and records any mutation attempt.
type brokenStore struct {
	store.NotificationStore
	mutations atomic.Int32
}

func (b *brokenStore) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error) {
	return nil, apperrors.NewStoreError("scheduled_notifications", "due", errors.New("database is locked"))
}

func (b *brokenStore) TransitionNotification(ctx context.Context, userID, itemID string, from, to models.NotificationStatus, reason string) error {
	b.mutations.Add(1)
	return nil
}

func TestBatchQueryFailureAbortsWithoutMutation(t *testing.T) {
	bs := &brokenStore{}
	d := &recordingDispatcher{}
	sw := New(testConfig(), bs, nil, d, zerolog.Nop())

	_, err := sw.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying due notifications")
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, int32(0), bs.mutations.Load())
	assert.Empty(t, d.messages())
}

type countingStore struct {
	store.NotificationStore
	queries atomic.Int32
}

func (c *countingStore) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error) {
	c.queries.Add(1)
	return nil, nil
}

func TestRunnerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	cs := &countingStore{}
	sw := New(testConfig(), cs, nil, notify.NewNoOpDispatcher(), zerolog.Nop())
	r := NewRunner(sw, 5*time.Millisecond, zerolog.Nop())

	r.Start(context.Background())
	r.Start(context.Background())

	require.Eventually(t, func() bool { return cs.queries.Load() >= 3 }, time.Second, time.Millisecond)

	r.Stop()
	r.Stop()

	after := cs.queries.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, cs.queries.Load())
}

func TestRunnerStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	cs := &countingStore{}
	sw := New(testConfig(), cs, nil, notify.NewNoOpDispatcher(), zerolog.Nop())
	r := NewRunner(sw, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.Eventually(t, func() bool { return cs.queries.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	r.Stop()
}
