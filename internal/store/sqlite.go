// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Accounts supplied by the auth system
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Watchlist items, ordered per user by position
	CREATE TABLE IF NOT EXISTS watchlist (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		card_name TEXT NOT NULL,
		seller TEXT,
		price TEXT,
		description TEXT,
		race TEXT,
		rarity INTEGER DEFAULT 0,
		has_bids INTEGER DEFAULT 0,
		actively_bidding INTEGER DEFAULT 0,
		timing_kind TEXT NOT NULL,
		time_left TEXT,
		end_time DATETIME,
		duration_hours REAL DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	-- Current bids
	CREATE TABLE IF NOT EXISTS current_bids (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		card_name TEXT NOT NULL,
		bid_time DATETIME NOT NULL,
		seller TEXT,
		gold_amount TEXT,
		outbid INTEGER DEFAULT 0,
		plan_to_rebid INTEGER DEFAULT 0,
		timing_kind TEXT NOT NULL,
		time_left TEXT,
		end_time DATETIME,
		duration_hours REAL DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	-- Cards of interest without an auction yet
	CREATE TABLE IF NOT EXISTS future_cards (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		date_added DATETIME NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	-- One record per watchlist item with an end time
	CREATE TABLE IF NOT EXISTS scheduled_notifications (
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		card_name TEXT NOT NULL,
		scheduled_time DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'scheduled',
		error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, item_id)
	);

	-- Outbox of dispatched messages
	CREATE TABLE IF NOT EXISTS mail (
		id TEXT PRIMARY KEY,
		to_addr TEXT NOT NULL,
		subject TEXT NOT NULL,
		text_body TEXT,
		html_body TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_watchlist_user ON watchlist(user_id, position);
	CREATE INDEX IF NOT EXISTS idx_bids_user ON current_bids(user_id, position);
	CREATE INDEX IF NOT EXISTS idx_future_user ON future_cards(user_id, position);
	CREATE INDEX IF NOT EXISTS idx_notifications_due ON scheduled_notifications(status, scheduled_time);
	CREATE INDEX IF NOT EXISTS idx_mail_created ON mail(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Users
// ============================================================================

// SaveUser inserts a user or updates its email.
func (s *SQLiteStore) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email
	`, user.ID, user.Email, user.CreatedAt.UTC())
	if err != nil {
		return apperrors.NewStoreError("users", "save", err)
	}
	return nil
}

// GetUser returns the user or ErrUserNotFound.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, created_at FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("users", "get", err)
	}
	return &u, nil
}

// ListUserIDs returns every user that owns a bid or a watchlist item.
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM watchlist
		UNION
		SELECT user_id FROM current_bids
		ORDER BY 1
	`)
	if err != nil {
		return nil, apperrors.NewStoreError("users", "list", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// Watchlist
// ============================================================================

const watchColumns = `id, card_name, seller, price, description, race, rarity, has_bids, actively_bidding,
	timing_kind, time_left, end_time, duration_hours, created_at`

// SaveWatchItem inserts or updates a watchlist item. New items are appended
// to the end of the list; updates keep their position.
func (s *SQLiteStore) SaveWatchItem(ctx context.Context, userID string, item *models.WatchlistItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return s.saveWatchItem(ctx, s.db, userID, item, -1)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) saveWatchItem(ctx context.Context, db execer, userID string, item *models.WatchlistItem, position int) error {
	timeLeft, endTime, duration := timingArgs(item.Timing)

	var posArg interface{} = position
	if position < 0 {
		posArg = nil
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO watchlist (user_id, position, `+watchColumns+`)
		VALUES (?, COALESCE(?, (SELECT COALESCE(MAX(position) + 1, 0) FROM watchlist WHERE user_id = ?)),
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			card_name = excluded.card_name,
			seller = excluded.seller,
			price = excluded.price,
			description = excluded.description,
			race = excluded.race,
			rarity = excluded.rarity,
			has_bids = excluded.has_bids,
			actively_bidding = excluded.actively_bidding,
			timing_kind = excluded.timing_kind,
			time_left = excluded.time_left,
			end_time = excluded.end_time,
			duration_hours = excluded.duration_hours
	`, userID, posArg, userID,
		item.ID, item.CardName, item.Seller, decimalArg(item.Price), item.Description, string(item.Race),
		item.Rarity, item.HasBids, item.ActivelyBidding,
		string(item.Timing.Kind), timeLeft, endTime, duration, item.CreatedAt.UTC())
	if err != nil {
		return apperrors.NewStoreError("watchlist", "save", err)
	}
	return nil
}

// GetWatchItem returns a single watchlist item or ErrItemNotFound.
func (s *SQLiteStore) GetWatchItem(ctx context.Context, userID, itemID string) (*models.WatchlistItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+watchColumns+` FROM watchlist WHERE user_id = ? AND id = ?
	`, userID, itemID)

	item, err := scanWatchItem(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrItemNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("watchlist", "get", err)
	}
	return item, nil
}

// GetWatchlist returns the user's watchlist in insertion order.
func (s *SQLiteStore) GetWatchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+watchColumns+` FROM watchlist WHERE user_id = ? ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, apperrors.NewStoreError("watchlist", "list", err)
	}
	defer rows.Close()

	items := []models.WatchlistItem{}
	for rows.Next() {
		item, err := scanWatchItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteWatchItem removes a watchlist item.
func (s *SQLiteStore) DeleteWatchItem(ctx context.Context, userID, itemID string) error {
	return s.deleteRow(ctx, "watchlist", userID, itemID)
}

// ReplaceWatchlist overwrites the whole watchlist in one transaction.
// Concurrent writers for the same user lose updates: the last replace wins.
func (s *SQLiteStore) ReplaceWatchlist(ctx context.Context, userID string, items []models.WatchlistItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM watchlist WHERE user_id = ?`, userID); err != nil {
		return apperrors.NewStoreError("watchlist", "replace", err)
	}

	for i := range items {
		item := &items[i]
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}
		if err := s.saveWatchItem(ctx, tx, userID, item, i); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatchItem(row rowScanner) (*models.WatchlistItem, error) {
	var (
		item     models.WatchlistItem
		seller   sql.NullString
		price    decimal.NullDecimal
		desc     sql.NullString
		race     sql.NullString
		kind     string
		timeLeft sql.NullString
		endTime  sql.NullTime
		duration float64
	)

	if err := row.Scan(&item.ID, &item.CardName, &seller, &price, &desc, &race, &item.Rarity,
		&item.HasBids, &item.ActivelyBidding, &kind, &timeLeft, &endTime, &duration, &item.CreatedAt); err != nil {
		return nil, err
	}

	item.Seller = seller.String
	item.Description = desc.String
	item.Race = models.Race(race.String)
	if price.Valid {
		p := price.Decimal
		item.Price = &p
	}
	item.Timing = timingFromColumns(kind, timeLeft, endTime, duration)
	return &item, nil
}

// ============================================================================
// Current bids
// ============================================================================

const bidColumns = `id, card_name, bid_time, seller, gold_amount, outbid, plan_to_rebid,
	timing_kind, time_left, end_time, duration_hours, created_at`

// SaveBid inserts or updates a current bid.
func (s *SQLiteStore) SaveBid(ctx context.Context, userID string, bid *models.CurrentBid) error {
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}
	if bid.BidTime.IsZero() {
		bid.BidTime = bid.CreatedAt
	}
	timeLeft, endTime, duration := timingArgs(bid.Timing)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO current_bids (user_id, position, `+bidColumns+`)
		VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM current_bids WHERE user_id = ?),
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			card_name = excluded.card_name,
			bid_time = excluded.bid_time,
			seller = excluded.seller,
			gold_amount = excluded.gold_amount,
			outbid = excluded.outbid,
			plan_to_rebid = excluded.plan_to_rebid,
			timing_kind = excluded.timing_kind,
			time_left = excluded.time_left,
			end_time = excluded.end_time,
			duration_hours = excluded.duration_hours
	`, userID, userID,
		bid.ID, bid.CardName, bid.BidTime.UTC(), bid.Seller, decimalArg(bid.GoldAmount), bid.Outbid, bid.PlanToRebid,
		string(bid.Timing.Kind), timeLeft, endTime, duration, bid.CreatedAt.UTC())
	if err != nil {
		return apperrors.NewStoreError("current_bids", "save", err)
	}
	return nil
}

// GetBid returns a single bid or ErrItemNotFound.
func (s *SQLiteStore) GetBid(ctx context.Context, userID, bidID string) (*models.CurrentBid, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bidColumns+` FROM current_bids WHERE user_id = ? AND id = ?
	`, userID, bidID)

	bid, err := scanBid(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrItemNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("current_bids", "get", err)
	}
	return bid, nil
}

// GetBids returns the user's current bids in insertion order.
func (s *SQLiteStore) GetBids(ctx context.Context, userID string) ([]models.CurrentBid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bidColumns+` FROM current_bids WHERE user_id = ? ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, apperrors.NewStoreError("current_bids", "list", err)
	}
	defer rows.Close()

	bids := []models.CurrentBid{}
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, *bid)
	}
	return bids, rows.Err()
}

// DeleteBid removes a current bid.
func (s *SQLiteStore) DeleteBid(ctx context.Context, userID, bidID string) error {
	return s.deleteRow(ctx, "current_bids", userID, bidID)
}

func scanBid(row rowScanner) (*models.CurrentBid, error) {
	var (
		bid      models.CurrentBid
		seller   sql.NullString
		gold     decimal.NullDecimal
		kind     string
		timeLeft sql.NullString
		endTime  sql.NullTime
		duration float64
	)

	if err := row.Scan(&bid.ID, &bid.CardName, &bid.BidTime, &seller, &gold, &bid.Outbid, &bid.PlanToRebid,
		&kind, &timeLeft, &endTime, &duration, &bid.CreatedAt); err != nil {
		return nil, err
	}

	bid.Seller = seller.String
	if gold.Valid {
		g := gold.Decimal
		bid.GoldAmount = &g
	}
	bid.Timing = timingFromColumns(kind, timeLeft, endTime, duration)
	return &bid, nil
}

// ============================================================================
// Future cards
// ============================================================================

// SaveFutureCard inserts or renames a future card.
func (s *SQLiteStore) SaveFutureCard(ctx context.Context, userID string, card *models.FutureCard) error {
	if card.DateAdded.IsZero() {
		card.DateAdded = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO future_cards (user_id, position, id, name, date_added)
		VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM future_cards WHERE user_id = ?), ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET name = excluded.name
	`, userID, userID, card.ID, card.Name, card.DateAdded.UTC())
	if err != nil {
		return apperrors.NewStoreError("future_cards", "save", err)
	}
	return nil
}

// GetFutureCard returns a single future card or ErrItemNotFound.
func (s *SQLiteStore) GetFutureCard(ctx context.Context, userID, cardID string) (*models.FutureCard, error) {
	var c models.FutureCard
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, date_added FROM future_cards WHERE user_id = ? AND id = ?
	`, userID, cardID).Scan(&c.ID, &c.Name, &c.DateAdded)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrItemNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("future_cards", "get", err)
	}
	return &c, nil
}

// GetFutureCards returns the user's future cards in insertion order.
func (s *SQLiteStore) GetFutureCards(ctx context.Context, userID string) ([]models.FutureCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, date_added FROM future_cards WHERE user_id = ? ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, apperrors.NewStoreError("future_cards", "list", err)
	}
	defer rows.Close()

	cards := []models.FutureCard{}
	for rows.Next() {
		var c models.FutureCard
		if err := rows.Scan(&c.ID, &c.Name, &c.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan future card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// DeleteFutureCard removes a future card.
func (s *SQLiteStore) DeleteFutureCard(ctx context.Context, userID, cardID string) error {
	return s.deleteRow(ctx, "future_cards", userID, cardID)
}

// GetUserData loads all three collections. A user with no account record
// gets empty collections rather than an error.
func (s *SQLiteStore) GetUserData(ctx context.Context, userID string) (*models.UserData, error) {
	data := &models.UserData{User: models.User{ID: userID}}

	user, err := s.GetUser(ctx, userID)
	switch {
	case err == nil:
		data.User = *user
	case !apperrors.Is(err, apperrors.ErrUserNotFound):
		return nil, err
	}

	if data.CurrentBids, err = s.GetBids(ctx, userID); err != nil {
		return nil, err
	}
	if data.Watchlist, err = s.GetWatchlist(ctx, userID); err != nil {
		return nil, err
	}
	if data.FutureCards, err = s.GetFutureCards(ctx, userID); err != nil {
		return nil, err
	}
	return data, nil
}

// deleteRow removes one row from a per-user collection table. The table
// name is always one of the package's constants.
func (s *SQLiteStore) deleteRow(ctx context.Context, table, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return apperrors.NewStoreError(table, "delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrItemNotFound
	}
	return nil
}

// SetWatchCountdown moves a relative countdown from one value to another.
// It reports false when the item is gone, no longer relative, or no longer
// holds from; the row is left untouched in those cases.
func (s *SQLiteStore) SetWatchCountdown(ctx context.Context, userID, itemID string, from, to float64) (bool, error) {
	return s.setCountdown(ctx, "watchlist", userID, itemID, from, to)
}

// SetBidCountdown is SetWatchCountdown for current bids.
func (s *SQLiteStore) SetBidCountdown(ctx context.Context, userID, bidID string, from, to float64) (bool, error) {
	return s.setCountdown(ctx, "current_bids", userID, bidID, from, to)
}

func (s *SQLiteStore) setCountdown(ctx context.Context, table, userID, id string, from, to float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET time_left = ?
		WHERE user_id = ? AND id = ? AND timing_kind = ? AND time_left = ?
	`, models.FormatTimeLeft(to), userID, id, string(models.TimingRelative), models.FormatTimeLeft(from))
	if err != nil {
		return false, apperrors.NewStoreError(table, "countdown", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ============================================================================
// Scheduled notifications
// ============================================================================

// UpsertNotification writes the record for (UserID, ItemID). A record that
// is still scheduled is overwritten; one already picked up by a sweep is
// left alone so its status never moves backwards.
func (s *SQLiteStore) UpsertNotification(ctx context.Context, n *models.ScheduledNotification) error {
	if n.Status == "" {
		n.Status = models.StatusScheduled
	}
	n.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_notifications (user_id, item_id, card_name, scheduled_time, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(user_id, item_id) DO UPDATE SET
			card_name = excluded.card_name,
			scheduled_time = excluded.scheduled_time,
			status = excluded.status,
			error = NULL,
			updated_at = excluded.updated_at
		WHERE scheduled_notifications.status = 'scheduled'
	`, n.UserID, n.ItemID, n.CardName, n.ScheduledTime.UTC(), string(n.Status), n.UpdatedAt)
	if err != nil {
		return apperrors.NewStoreError("scheduled_notifications", "upsert", err)
	}
	return nil
}

// CancelNotification removes the record for (userID, itemID) while it is
// still scheduled. Records already claimed by a sweep are kept. It reports
// whether a record was removed.
func (s *SQLiteStore) CancelNotification(ctx context.Context, userID, itemID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_notifications
		WHERE user_id = ? AND item_id = ? AND status = 'scheduled'
	`, userID, itemID)
	if err != nil {
		return false, apperrors.NewStoreError("scheduled_notifications", "cancel", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

const notificationColumns = `user_id, item_id, card_name, scheduled_time, status, error, updated_at`

// GetNotification returns the record or ErrNotificationAbsent.
func (s *SQLiteStore) GetNotification(ctx context.Context, userID, itemID string) (*models.ScheduledNotification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM scheduled_notifications WHERE user_id = ? AND item_id = ?
	`, userID, itemID)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotificationAbsent
	}
	if err != nil {
		return nil, apperrors.NewStoreError("scheduled_notifications", "get", err)
	}
	return n, nil
}

// ListDueNotifications returns up to limit scheduled records whose time has come.
func (s *SQLiteStore) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM scheduled_notifications
		WHERE status = ? AND scheduled_time <= ?
		ORDER BY scheduled_time ASC
		LIMIT ?
	`, string(models.StatusScheduled), now.UTC(), limit)
	if err != nil {
		return nil, apperrors.NewStoreError("scheduled_notifications", "due", err)
	}
	return collectNotifications(rows)
}

// ListNotifications retrieves notifications matching the filter, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]models.ScheduledNotification, error) {
	query := "SELECT " + notificationColumns + " FROM scheduled_notifications WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY scheduled_time DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("scheduled_notifications", "list", err)
	}
	return collectNotifications(rows)
}

// TransitionNotification performs a compare-and-set on the status column.
func (s *SQLiteStore) TransitionNotification(ctx context.Context, userID, itemID string, from, to models.NotificationStatus, reason string) error {
	if !models.CanTransition(from, to) {
		return &apperrors.TransitionError{UserID: userID, ItemID: itemID, From: string(from), To: string(to)}
	}

	var errArg interface{}
	if reason != "" {
		errArg = reason
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_notifications
		SET status = ?, error = ?, updated_at = ?
		WHERE user_id = ? AND item_id = ? AND status = ?
	`, string(to), errArg, time.Now().UTC(), userID, itemID, string(from))
	if err != nil {
		return apperrors.NewStoreError("scheduled_notifications", "transition", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := s.GetNotification(ctx, userID, itemID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s/%s is %s, expected %s", apperrors.ErrClaimLost, userID, itemID, current.Status, from)
}

func scanNotification(row rowScanner) (*models.ScheduledNotification, error) {
	var (
		n      models.ScheduledNotification
		status string
		errMsg sql.NullString
	)
	if err := row.Scan(&n.UserID, &n.ItemID, &n.CardName, &n.ScheduledTime, &status, &errMsg, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Status = models.NotificationStatus(status)
	n.Error = errMsg.String
	return &n, nil
}

func collectNotifications(rows *sql.Rows) ([]models.ScheduledNotification, error) {
	defer rows.Close()

	var out []models.ScheduledNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// ============================================================================
// Mail outbox
// ============================================================================

// SaveMail appends a message to the outbox.
func (s *SQLiteStore) SaveMail(ctx context.Context, mail *models.MailRecord) error {
	if mail.ID == "" {
		mail.ID = uuid.NewString()
	}
	if mail.CreatedAt.IsZero() {
		mail.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mail (id, to_addr, subject, text_body, html_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, mail.ID, mail.To, mail.Subject, mail.Text, mail.HTML, mail.CreatedAt.UTC())
	if err != nil {
		return apperrors.NewStoreError("mail", "save", err)
	}
	return nil
}

// GetMail returns the most recent outbox messages.
func (s *SQLiteStore) GetMail(ctx context.Context, limit int) ([]models.MailRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, to_addr, subject, text_body, html_body, created_at
		FROM mail ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("mail", "list", err)
	}
	defer rows.Close()

	var out []models.MailRecord
	for rows.Next() {
		var m models.MailRecord
		var text, html sql.NullString
		if err := rows.Scan(&m.ID, &m.To, &m.Subject, &text, &html, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mail: %w", err)
		}
		m.Text = text.String
		m.HTML = html.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// ============================================================================
// Column helpers
// ============================================================================

func timingArgs(t models.Timing) (timeLeft interface{}, endTime interface{}, duration float64) {
	switch t.Kind {
	case models.TimingAbsolute:
		return nil, t.EndTime.UTC(), t.DurationHours
	default:
		return t.TimeLeft(), nil, 0
	}
}

func timingFromColumns(kind string, timeLeft sql.NullString, endTime sql.NullTime, duration float64) models.Timing {
	if models.TimingKind(kind) == models.TimingAbsolute && endTime.Valid {
		return models.AbsoluteWindow(endTime.Time, duration)
	}
	return models.RelativeCountdown(models.ParseTimeLeft(timeLeft.String))
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
