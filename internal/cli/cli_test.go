package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-tracker/internal/models"
	"auction-tracker/internal/poller"
	"auction-tracker/internal/sweep"
	"auction-tracker/internal/tracker"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"AUCTION_DB_PATH", "AUCTION_RESULTS_BASE_URL", "AUCTION_SMTP_HOST", "AUCTION_SMTP_PORT",
		"AUCTION_SMTP_USER", "AUCTION_SMTP_PASSWORD", "AUCTION_SMTP_FROM", "AUCTION_WEBHOOK_URL", "AUCTION_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return t.TempDir()
}

func run(t *testing.T, ctx context.Context, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", dir))

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func runJSON(t *testing.T, dir string, target interface{}, args ...string) {
	t.Helper()
	out, err := run(t, context.Background(), dir, append(args, "--json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), target), out)
}

func TestVersionCommand(t *testing.T) {
	dir := isolateEnv(t)

	var v map[string]string
	runJSON(t, dir, &v, "version")
	assert.Equal(t, Version, v["version"])
}

func TestConfigPathCommand(t *testing.T) {
	dir := isolateEnv(t)

	out, err := run(t, context.Background(), dir, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", out)
}

func TestWatchAndSweepEndToEnd(t *testing.T) {
	dir := isolateEnv(t)

	var user models.User
	runJSON(t, dir, &user, "user", "add", "alice", "alice@example.com")
	assert.Equal(t, "alice", user.ID)

	var item models.WatchlistItem
	ended := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	runJSON(t, dir, &item, "watch", "add", "alice", "Ancient Dragon", "--ends", ended, "--price", "1,500", "--race", "Elf")
	require.NotEmpty(t, item.ID)
	assert.Equal(t, models.RaceElf, item.Race)

	var pending []models.ScheduledNotification
	runJSON(t, dir, &pending, "notifications", "list", "--user", "alice")
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusScheduled, pending[0].Status)
	assert.Equal(t, item.ID, pending[0].ItemID)

	var res sweep.Result
	runJSON(t, dir, &res, "sweep")
	assert.Equal(t, sweep.Result{Due: 1, Completed: 1}, res)

	var mails []models.MailRecord
	runJSON(t, dir, &mails, "notifications", "outbox")
	require.Len(t, mails, 1)
	assert.Equal(t, "alice@example.com", mails[0].To)
	assert.Equal(t, "Your watched auction for Ancient Dragon has ended", mails[0].Subject)
	assert.Contains(t, mails[0].HTML, "https://yourapp.com/auctions/"+item.ID)

	var done []models.ScheduledNotification
	runJSON(t, dir, &done, "notifications", "list", "--status", "completed")
	require.Len(t, done, 1)

	// a second sweep finds nothing
	runJSON(t, dir, &res, "sweep")
	assert.Equal(t, 0, res.Due)
}

func TestWatchListAndMove(t *testing.T) {
	dir := isolateEnv(t)

	var item models.WatchlistItem
	runJSON(t, dir, &item, "watch", "add", "bob", "Storm Giant", "--hours", "3", "--price", "250")

	out, err := run(t, context.Background(), dir, "watch", "list", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Storm Giant")
	assert.Contains(t, out, "hours left")
	assert.Contains(t, out, "250g")

	var bid models.CurrentBid
	runJSON(t, dir, &bid, "watch", "move", "bob", item.ID, "--amount", "300")
	assert.Equal(t, item.ID, bid.ID)
	assert.Equal(t, "300", bid.GoldAmount.String())

	var bids []models.CurrentBid
	runJSON(t, dir, &bids, "bids", "list", "bob")
	require.Len(t, bids, 1)

	var watchlist []interface{}
	runJSON(t, dir, &watchlist, "watch", "list", "bob")
	assert.Empty(t, watchlist)
}

func TestFutureCardCommands(t *testing.T) {
	dir := isolateEnv(t)

	var card models.FutureCard
	runJSON(t, dir, &card, "future", "add", "carol", "Lich King")

	var item models.WatchlistItem
	runJSON(t, dir, &item, "future", "move", "carol", card.ID)
	assert.Equal(t, "Lich King", item.CardName)

	var cards []models.FutureCard
	runJSON(t, dir, &cards, "future", "list", "carol")
	assert.Empty(t, cards)
}

func TestValidationErrorsSurface(t *testing.T) {
	dir := isolateEnv(t)

	_, err := run(t, context.Background(), dir, "watch", "add", "dave", "Orc Chief", "--rarity", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rarity")

	_, err = run(t, context.Background(), dir, "notifications", "list", "--status", "lost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")

	_, err = run(t, context.Background(), dir, "watch", "rm", "dave", "missing")
	require.Error(t, err)
}

func TestLegacyCountdownPoll(t *testing.T) {
	dir := isolateEnv(t)

	var item models.WatchlistItem
	runJSON(t, dir, &item, "watch", "add", "frank", "Goblin", "--legacy-hours", "2")
	assert.Equal(t, models.TimingRelative, item.Timing.Kind)
	assert.Equal(t, "2", item.Timing.TimeLeft())

	var bid models.CurrentBid
	runJSON(t, dir, &bid, "bids", "add", "frank", "Imp", "--legacy-hours", "2", "--amount", "10")
	assert.Equal(t, models.TimingRelative, bid.Timing.Kind)

	var res poller.TickResult
	runJSON(t, dir, &res, "poll")
	assert.Equal(t, poller.TickResult{WatchItems: 1, Bids: 1}, res)

	var statuses []tracker.ItemStatus
	runJSON(t, dir, &statuses, "watch", "list", "frank")
	require.Len(t, statuses, 1)
	assert.Equal(t, "1.98", statuses[0].Item.Timing.TimeLeft())

	var bids []models.CurrentBid
	runJSON(t, dir, &bids, "bids", "list", "frank")
	require.Len(t, bids, 1)
	assert.Equal(t, "1.98", bids[0].Timing.TimeLeft())

	// countdowns never produce a notification
	var pending []models.ScheduledNotification
	runJSON(t, dir, &pending, "notifications", "list", "--user", "frank")
	assert.Empty(t, pending)

	_, err := run(t, context.Background(), dir, "watch", "add", "frank", "Orc", "--legacy-hours", "2", "--hours", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy_hours")
}

func TestWatchImport(t *testing.T) {
	dir := isolateEnv(t)

	var user models.User
	runJSON(t, dir, &user, "user", "add", "gina", "gina@example.com")

	ended := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	file := filepath.Join(dir, "watchlist.json")
	require.NoError(t, os.WriteFile(file, []byte(fmt.Sprintf(`[
		{"id": "phoenix", "cardName": "Phoenix", "timing": {"kind": "absolute", "endTime": %q, "durationHours": 1}},
		{"cardName": "Goblin", "timing": {"kind": "relative", "hoursLeft": 2}}
	]`, ended)), 0644))

	var imported []models.WatchlistItem
	runJSON(t, dir, &imported, "watch", "import", "gina", file)
	require.Len(t, imported, 2)
	assert.Equal(t, "phoenix", imported[0].ID)
	assert.NotEmpty(t, imported[1].ID)

	var pending []models.ScheduledNotification
	runJSON(t, dir, &pending, "notifications", "list", "--user", "gina")
	require.Len(t, pending, 1)
	assert.Equal(t, "phoenix", pending[0].ItemID)

	var tick poller.TickResult
	runJSON(t, dir, &tick, "poll")
	assert.Equal(t, 1, tick.WatchItems)

	var res sweep.Result
	runJSON(t, dir, &res, "sweep")
	assert.Equal(t, sweep.Result{Due: 1, Completed: 1}, res)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"cardName": "A\r\nBcc: x@evil.test", "timing": {"kind": "relative"}}]`), 0644))
	_, err := run(t, context.Background(), dir, "watch", "import", "gina", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card_name")
}

func TestServeStopsWithContext(t *testing.T) {
	dir := isolateEnv(t)

	var user models.User
	runJSON(t, dir, &user, "user", "add", "erin", "erin@example.com")
	var item models.WatchlistItem
	runJSON(t, dir, &item, "watch", "add", "erin", "Wraith", "--ends", time.Now().Add(-time.Second).UTC().Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := run(t, ctx, dir, "serve")
	require.NoError(t, err)

	var done []models.ScheduledNotification
	runJSON(t, dir, &done, "notifications", "list", "--status", "completed")
	require.Len(t, done, 1)
	assert.Equal(t, item.ID, done[0].ItemID)
}
