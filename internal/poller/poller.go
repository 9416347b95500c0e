// Package poller keeps legacy "hours left" countdowns moving.
//
// Items that carry only a relative countdown have no end timestamp, so the
// sweep never sees them. The poller decrements their stored value once per
// interval so the user-facing remaining time keeps falling.
package poller

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"auction-tracker/internal/logging"
	"auction-tracker/internal/models"
	"auction-tracker/internal/store"
)

// Step is the amount one tick removes from a countdown: one minute.
const Step = 1.0 / 60.0

// Poller decrements relative countdowns on watchlist items and bids.
type Poller struct {
	store    store.CollectionStore
	users    store.UserStore
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// TickResult counts the rows changed by one tick.
type TickResult struct {
	WatchItems int `json:"watchItems"`
	Bids       int `json:"bids"`
}

// New creates a Poller.
func New(collections store.CollectionStore, users store.UserStore, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		store:    collections,
		users:    users,
		interval: interval,
		logger:   logging.WithOperation(logger, "poll"),
	}
}

// Decrement returns hours after one tick, floored at zero and rounded to
// the two decimals the legacy field keeps.
func Decrement(hours float64) float64 {
	next := math.Round((hours-Step)*100) / 100
	if next < 0 {
		return 0
	}
	return next
}

// Tick decrements every positive relative countdown owned by userID.
// Absolute timings and scheduled notifications are never touched. Each
// write is conditional on the value just read, so rows deleted, retimed or
// edited in between are skipped rather than overwritten.
func (p *Poller) Tick(ctx context.Context, userID string) (TickResult, error) {
	var res TickResult

	items, err := p.store.GetWatchlist(ctx, userID)
	if err != nil {
		return res, err
	}
	for _, item := range items {
		if item.Timing.Kind != models.TimingRelative || item.Timing.HoursLeft <= 0 {
			continue
		}
		ok, err := p.store.SetWatchCountdown(ctx, userID, item.ID, item.Timing.HoursLeft, Decrement(item.Timing.HoursLeft))
		if err != nil {
			return res, err
		}
		if ok {
			res.WatchItems++
		}
	}

	bids, err := p.store.GetBids(ctx, userID)
	if err != nil {
		return res, err
	}
	for _, bid := range bids {
		if bid.Timing.Kind != models.TimingRelative || bid.Timing.HoursLeft <= 0 {
			continue
		}
		ok, err := p.store.SetBidCountdown(ctx, userID, bid.ID, bid.Timing.HoursLeft, Decrement(bid.Timing.HoursLeft))
		if err != nil {
			return res, err
		}
		if ok {
			res.Bids++
		}
	}

	return res, nil
}

// TickAll runs Tick for every known user. A failure for one user is logged
// and does not stop the others.
func (p *Poller) TickAll(ctx context.Context) (TickResult, error) {
	var total TickResult

	userIDs, err := p.users.ListUserIDs(ctx)
	if err != nil {
		return total, err
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := p.Tick(ctx, userID)
		total.WatchItems += res.WatchItems
		total.Bids += res.Bids
		if err != nil {
			log := logging.WithUser(p.logger, userID)
			log.Warn().Err(err).Msg("Countdown tick failed")
		}
	}

	if total.WatchItems > 0 || total.Bids > 0 {
		p.logger.Debug().
			Int("watch_items", total.WatchItems).
			Int("bids", total.Bids).
			Msg("Countdowns decremented")
	}
	return total, nil
}

// Start ticks every interval until Stop is called or ctx ends. The first
// tick happens one interval after Start.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.TickAll(ctx); err != nil && ctx.Err() == nil {
					p.logger.Error().Err(err).Msg("Countdown poll failed")
				}
			}
		}
	}(p.done)
}

// Stop cancels the poller and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}
