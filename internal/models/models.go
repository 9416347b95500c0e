// Package models provides domain models for the auction tracker.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names a per-user ordered collection.
type Collection string

const (
	CollectionBids      Collection = "current_bids"
	CollectionWatchlist Collection = "watchlist"
	CollectionFuture    Collection = "future_cards"
)

// Race is the categorical race attribute of a card.
type Race string

const (
	RaceHuman  Race = "Human"
	RaceElf    Race = "Elf"
	RaceOrc    Race = "Orc"
	RaceUndead Race = "Undead"
)

// Races lists every valid race in display order.
var Races = []Race{RaceHuman, RaceElf, RaceOrc, RaceUndead}

// ParseRace matches a race name case-insensitively. An empty string is the
// unset race.
func ParseRace(s string) (Race, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	for _, r := range Races {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

// Rarity bounds. Zero means unset.
const (
	MinRarity = 1
	MaxRarity = 7
)

// User owns the three collections. Users are supplied by the account system.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// WatchlistItem is a tracked auction the user wants to monitor.
type WatchlistItem struct {
	ID              string           `json:"id"`
	CardName        string           `json:"cardName"`
	Seller          string           `json:"seller,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Description     string           `json:"description,omitempty"`
	Race            Race             `json:"race,omitempty"`
	Rarity          int              `json:"rarity,omitempty"`
	HasBids         bool             `json:"hasBids"`
	ActivelyBidding bool             `json:"activelyBidding"`
	Timing          Timing           `json:"timing"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// HasEndTime reports whether the item carries an absolute end timestamp.
func (w *WatchlistItem) HasEndTime() bool {
	return w.Timing.Kind == TimingAbsolute && !w.Timing.EndTime.IsZero()
}

// CurrentBid is an auction the user has bid on.
type CurrentBid struct {
	ID          string           `json:"id"`
	CardName    string           `json:"cardName"`
	BidTime     time.Time        `json:"bidTime"`
	Timing      Timing           `json:"timing"`
	Seller      string           `json:"seller,omitempty"`
	GoldAmount  *decimal.Decimal `json:"goldAmount,omitempty"`
	Outbid      bool             `json:"outbid"`
	PlanToRebid bool             `json:"planToRebid"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// FutureCard is a card of interest with no auction yet.
type FutureCard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DateAdded time.Time `json:"dateAdded"`
}

// UserData is the full set of collections owned by a user.
type UserData struct {
	User        User            `json:"user"`
	CurrentBids []CurrentBid    `json:"currentBids"`
	Watchlist   []WatchlistItem `json:"watchlist"`
	FutureCards []FutureCard    `json:"futureCards"`
}
