// Package expiry computes remaining auction time for watchlist items.
//
// Every function here is pure: callers pass the current time in, nothing
// reads the system clock.
package expiry

import (
	"fmt"
	"math"
	"time"

	"auction-tracker/internal/models"
)

// LegacyMaxHours is the assumed length of an auction when only a
// relative countdown is known.
const LegacyMaxHours = 24.0

// Urgency buckets remaining time for display.
type Urgency string

const (
	UrgencyEnded    Urgency = "ended"
	UrgencyCritical Urgency = "critical" // one hour or less
	UrgencyWarning  Urgency = "warning"  // four hours or less
	UrgencyNormal   Urgency = "normal"
)

// Remaining is the resolved time state of an item at a given instant.
type Remaining struct {
	Hours float64 `json:"hours"`

	// ElapsedFraction is in [0,1]. Only meaningful when HasElapsed is true,
	// which requires an absolute window with a positive duration.
	ElapsedFraction float64 `json:"elapsedFraction"`
	HasElapsed      bool    `json:"hasElapsed"`

	Ended bool `json:"ended"`
}

// Resolve computes the remaining time for t at now.
func Resolve(t models.Timing, now time.Time) Remaining {
	var r Remaining

	switch t.Kind {
	case models.TimingAbsolute:
		r.Hours = math.Max(0, t.EndTime.Sub(now).Hours())
		if t.DurationHours > 0 {
			r.ElapsedFraction = clamp01((t.DurationHours - r.Hours) / t.DurationHours)
			r.HasElapsed = true
		}
	default:
		r.Hours = math.Max(0, t.HoursLeft)
	}

	r.Ended = r.Hours == 0
	return r
}

// ResolveItem is Resolve for a watchlist item.
func ResolveItem(item *models.WatchlistItem, now time.Time) Remaining {
	return Resolve(item.Timing, now)
}

// IsEnded reports whether the auction for t is over at now.
func IsEnded(t models.Timing, now time.Time) bool {
	return Resolve(t, now).Ended
}

// Format renders remaining hours for display.
func Format(hours float64) string {
	if hours <= 0 {
		return "Auction ended"
	}

	if hours < 1 {
		minutes := int(math.Ceil(hours * 60))
		if minutes == 1 {
			return "1 minute left"
		}
		return fmt.Sprintf("%d minutes left", minutes)
	}

	if hours == 1 {
		return "1.0 hour left"
	}
	return fmt.Sprintf("%.1f hours left", hours)
}

// Classify maps remaining time onto an urgency bucket.
func Classify(r Remaining) Urgency {
	switch {
	case r.Ended:
		return UrgencyEnded
	case r.Hours <= 1:
		return UrgencyCritical
	case r.Hours <= 4:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Progress returns the fraction of the auction that has elapsed, for a
// progress bar. Legacy countdowns assume a LegacyMaxHours auction.
func Progress(r Remaining) float64 {
	if r.HasElapsed {
		return r.ElapsedFraction
	}
	return clamp01(1 - r.Hours/LegacyMaxHours)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
