package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimingKind tags which timing representation an item carries.
type TimingKind string

const (
	// TimingRelative is the legacy decrementing "hours left" countdown.
	TimingRelative TimingKind = "relative"
	// TimingAbsolute is an end timestamp plus the original duration.
	TimingAbsolute TimingKind = "absolute"
)

// Timing is either a RelativeCountdown or an AbsoluteWindow.
// Only the fields for Kind are meaningful.
type Timing struct {
	Kind TimingKind `json:"kind"`

	// relative
	HoursLeft float64 `json:"hoursLeft,omitempty"`

	// absolute
	EndTime       time.Time `json:"endTime,omitempty"`
	DurationHours float64   `json:"durationHours,omitempty"`
}

// RelativeCountdown builds a legacy countdown timing.
func RelativeCountdown(hoursLeft float64) Timing {
	return Timing{Kind: TimingRelative, HoursLeft: hoursLeft}
}

// AbsoluteWindow builds a timing anchored at an end timestamp.
func AbsoluteWindow(endTime time.Time, durationHours float64) Timing {
	return Timing{Kind: TimingAbsolute, EndTime: endTime.UTC(), DurationHours: durationHours}
}

// WindowFrom opens an absolute window of the given length starting at now.
func WindowFrom(now time.Time, hours float64) Timing {
	end := now.Add(time.Duration(hours * float64(time.Hour)))
	return AbsoluteWindow(end, hours)
}

// ParseTimeLeft reads a legacy "hours left" string. Blank or malformed
// values read as zero.
func ParseTimeLeft(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FormatTimeLeft renders hours the way the legacy field stores them:
// rounded to two decimals with trailing zeros dropped ("2", "1.98").
func FormatTimeLeft(hours float64) string {
	rounded := math.Round(hours*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// TimeLeft returns the legacy string form of a relative countdown.
func (t Timing) TimeLeft() string {
	if t.Kind != TimingRelative {
		return ""
	}
	return FormatTimeLeft(t.HoursLeft)
}
