package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatGold renders a gold amount with thousands separators and up to two
// decimals: "1,250.5g". Nil renders as "-".
func FormatGold(amount *decimal.Decimal) string {
	if amount == nil {
		return "-"
	}

	str := amount.Round(2).Abs().String()
	intPart, decPart, hasDec := strings.Cut(str, ".")

	result := groupThousands(intPart)
	if hasDec {
		result += "." + decPart
	}
	if amount.Round(2).IsNegative() {
		result = "-" + result
	}
	return result + "g"
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var sb strings.Builder
	head := n % 3
	if head > 0 {
		sb.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

// ParseGold parses an amount flag. An empty string is no amount.
func ParseGold(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "g"))
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return &d, nil
}

// ParseEndTime parses an end-time flag in RFC 3339 or "2006-01-02 15:04"
// local time. An empty string is the zero time.
func ParseEndTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid end time %q: use RFC 3339 or \"YYYY-MM-DD HH:MM\"", s)
	}
	return t, nil
}

// FormatDateTime formats a timestamp for display in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02 Jan 15:04")
}

// TruncateString truncates a string to maxLen with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Stars renders a rarity as filled stars.
func Stars(rarity int) string {
	if rarity <= 0 {
		return "-"
	}
	return strings.Repeat("★", rarity)
}
