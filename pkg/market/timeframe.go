package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe is a bar resolution such as 1m, 5m, 1H or 1D.
type Timeframe struct {
	Count int
	Unit  time.Duration
}

var unitSuffixes = map[string]time.Duration{
	"s":   time.Second,
	"S":   time.Second,
	"m":   time.Minute,
	"min": time.Minute,
	"T":   time.Minute,
	"h":   time.Hour,
	"H":   time.Hour,
	"d":   24 * time.Hour,
	"D":   24 * time.Hour,
}

// ParseTimeframe parses identifiers like "1m", "15min", "5T", "1H", "4h" and
// "1D". A missing count means 1.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timeframe{}, fmt.Errorf("empty timeframe")
	}

	split := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if split < 0 {
		return Timeframe{}, fmt.Errorf("timeframe %q has no unit", s)
	}

	count := 1
	if split > 0 {
		n, err := strconv.Atoi(s[:split])
		if err != nil {
			return Timeframe{}, fmt.Errorf("timeframe %q: %w", s, err)
		}
		count = n
	}
	if count < 1 {
		return Timeframe{}, fmt.Errorf("timeframe %q must have a positive count", s)
	}

	unit, ok := unitSuffixes[s[split:]]
	if !ok {
		return Timeframe{}, fmt.Errorf("timeframe %q has unknown unit %q", s, s[split:])
	}

	return Timeframe{Count: count, Unit: unit}, nil
}

// MustParseTimeframe is ParseTimeframe for constants. It panics on error.
func MustParseTimeframe(s string) Timeframe {
	tf, err := ParseTimeframe(s)
	if err != nil {
		panic(err)
	}
	return tf
}

// Duration returns the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Count) * tf.Unit
}

// IsZero reports whether the timeframe is unset.
func (tf Timeframe) IsZero() bool {
	return tf.Count == 0 || tf.Unit == 0
}

// String returns the canonical identifier (minutes lower case, hours and days
// upper case).
func (tf Timeframe) String() string {
	if tf.IsZero() {
		return ""
	}
	switch tf.Unit {
	case time.Second:
		return fmt.Sprintf("%ds", tf.Count)
	case time.Minute:
		return fmt.Sprintf("%dm", tf.Count)
	case time.Hour:
		return fmt.Sprintf("%dH", tf.Count)
	default:
		return fmt.Sprintf("%dD", tf.Count)
	}
}

// Floor returns the start of the bar containing t, using UTC truncation
// boundaries.
func (tf Timeframe) Floor(t time.Time) time.Time {
	d := tf.Duration()
	if d <= 0 {
		return t
	}
	return t.UTC().Truncate(d)
}

// CanonicalTimeframe normalizes an identifier, returning it unchanged when it
// cannot be parsed.
func CanonicalTimeframe(s string) string {
	tf, err := ParseTimeframe(s)
	if err != nil {
		return s
	}
	return tf.String()
}
