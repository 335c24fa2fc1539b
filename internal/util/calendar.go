package util

import "time"

// TradingDay returns the UTC calendar date of t in YYYY-MM-DD form. Daily
// risk counters are keyed by this value and reset when it changes.
func TradingDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SameTradingDay reports whether a and b fall on the same UTC calendar date.
func SameTradingDay(a, b time.Time) bool {
	return TradingDay(a) == TradingDay(b)
}
