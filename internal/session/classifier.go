// Package session maps UTC timestamps to forex trading sessions and merges
// per-session parameter overrides onto universal parameters.
package session

import (
	"time"

	"fx-backtest-lab/internal/domain"
)

// window is a [start, end) UTC-hour range. Overnight windows (start > end)
// are matched with wrap-around comparison, not subtraction.
type window struct {
	start   int
	end     int
	session domain.Session
}

// Windows in priority order: overlap windows win over single sessions.
// First match classifies the hour.
var windows = []window{
	{7, 9, domain.SessionOverlap},   // Tokyo / London
	{12, 16, domain.SessionOverlap}, // London / New York
	{0, 9, domain.SessionTokyo},
	{7, 16, domain.SessionLondon},
	{12, 21, domain.SessionNewYork},
	{21, 6, domain.SessionSydney}, // overnight wrap
}

// Classify maps a timestamp to its trading session. Pure function over the
// UTC hour.
func Classify(ts time.Time) domain.Session {
	h := ts.UTC().Hour()
	for _, w := range windows {
		if inWindow(h, w.start, w.end) {
			return w.session
		}
	}
	// Unreachable: the windows cover all 24 hours.
	return domain.SessionSydney
}

// MarketClosed reports whether the forex market is closed at ts.
// The market closes Friday 21:00 UTC and reopens Sunday 21:00 UTC.
func MarketClosed(ts time.Time) bool {
	t := ts.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return true
	case time.Friday:
		return t.Hour() >= 21
	case time.Sunday:
		return t.Hour() < 21
	default:
		return false
	}
}

func inWindow(h, start, end int) bool {
	if start <= end {
		return h >= start && h < end
	}
	return h >= start || h < end
}
