// Package timeutil provides time-window helpers for rate limiting and
// playtime accounting. All calculations are UTC-normalized.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Window identifies one of the three cap horizons applied per rate limit.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the window's length.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Windows lists the cap horizons from tightest to widest.
func Windows() []Window {
	return []Window{WindowMinute, WindowHour, WindowDay}
}

// WindowStart returns the sliding-window start for the given horizon ending
// at now.
func WindowStart(now time.Time, w Window) time.Time {
	return now.UTC().Add(-w.Duration())
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MinutesBetween returns the whole minutes from a to b, never negative.
func MinutesBetween(a, b time.Time) int64 {
	if b.Before(a) {
		return 0
	}
	return int64(b.Sub(a) / time.Minute)
}

// ClampMinutes bounds a minute count to [0, max].
func ClampMinutes(minutes, max int64) int64 {
	if minutes < 0 {
		return 0
	}
	if minutes > max {
		return max
	}
	return minutes
}
