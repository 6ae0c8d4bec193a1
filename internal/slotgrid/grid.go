// Package slotgrid holds the pure date/time arithmetic behind the booking
// calendar: business-hour windows, the half-hour slot grid, and rounding.
package slotgrid

import "time"

// Config describes the bookable window of a day. CloseHour is the last
// bookable start, not the end of the last slot; with the defaults the final
// slot runs 17:00-17:30.
type Config struct {
	OpenHour  int
	CloseHour int
	Interval  time.Duration
}

func Default() Config {
	return Config{
		OpenHour:  8,
		CloseHour: 17,
		Interval:  30 * time.Minute,
	}
}

// Window returns the open and close instants for a calendar day in loc.
func (c Config) Window(day time.Time, loc *time.Location) (time.Time, time.Time) {
	open := time.Date(day.Year(), day.Month(), day.Day(), c.OpenHour, 0, 0, 0, loc)
	close := time.Date(day.Year(), day.Month(), day.Day(), c.CloseHour, 0, 0, 0, loc)
	return open, close
}

// Slots generates the candidate slot starts for a day, stepping by Interval
// from the open hour up to and including the close hour. For the current day
// the first slot is clamped forward so nothing in the past is offered: the
// current time is rounded up to the next full hour plus one more hour of
// lead time, floored at the open hour. Returns nil when the clamped start is
// at or past close.
func (c Config) Slots(day time.Time, loc *time.Location, now time.Time) []time.Time {
	open, close := c.Window(day, loc)
	start := open

	nowLocal := now.In(loc)
	if sameDay(day, nowLocal) {
		earliest := roundUpToHour(nowLocal).Add(time.Hour)
		if earliest.After(start) {
			start = earliest
		}
	}
	if !start.Before(close) {
		// Nothing left today; the caller reports "no slots" and the user
		// picks another date.
		return nil
	}

	// Slot starts run while start < close+interval, so the close hour itself
	// is generated but nothing after it.
	cutoff := close.Add(c.Interval)
	var slots []time.Time
	for t := start; t.Before(cutoff); t = t.Add(c.Interval) {
		slots = append(slots, t)
	}
	return slots
}

// RoundUpToHalfHour advances t to the next 0 or 30 minute boundary.
// Instants already on a boundary are unchanged.
func RoundUpToHalfHour(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	switch {
	case t.Minute() == 0 || t.Minute() == 30:
		return t
	case t.Minute() < 30:
		return t.Add(time.Duration(30-t.Minute()) * time.Minute)
	default:
		return t.Add(time.Duration(60-t.Minute()) * time.Minute)
	}
}

func roundUpToHour(t time.Time) time.Time {
	truncated := t.Truncate(time.Hour)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Hour)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
