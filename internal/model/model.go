package model

import "time"

// Event is a bookable offering. Immutable once published; duration is in minutes.
type Event struct {
	ID          string
	Name        string
	Description string
	DurationMin int
	CreatedAt   time.Time
}

// Booking is a confirmed reservation of one slot of an Event.
// BookingDate and BookingTime are the attendee's local wall clock in
// BookingTimezone ("2006-01-02" and "15:04:05").
type Booking struct {
	ID              string
	EventID         string
	AttendeeName    string
	AttendeeEmail   string
	BookingDate     string
	BookingTime     string
	BookingTimezone string
	DurationMin     int
	CalendarEventID string
	CreatedAt       time.Time
}

// StartsAt resolves the booking's wall clock into an absolute instant.
func (b Booking) StartsAt() (time.Time, error) {
	loc, err := time.LoadLocation(b.BookingTimezone)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation("2006-01-02 15:04:05", b.BookingDate+" "+b.BookingTime, loc)
}

// TimeSlot is one candidate slot on a day grid. Computed per request, never stored.
type TimeSlot struct {
	Time      string `json:"time"` // "15:04:05" wall clock
	Available bool   `json:"is_available"`
}

// BusyInterval is an occupied range reported by the external calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start,end) overlaps the busy interval.
// Both intervals are half-open; touching boundaries do not conflict.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && b.Start.Before(end)
}

// AvailabilityResult is the outcome of resolving one candidate slot.
type AvailabilityResult struct {
	Available      bool
	NextSlots      []string
	MovedToNextDay bool
}
