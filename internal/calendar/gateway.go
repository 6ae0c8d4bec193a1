// Package calendar abstracts the external calendar the availability engine
// checks against. The resolver only sees the narrow Gateway contract; auth
// and transport concerns stay behind it.
package calendar

import (
	"context"
	"time"

	"github.com/mjdelacruz/slotbook/internal/model"
)

// DefaultCalendarID addresses the connected account's primary calendar.
const DefaultCalendarID = "primary"

// EventDetails is everything needed to write one booking onto the calendar.
type EventDetails struct {
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeName  string
	AttendeeEmail string
}

type Gateway interface {
	// ListEvents returns events overlapping [start, end] on the primary calendar.
	ListEvents(ctx context.Context, start, end time.Time, timezone string) ([]model.BusyInterval, error)

	// ListBusyIntervals runs a day-scoped free/busy query for the day containing at.
	ListBusyIntervals(ctx context.Context, at time.Time, timezone, calendarID string) ([]model.BusyInterval, error)

	// CreateEvent writes an event and returns the external event id.
	CreateEvent(ctx context.Context, details EventDetails) (string, error)
}
