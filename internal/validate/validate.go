// Package validate rejects structurally bad booking input before any
// calendar or storage work happens. Collision detection is not its job;
// that belongs to the availability resolver.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/mjdelacruz/slotbook/internal/slotgrid"
)

const (
	maxNameLen  = 128
	maxEmailLen = 64
)

type BookingInput struct {
	EventID       string
	Timezone      string
	Date          string // "2006-01-02"
	Time          string // "15:04:05"
	AttendeeName  string
	AttendeeEmail string
}

// FieldErrors maps field name to a human-readable message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// Booking validates a booking request against the business rules: IANA
// timezone, date today or later, weekdays only, start within the grid's
// business window. Returns nil when the input is clean.
func Booking(in BookingInput, grid slotgrid.Config, now time.Time) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(in.EventID) == "" {
		errs["event_id"] = "event id is required"
	}

	loc := time.UTC
	if strings.TrimSpace(in.Timezone) == "" {
		errs["booking_timezone"] = "timezone is required"
	} else if l, err := time.LoadLocation(in.Timezone); err != nil {
		errs["booking_timezone"] = fmt.Sprintf("unknown timezone %q", in.Timezone)
	} else {
		loc = l
	}

	date, err := time.ParseInLocation("2006-01-02", in.Date, loc)
	if err != nil {
		errs["booking_date"] = "date must be in YYYY-MM-DD format"
	} else {
		nowLocal := now.In(loc)
		today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
		if date.Before(today) {
			errs["booking_date"] = "date must not be in the past"
		}
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			errs["booking_date"] = "bookings are only accepted on weekdays"
		}
	}

	t, err := time.Parse("15:04:05", in.Time)
	if err != nil {
		errs["booking_time"] = "time must be in HH:MM:SS format"
	} else if t.Hour() < grid.OpenHour || t.Hour() > grid.CloseHour || (t.Hour() == grid.CloseHour && t.Minute() > 0) {
		errs["booking_time"] = fmt.Sprintf("time must be between %s and %s",
			clockLabel(grid.OpenHour), clockLabel(grid.CloseHour))
	}

	name := strings.TrimSpace(in.AttendeeName)
	if name == "" {
		errs["attendee_name"] = "name is required"
	} else if len(name) > maxNameLen {
		errs["attendee_name"] = fmt.Sprintf("name must be at most %d characters", maxNameLen)
	}

	email := strings.TrimSpace(in.AttendeeEmail)
	if email == "" {
		errs["attendee_email"] = "email is required"
	} else if len(email) > maxEmailLen {
		errs["attendee_email"] = fmt.Sprintf("email must be at most %d characters", maxEmailLen)
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs["attendee_email"] = "email is not a valid address"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func clockLabel(hour int) string {
	return time.Date(0, time.January, 1, hour, 0, 0, 0, time.UTC).Format("3:04 PM")
}
