// Package notify turns booking events into outbound email. It sits behind
// the outbox/consumer pipeline, so delivery failures here never affect the
// booking itself.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// bookingPayload is the confirmation payload written by the booking service;
// the reminder job carries the same shape.
type bookingPayload struct {
	EventID          string `json:"event_id"`
	EventName        string `json:"event_name"`
	EventDescription string `json:"event_description"`
	AttendeeName     string `json:"attendee_name"`
	AttendeeEmail    string `json:"attendee_email"`
	BookingDate      string `json:"booking_date"`
	BookingTime      string `json:"booking_time"`
	BookingTimezone  string `json:"booking_timezone"`
	DurationMinutes  int    `json:"duration_minutes"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	CalendarEventID  string `json:"calendar_event_id"`
}

type Dispatcher struct {
	sender Sender
	from   string
	logger *slog.Logger
}

func NewDispatcher(sender Sender, from string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, from: from, logger: logger}
}

// HandleConfirmation sends the booking confirmation with an iCalendar invite
// attached.
func (d *Dispatcher) HandleConfirmation(_ context.Context, msg kafka.Message) error {
	var p bookingPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return fmt.Errorf("decode confirmation payload: %w", err)
	}

	invite, err := buildInvite(p, d.from)
	if err != nil {
		d.logger.Warn("invite build failed, sending without attachment", "err", err)
		invite = ""
	}

	subject := fmt.Sprintf("Booking confirmed: %s", p.EventName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour booking is confirmed.\n\nEvent: %s\nDate: %s\nTime: %s (%s)\nDuration: %d minutes\n\nSee you there!\n",
		p.AttendeeName,
		p.EventName,
		p.BookingDate,
		p.BookingTime,
		p.BookingTimezone,
		p.DurationMinutes,
	)

	if err := d.sender.Send(p.AttendeeEmail, subject, body, invite); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	d.logger.Info("confirmation sent", "to", p.AttendeeEmail, "event_id", p.EventID)
	return nil
}

// HandleReminder sends the plain-text reminder an hour before the booking.
func (d *Dispatcher) HandleReminder(_ context.Context, msg kafka.Message) error {
	var p bookingPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return fmt.Errorf("decode reminder payload: %w", err)
	}

	subject := fmt.Sprintf("Reminder: %s starts soon", p.EventName)
	body := fmt.Sprintf(
		"Hi %s,\n\nThis is a reminder that %s starts at %s (%s) on %s.\n",
		p.AttendeeName,
		p.EventName,
		p.BookingTime,
		p.BookingTimezone,
		p.BookingDate,
	)

	if err := d.sender.Send(p.AttendeeEmail, subject, body, ""); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	d.logger.Info("reminder sent", "to", p.AttendeeEmail, "event_id", p.EventID)
	return nil
}
