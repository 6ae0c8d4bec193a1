package notify

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// buildInvite renders a single-event iCalendar REQUEST so mail clients offer
// an "add to calendar" action on the confirmation mail.
func buildInvite(p bookingPayload, from string) (string, error) {
	start, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		return "", fmt.Errorf("parse start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, p.EndTime)
	if err != nil {
		return "", fmt.Errorf("parse end time: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)

	ev := cal.AddEvent(uuid.NewString())
	ev.SetDtStampTime(time.Now().UTC())
	ev.SetStartAt(start)
	ev.SetEndAt(end)
	ev.SetSummary(p.EventName)
	if p.EventDescription != "" {
		ev.SetDescription(p.EventDescription)
	}
	ev.SetOrganizer("mailto:" + from)
	ev.AddAttendee(p.AttendeeEmail)

	return cal.Serialize(), nil
}
