package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/mjdelacruz/slotbook/internal/model"
)

// GoogleGateway talks to the Google Calendar v3 API. The credential is an
// explicit token source handed in at construction; there is no process-wide
// "current token". All calls address the same configured calendar: the
// conflict check, the free/busy view, and event writes must never diverge
// onto different calendars.
type GoogleGateway struct {
	svc        *calendarapi.Service
	calendarID string
	logger     *slog.Logger
}

func NewGoogleGateway(ctx context.Context, ts oauth2.TokenSource, calendarID string, logger *slog.Logger, opts ...option.ClientOption) (*GoogleGateway, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := calendarapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service init: %w", err)
	}
	return &GoogleGateway{svc: svc, calendarID: calendarID, logger: logger}, nil
}

func (g *GoogleGateway) ListEvents(ctx context.Context, start, end time.Time, timezone string) ([]model.BusyInterval, error) {
	events, err := g.svc.Events.List(g.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		TimeZone(timezone).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	intervals := make([]model.BusyInterval, 0, len(events.Items))
	for _, item := range events.Items {
		iv, ok := eventInterval(item)
		if !ok {
			// All-day events carry a date instead of a dateTime; they do not
			// block timed slots here, same as the free/busy view.
			continue
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

func (g *GoogleGateway) ListBusyIntervals(ctx context.Context, at time.Time, timezone, calendarID string) ([]model.BusyInterval, error) {
	if calendarID == "" {
		calendarID = g.calendarID
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	local := at.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	resp, err := g.svc.Freebusy.Query(&calendarapi.FreeBusyRequest{
		TimeMin:  dayStart.Format(time.RFC3339),
		TimeMax:  dayEnd.Format(time.RFC3339),
		TimeZone: timezone,
		Items:    []*calendarapi.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("freebusy response missing calendar %q", calendarID)
	}

	intervals := make([]model.BusyInterval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", period.End, err)
		}
		intervals = append(intervals, model.BusyInterval{Start: start, End: end})
	}
	return intervals, nil
}

func (g *GoogleGateway) CreateEvent(ctx context.Context, details EventDetails) (string, error) {
	event := &calendarapi.Event{
		Summary:     details.Title,
		Description: details.Description,
		Start: &calendarapi.EventDateTime{
			DateTime: details.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendarapi.EventDateTime{
			DateTime: details.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Attendees: []*calendarapi.EventAttendee{
			{DisplayName: details.AttendeeName, Email: details.AttendeeEmail},
		},
	}

	created, err := g.svc.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	g.logger.Info("calendar event created", "event_id", created.Id, "start", details.Start.UTC().Format(time.RFC3339))
	return created.Id, nil
}

func eventInterval(item *calendarapi.Event) (model.BusyInterval, bool) {
	if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
		return model.BusyInterval{}, false
	}
	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return model.BusyInterval{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return model.BusyInterval{}, false
	}
	return model.BusyInterval{Start: start, End: end}, true
}
