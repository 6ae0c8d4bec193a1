// Package booking coordinates one booking attempt end to end: validate,
// serialize on the slot, resolve availability, write the external event,
// persist, and hand notifications to the outbox.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mjdelacruz/slotbook/internal/calendar"
	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/internal/reminders"
	"github.com/mjdelacruz/slotbook/internal/slotgrid"
	"github.com/mjdelacruz/slotbook/internal/storage"
	"github.com/mjdelacruz/slotbook/internal/validate"
)

const reminderLead = time.Hour

// Resolver answers whether a slot is bookable; gateway failures are already
// folded into the result (fail-closed), so there is no error to handle here.
type Resolver interface {
	Resolve(ctx context.Context, timezone, date, timeOfDay string, durationMin int) model.AvailabilityResult
}

// Locker serializes booking attempts per (event, date, time).
type Locker interface {
	Acquire(ctx context.Context, eventID, date, timeOfDay string) (release func(), err error)
}

// Persister commits the booking and its notification rows atomically.
type Persister interface {
	PersistBooking(ctx context.Context, b *model.Booking, confirmPayload []byte, reminder *reminders.Job) (string, error)
}

// EventCatalog is the read side of the (externally managed) event list.
type EventCatalog interface {
	Get(ctx context.Context, id string) (model.Event, error)
}

// AvailabilityIndex is the local occupied-slot lookup for the day grid.
type AvailabilityIndex interface {
	FindOccupiedTimes(ctx context.Context, eventID, date string) ([]string, error)
}

// OrphanRecorder captures calendar events left without a local booking.
type OrphanRecorder interface {
	Record(ctx context.Context, o storage.OrphanEvent) error
}

type Service struct {
	events    EventCatalog
	index     AvailabilityIndex
	resolver  Resolver
	gateway   calendar.Gateway
	locker    Locker
	persister Persister
	orphans   OrphanRecorder
	grid      slotgrid.Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	events EventCatalog,
	index AvailabilityIndex,
	resolver Resolver,
	gateway calendar.Gateway,
	locker Locker,
	persister Persister,
	orphans OrphanRecorder,
	grid slotgrid.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		events:    events,
		index:     index,
		resolver:  resolver,
		gateway:   gateway,
		locker:    locker,
		persister: persister,
		orphans:   orphans,
		grid:      grid,
		logger:    logger,
		now:       time.Now,
	}
}

type BookRequest struct {
	EventID       string
	Timezone      string
	Date          string // "2006-01-02"
	Time          string // "15:04:05"
	AttendeeName  string
	AttendeeEmail string
}

// Book runs the full orchestration. Expected failures come back as typed
// errors (validate.FieldErrors, *UnavailableError, ErrCalendarWrite,
// *PersistError); only infrastructure surprises surface as anything else.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Booking, error) {
	if errs := validate.Booking(validate.BookingInput{
		EventID:       req.EventID,
		Timezone:      req.Timezone,
		Date:          req.Date,
		Time:          req.Time,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
	}, s.grid, s.now()); errs != nil {
		return model.Booking{}, errs
	}

	event, err := s.events.Get(ctx, req.EventID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Booking{}, ErrEventNotFound
		}
		return model.Booking{}, fmt.Errorf("load event: %w", err)
	}

	release, err := s.locker.Acquire(ctx, req.EventID, req.Date, req.Time)
	if err != nil {
		return model.Booking{}, err
	}
	defer release()

	// Validation cannot see calendar conflicts; the resolver is the real check.
	res := s.resolver.Resolve(ctx, req.Timezone, req.Date, req.Time, event.DurationMin)
	if !res.Available {
		return model.Booking{}, &UnavailableError{
			NextSlots:      res.NextSlots,
			MovedToNextDay: res.MovedToNextDay,
		}
	}

	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return model.Booking{}, fmt.Errorf("load timezone: %w", err)
	}
	start, err := time.ParseInLocation("2006-01-02 15:04:05", req.Date+" "+req.Time, loc)
	if err != nil {
		return model.Booking{}, fmt.Errorf("parse booking time: %w", err)
	}
	end := start.Add(time.Duration(event.DurationMin) * time.Minute)

	// External calendar first: it is the source of truth for conflict
	// freedom, and a local booking without the calendar event would be
	// unsynchronized state.
	calendarEventID, err := s.gateway.CreateEvent(ctx, calendar.EventDetails{
		Title:         event.Name,
		Description:   event.Description,
		Start:         start,
		End:           end,
		AttendeeName:  req.AttendeeName,
		AttendeeEmail: req.AttendeeEmail,
	})
	if err != nil {
		s.logger.Error("calendar write failed", "event_id", req.EventID, "err", err)
		return model.Booking{}, fmt.Errorf("%w: %v", ErrCalendarWrite, err)
	}

	b := &model.Booking{
		EventID:         req.EventID,
		AttendeeName:    req.AttendeeName,
		AttendeeEmail:   req.AttendeeEmail,
		BookingDate:     req.Date,
		BookingTime:     req.Time,
		BookingTimezone: req.Timezone,
		DurationMin:     event.DurationMin,
		CalendarEventID: calendarEventID,
	}

	confirmPayload, err := json.Marshal(map[string]any{
		"event_id":          req.EventID,
		"event_name":        event.Name,
		"event_description": event.Description,
		"attendee_name":     req.AttendeeName,
		"attendee_email":    req.AttendeeEmail,
		"booking_date":      req.Date,
		"booking_time":      req.Time,
		"booking_timezone":  req.Timezone,
		"duration_minutes":  event.DurationMin,
		"start_time":        start.UTC().Format(time.RFC3339),
		"end_time":          end.UTC().Format(time.RFC3339),
		"calendar_event_id": calendarEventID,
	})
	if err != nil {
		return model.Booking{}, fmt.Errorf("build confirmation payload: %w", err)
	}

	id, err := s.persister.PersistBooking(ctx, b, confirmPayload, s.reminderFor(start, req.AttendeeEmail, confirmPayload))
	if err != nil {
		s.recordOrphan(calendarEventID, req, start, err)
		return model.Booking{}, &PersistError{CalendarEventID: calendarEventID, Err: err}
	}
	b.ID = id

	s.logger.Info("booking confirmed",
		"booking_id", id,
		"event_id", req.EventID,
		"start", start.UTC().Format(time.RFC3339),
		"calendar_event_id", calendarEventID,
	)
	return *b, nil
}

// reminderFor schedules the reminder an hour before the booking starts, or
// not at all when the start is closer than that.
func (s *Service) reminderFor(start time.Time, recipient string, payload []byte) *reminders.Job {
	remindAt := start.Add(-reminderLead)
	if remindAt.Before(s.now()) {
		return nil
	}
	return &reminders.Job{
		Recipient: recipient,
		RemindAt:  remindAt.UTC(),
		Payload:   payload,
	}
}

// recordOrphan is best effort: the booking attempt already failed, the only
// goal here is leaving a trail for the reconciler.
func (s *Service) recordOrphan(calendarEventID string, req BookRequest, start time.Time, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.orphans.Record(ctx, storage.OrphanEvent{
		CalendarEventID: calendarEventID,
		EventID:         req.EventID,
		AttendeeEmail:   req.AttendeeEmail,
		StartTime:       start.UTC(),
		Reason:          cause.Error(),
	}); err != nil {
		s.logger.Error("orphan record failed; manual reconciliation needed",
			"calendar_event_id", calendarEventID, "err", err)
	}
}

// DayGrid builds the slot-selection view: the day's grid with each slot
// flagged against the local availability index.
func (s *Service) DayGrid(ctx context.Context, eventID, date, timezone string) ([]model.TimeSlot, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}

	occupied, err := s.index.FindOccupiedTimes(ctx, eventID, date)
	if err != nil {
		return nil, fmt.Errorf("load occupied slots: %w", err)
	}
	taken := make(map[string]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}

	starts := s.grid.Slots(day, loc, s.now())
	slots := make([]model.TimeSlot, 0, len(starts))
	for _, t := range starts {
		wallClock := t.Format("15:04:05")
		_, isTaken := taken[wallClock]
		slots = append(slots, model.TimeSlot{Time: wallClock, Available: !isTaken})
	}
	return slots, nil
}
