package booking

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mjdelacruz/slotbook/internal/calendar"
	"github.com/mjdelacruz/slotbook/internal/lock"
	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/internal/reminders"
	"github.com/mjdelacruz/slotbook/internal/slotgrid"
	"github.com/mjdelacruz/slotbook/internal/storage"
	"github.com/mjdelacruz/slotbook/internal/validate"
)

type fakeCatalog struct {
	events map[string]model.Event
}

func (f *fakeCatalog) Get(_ context.Context, id string) (model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, pgx.ErrNoRows
	}
	return e, nil
}

type fakeIndex struct {
	occupied []string
	err      error
}

func (f *fakeIndex) FindOccupiedTimes(context.Context, string, string) ([]string, error) {
	return f.occupied, f.err
}

type fakeResolver struct {
	result model.AvailabilityResult
	calls  int
}

func (f *fakeResolver) Resolve(context.Context, string, string, string, int) model.AvailabilityResult {
	f.calls++
	return f.result
}

type fakeCalendar struct {
	created   []calendar.EventDetails
	createErr error
}

func (f *fakeCalendar) ListEvents(context.Context, time.Time, time.Time, string) ([]model.BusyInterval, error) {
	return nil, nil
}

func (f *fakeCalendar) ListBusyIntervals(context.Context, time.Time, string, string) ([]model.BusyInterval, error) {
	return nil, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, details calendar.EventDetails) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, details)
	return "gcal-123", nil
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(context.Context, string, string, string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type fakePersister struct {
	persisted []*model.Booking
	reminders []*reminders.Job
	err       error
}

func (f *fakePersister) PersistBooking(_ context.Context, b *model.Booking, _ []byte, reminder *reminders.Job) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.persisted = append(f.persisted, b)
	f.reminders = append(f.reminders, reminder)
	return "bk-1", nil
}

type fakeOrphans struct {
	recorded []storage.OrphanEvent
}

func (f *fakeOrphans) Record(_ context.Context, o storage.OrphanEvent) error {
	f.recorded = append(f.recorded, o)
	return nil
}

type fixture struct {
	svc      *Service
	resolver *fakeResolver
	cal      *fakeCalendar
	locker   *fakeLocker
	persist  *fakePersister
	orphans  *fakeOrphans
	index    *fakeIndex
}

func newFixture() *fixture {
	f := &fixture{
		resolver: &fakeResolver{result: model.AvailabilityResult{Available: true}},
		cal:      &fakeCalendar{},
		locker:   &fakeLocker{},
		persist:  &fakePersister{},
		orphans:  &fakeOrphans{},
		index:    &fakeIndex{},
	}
	catalog := &fakeCatalog{events: map[string]model.Event{
		"evt-1": {ID: "evt-1", Name: "Intro Call", Description: "30 minute intro", DurationMin: 60},
	}}
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	f.svc = NewService(catalog, f.index, f.resolver, f.cal, f.locker, f.persist, f.orphans, slotgrid.Default(), logger)
	f.svc.now = func() time.Time { return time.Date(2026, 4, 13, 9, 0, 0, 0, time.UTC) } // Monday morning
	return f
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func validRequest() BookRequest {
	return BookRequest{
		EventID:       "evt-1",
		Timezone:      "UTC",
		Date:          "2026-04-15",
		Time:          "10:00:00",
		AttendeeName:  "Ada Lovelace",
		AttendeeEmail: "ada@example.com",
	}
}

func TestBook_Success(t *testing.T) {
	f := newFixture()

	b, err := f.svc.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if b.ID != "bk-1" {
		t.Fatalf("expected booking id bk-1, got %q", b.ID)
	}
	if b.CalendarEventID != "gcal-123" {
		t.Fatalf("expected calendar event id on booking, got %q", b.CalendarEventID)
	}
	if len(f.cal.created) != 1 {
		t.Fatalf("expected exactly one calendar write, got %d", len(f.cal.created))
	}
	if len(f.persist.persisted) != 1 {
		t.Fatalf("expected exactly one persisted booking, got %d", len(f.persist.persisted))
	}
	if f.locker.acquired != 1 || f.locker.released != 1 {
		t.Fatalf("lock must be acquired and released once, got %d/%d", f.locker.acquired, f.locker.released)
	}

	details := f.cal.created[0]
	if !details.End.Equal(details.Start.Add(60 * time.Minute)) {
		t.Fatalf("calendar event must span the event duration, got %v..%v", details.Start, details.End)
	}

	if f.persist.reminders[0] == nil {
		t.Fatal("expected a reminder for a booking more than an hour out")
	}
	wantRemind := time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)
	if !f.persist.reminders[0].RemindAt.Equal(wantRemind) {
		t.Fatalf("reminder at %v, want %v (start minus one hour)", f.persist.reminders[0].RemindAt, wantRemind)
	}
}

func TestBook_UnavailableReturnsAlternatives(t *testing.T) {
	f := newFixture()
	f.resolver.result = model.AvailabilityResult{
		Available: false,
		NextSlots: []string{"2026-04-15 15:00 to 2026-04-15 16:00"},
	}

	_, err := f.svc.Book(context.Background(), validRequest())
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if len(unavailable.NextSlots) != 1 || unavailable.MovedToNextDay {
		t.Fatalf("unexpected payload: %+v", unavailable)
	}
	if len(f.cal.created) != 0 {
		t.Fatal("no calendar write may happen for an unavailable slot")
	}
	if len(f.persist.persisted) != 0 {
		t.Fatal("nothing may be persisted for an unavailable slot")
	}
}

func TestBook_MovedToNextDay(t *testing.T) {
	f := newFixture()
	f.resolver.result = model.AvailabilityResult{Available: false, MovedToNextDay: true}

	_, err := f.svc.Book(context.Background(), validRequest())
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if !unavailable.MovedToNextDay || len(unavailable.NextSlots) != 0 {
		t.Fatalf("unexpected payload: %+v", unavailable)
	}
}

func TestBook_CalendarWriteFailurePersistsNothing(t *testing.T) {
	f := newFixture()
	f.cal.createErr = errors.New("api 500")

	_, err := f.svc.Book(context.Background(), validRequest())
	if !errors.Is(err, ErrCalendarWrite) {
		t.Fatalf("expected ErrCalendarWrite, got %v", err)
	}
	if len(f.persist.persisted) != 0 {
		t.Fatal("calendar write failure must persist zero reservations")
	}
	if len(f.orphans.recorded) != 0 {
		t.Fatal("no orphan exists when the calendar write itself failed")
	}
}

func TestBook_PersistFailureRecordsOrphan(t *testing.T) {
	f := newFixture()
	f.persist.err = errors.New("db down")

	_, err := f.svc.Book(context.Background(), validRequest())
	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistError, got %v", err)
	}
	if persistErr.CalendarEventID != "gcal-123" {
		t.Fatalf("persist error must carry the external event id, got %q", persistErr.CalendarEventID)
	}
	if len(f.orphans.recorded) != 1 {
		t.Fatalf("expected one orphan record, got %d", len(f.orphans.recorded))
	}
	if f.orphans.recorded[0].CalendarEventID != "gcal-123" {
		t.Fatalf("orphan must reference the external event, got %q", f.orphans.recorded[0].CalendarEventID)
	}
}

func TestBook_ValidationShortCircuits(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.AttendeeEmail = "nope"

	_, err := f.svc.Book(context.Background(), req)
	var fieldErrs validate.FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if f.resolver.calls != 0 {
		t.Fatal("invalid input must not reach the resolver")
	}
	if f.locker.acquired != 0 {
		t.Fatal("invalid input must not take the slot lock")
	}
}

func TestBook_UnknownEvent(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.EventID = "evt-missing"

	_, err := f.svc.Book(context.Background(), req)
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestBook_SlotLockContention(t *testing.T) {
	f := newFixture()
	f.locker.err = lock.ErrSlotLocked

	_, err := f.svc.Book(context.Background(), validRequest())
	if !errors.Is(err, lock.ErrSlotLocked) {
		t.Fatalf("expected ErrSlotLocked, got %v", err)
	}
	if f.resolver.calls != 0 {
		t.Fatal("contended slot must not be resolved")
	}
}

func TestBook_NoReminderForImminentStart(t *testing.T) {
	f := newFixture()
	f.svc.now = func() time.Time { return time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC) }

	req := validRequest()
	req.Date = "2026-04-15"
	req.Time = "10:00:00" // 30 minutes out, inside the one-hour lead

	_, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if f.persist.reminders[0] != nil {
		t.Fatal("no reminder may be scheduled when the lead time has passed")
	}
}

func TestDayGrid_FlagsOccupiedSlots(t *testing.T) {
	f := newFixture()
	f.index.occupied = []string{"10:00:00", "14:30:00"}

	slots, err := f.svc.DayGrid(context.Background(), "evt-1", "2026-04-15", "UTC")
	if err != nil {
		t.Fatalf("day grid: %v", err)
	}
	if len(slots) != 19 {
		t.Fatalf("expected 19 slots for a future day, got %d", len(slots))
	}
	for _, s := range slots {
		wantAvailable := s.Time != "10:00:00" && s.Time != "14:30:00"
		if s.Available != wantAvailable {
			t.Fatalf("slot %s availability = %v, want %v", s.Time, s.Available, wantAvailable)
		}
	}
}

func TestDayGrid_UnknownEvent(t *testing.T) {
	f := newFixture()
	_, err := f.svc.DayGrid(context.Background(), "evt-missing", "2026-04-15", "UTC")
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
