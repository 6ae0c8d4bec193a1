package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/mjdelacruz/slotbook/internal/booking"
	"github.com/mjdelacruz/slotbook/internal/lock"
	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/internal/validate"
)

type fakeBookSvc struct {
	booking model.Booking
	err     error
	got     booking.BookRequest
}

func (f *fakeBookSvc) Book(_ context.Context, req booking.BookRequest) (model.Booking, error) {
	f.got = req
	if f.err != nil {
		return model.Booking{}, f.err
	}
	return f.booking, nil
}

type fakeGrid struct {
	slots []model.TimeSlot
	err   error
}

func (f *fakeGrid) DayGrid(context.Context, string, string, string) ([]model.TimeSlot, error) {
	return f.slots, f.err
}

type fakeEventStore struct {
	events []model.Event
}

func (f *fakeEventStore) List(context.Context) ([]model.Event, error) {
	return f.events, nil
}

type fakeBookingStore struct {
	bookings []model.Booking
	deleted  bool
}

func (f *fakeBookingStore) Get(_ context.Context, id string) (model.Booking, error) {
	for _, b := range f.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, pgx.ErrNoRows
}

func (f *fakeBookingStore) List(context.Context, int) ([]model.Booking, error) {
	return f.bookings, nil
}

func (f *fakeBookingStore) Delete(context.Context, string) (bool, error) {
	return f.deleted, nil
}

type testEnv struct {
	mux   *http.ServeMux
	svc   *fakeBookSvc
	grid  *fakeGrid
	store *fakeBookingStore
}

func newTestEnv() *testEnv {
	env := &testEnv{
		svc: &fakeBookSvc{booking: model.Booking{
			ID:              "bk-1",
			EventID:         "evt-1",
			AttendeeName:    "Ada Lovelace",
			AttendeeEmail:   "ada@example.com",
			BookingDate:     "2026-04-15",
			BookingTime:     "10:00:00",
			BookingTimezone: "UTC",
			DurationMin:     60,
			CalendarEventID: "gcal-123",
		}},
		grid:  &fakeGrid{},
		store: &fakeBookingStore{},
	}

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	eventHandler := NewEventHandler(&fakeEventStore{events: []model.Event{
		{ID: "evt-1", Name: "Intro Call", DurationMin: 60},
	}}, env.grid, logger)
	bookingHandler := NewBookingHandler(env.svc, env.store, logger)

	env.mux = http.NewServeMux()
	env.mux.HandleFunc("GET /api/v1/events", eventHandler.List)
	env.mux.HandleFunc("GET /api/v1/events/{id}/slots", eventHandler.Slots)
	env.mux.HandleFunc("POST /api/v1/events/{id}/bookings", bookingHandler.Create)
	env.mux.HandleFunc("GET /api/v1/bookings", bookingHandler.List)
	env.mux.HandleFunc("GET /api/v1/bookings/{id}", bookingHandler.Get)
	env.mux.HandleFunc("DELETE /api/v1/bookings/{id}", bookingHandler.Delete)
	return env
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"timezone":"UTC","date":"2026-04-15","time":"10:00:00","name":"Ada Lovelace","email":"ada@example.com"}`

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestCreateBooking_Created(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	if env.svc.got.EventID != "evt-1" {
		t.Fatalf("event id from path not forwarded, got %q", env.svc.got.EventID)
	}
	body := decodeBody(t, rec)
	b, ok := body["booking"].(map[string]any)
	if !ok || b["id"] != "bk-1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateBooking_ConflictCarriesAlternatives(t *testing.T) {
	env := newTestEnv()
	env.svc.err = &booking.UnavailableError{
		NextSlots: []string{"2026-04-15 15:00 to 2026-04-15 16:00"},
	}

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	body := decodeBody(t, rec)
	slots, ok := body["next_slots"].([]any)
	if !ok || len(slots) != 1 {
		t.Fatalf("expected one alternative in body: %s", rec.Body.String())
	}
	if body["moved_to_next_day"] != false {
		t.Fatalf("moved_to_next_day = %v, want false", body["moved_to_next_day"])
	}
}

func TestCreateBooking_MovedToNextDayHasEmptyList(t *testing.T) {
	env := newTestEnv()
	env.svc.err = &booking.UnavailableError{MovedToNextDay: true}

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	body := decodeBody(t, rec)
	slots, ok := body["next_slots"].([]any)
	if !ok || len(slots) != 0 {
		t.Fatalf("next_slots must be an empty list, got: %s", rec.Body.String())
	}
	if body["moved_to_next_day"] != true {
		t.Fatalf("moved_to_next_day = %v, want true", body["moved_to_next_day"])
	}
}

func TestCreateBooking_ValidationErrors(t *testing.T) {
	env := newTestEnv()
	env.svc.err = validate.FieldErrors{"email": "a valid email is required"}

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	body := decodeBody(t, rec)
	errs, ok := body["errors"].(map[string]any)
	if !ok || errs["email"] == nil {
		t.Fatalf("expected field errors in body: %s", rec.Body.String())
	}
}

func TestCreateBooking_CalendarDown(t *testing.T) {
	env := newTestEnv()
	env.svc.err = booking.ErrCalendarWrite

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestCreateBooking_PersistFailureIsDistinct(t *testing.T) {
	env := newTestEnv()
	env.svc.err = &booking.PersistError{CalendarEventID: "gcal-123", Err: errors.New("db down")}

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "do not retry") {
		t.Fatalf("persist failure must warn against retrying, got: %s", rec.Body.String())
	}
}

func TestCreateBooking_SlotLockContention(t *testing.T) {
	env := newTestEnv()
	env.svc.err = lock.ErrSlotLocked

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", validBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateBooking_UnknownEvent(t *testing.T) {
	env := newTestEnv()
	env.svc.err = booking.ErrEventNotFound

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-404/bookings", validBody)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateBooking_BadJSON(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/events/evt-1/bookings", "{nope")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSlots_ReturnsGrid(t *testing.T) {
	env := newTestEnv()
	env.grid.slots = []model.TimeSlot{
		{Time: "08:00:00", Available: true},
		{Time: "08:30:00", Available: false},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/events/evt-1/slots?date=2026-04-15&timezone=UTC", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	slots, ok := body["slots"].([]any)
	if !ok || len(slots) != 2 {
		t.Fatalf("expected two slots, got: %s", rec.Body.String())
	}
	first := slots[0].(map[string]any)
	if first["time"] != "08:00:00" || first["is_available"] != true {
		t.Fatalf("unexpected first slot: %v", first)
	}
}

func TestSlots_EmptyDayCarriesMessage(t *testing.T) {
	env := newTestEnv()
	env.grid.slots = nil

	rec := env.do(t, http.MethodGet, "/api/v1/events/evt-1/slots?date=2026-04-15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	slots, ok := body["slots"].([]any)
	if !ok || len(slots) != 0 {
		t.Fatalf("slots must be an empty list, got: %s", rec.Body.String())
	}
	if body["message"] == nil {
		t.Fatalf("empty day must carry a message: %s", rec.Body.String())
	}
}

func TestSlots_UnknownEvent(t *testing.T) {
	env := newTestEnv()
	env.grid.err = booking.ErrEventNotFound

	rec := env.do(t, http.MethodGet, "/api/v1/events/evt-404/slots?date=2026-04-15", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSlots_MissingDate(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/events/evt-1/slots", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListBookings(t *testing.T) {
	env := newTestEnv()
	env.store.bookings = []model.Booking{{ID: "bk-1", EventID: "evt-1"}}

	rec := env.do(t, http.MethodGet, "/api/v1/bookings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	bookings, ok := body["bookings"].([]any)
	if !ok || len(bookings) != 1 {
		t.Fatalf("expected one booking, got: %s", rec.Body.String())
	}
}

func TestGetBooking(t *testing.T) {
	env := newTestEnv()
	env.store.bookings = []model.Booking{{ID: "bk-1", EventID: "evt-1"}}

	rec := env.do(t, http.MethodGet, "/api/v1/bookings/bk-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	b, ok := body["booking"].(map[string]any)
	if !ok || b["id"] != "bk-1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/bookings/bk-404", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteBooking(t *testing.T) {
	env := newTestEnv()
	env.store.deleted = true

	rec := env.do(t, http.MethodDelete, "/api/v1/bookings/bk-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestDeleteBooking_NotFound(t *testing.T) {
	env := newTestEnv()
	env.store.deleted = false

	rec := env.do(t, http.MethodDelete, "/api/v1/bookings/bk-404", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	events, ok := body["events"].([]any)
	if !ok || len(events) != 1 {
		t.Fatalf("expected one event, got: %s", rec.Body.String())
	}
}
