package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mjdelacruz/slotbook/internal/booking"
	"github.com/mjdelacruz/slotbook/internal/lock"
	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/internal/storage"
	"github.com/mjdelacruz/slotbook/internal/validate"
)

type bookingService interface {
	Book(ctx context.Context, req booking.BookRequest) (model.Booking, error)
}

type bookingStore interface {
	Get(ctx context.Context, id string) (model.Booking, error)
	List(ctx context.Context, limit int) ([]model.Booking, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type BookingHandler struct {
	svc    bookingService
	store  bookingStore
	logger *slog.Logger
}

func NewBookingHandler(svc bookingService, store bookingStore, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, store: store, logger: logger}
}

type createBookingRequest struct {
	Timezone      string `json:"timezone"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	AttendeeName  string `json:"name"`
	AttendeeEmail string `json:"email"`
}

type bookingItem struct {
	ID              string `json:"id"`
	EventID         string `json:"event_id"`
	AttendeeName    string `json:"name"`
	AttendeeEmail   string `json:"email"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Timezone        string `json:"timezone"`
	DurationMinutes int    `json:"duration_minutes"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
}

func bookingToItem(b model.Booking) bookingItem {
	return bookingItem{
		ID:              b.ID,
		EventID:         b.EventID,
		AttendeeName:    b.AttendeeName,
		AttendeeEmail:   b.AttendeeEmail,
		Date:            b.BookingDate,
		Time:            b.BookingTime,
		Timezone:        b.BookingTimezone,
		DurationMinutes: b.DurationMin,
		CalendarEventID: b.CalendarEventID,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimSpace(r.PathValue("id"))
	if eventID == "" {
		http.Error(w, "event id required", http.StatusBadRequest)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	b, err := h.svc.Book(r.Context(), booking.BookRequest{
		EventID:       eventID,
		Timezone:      strings.TrimSpace(req.Timezone),
		Date:          strings.TrimSpace(req.Date),
		Time:          strings.TrimSpace(req.Time),
		AttendeeName:  strings.TrimSpace(req.AttendeeName),
		AttendeeEmail: strings.TrimSpace(req.AttendeeEmail),
	})
	if err != nil {
		h.writeBookError(w, err, eventID)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "booking confirmed",
		"booking": bookingToItem(b),
	})
}

// writeBookError maps the service's typed errors onto the wire. The persist
// failure after a successful calendar write gets its own body so clients do
// not blindly retry and double-book the calendar.
func (h *BookingHandler) writeBookError(w http.ResponseWriter, err error, eventID string) {
	var fieldErrs validate.FieldErrors
	if errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}
	if errors.Is(err, booking.ErrEventNotFound) {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, lock.ErrSlotLocked) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"message": "another booking for this slot is in progress, try again",
		})
		return
	}

	var unavailable *booking.UnavailableError
	if errors.As(err, &unavailable) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"message":           unavailable.Error(),
			"next_slots":        nonNil(unavailable.NextSlots),
			"moved_to_next_day": unavailable.MovedToNextDay,
		})
		return
	}

	if errors.Is(err, booking.ErrCalendarWrite) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"message": "calendar is unavailable, nothing was booked",
		})
		return
	}

	var persistErr *booking.PersistError
	if errors.As(err, &persistErr) {
		h.logger.Error("booking persist failed after calendar write",
			"event_id", eventID, "calendar_event_id", persistErr.CalendarEventID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "booking could not be saved; the team has been notified, do not retry",
		})
		return
	}

	h.logger.Error("booking failed", "event_id", eventID, "err", err)
	http.Error(w, "failed to create booking", http.StatusInternalServerError)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "booking id required", http.StatusBadRequest)
		return
	}

	b, err := h.store.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, booking.ErrBookingNotFound.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("booking load failed", "err", err, "booking_id", id)
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": bookingToItem(b)})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	bookings, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("booking list failed", "err", err)
		http.Error(w, "failed to load bookings", http.StatusInternalServerError)
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, bookingToItem(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

// Delete removes the local booking only. The external calendar event stays;
// cancelling it there is out of scope for this endpoint.
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "booking id required", http.StatusBadRequest)
		return
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("booking delete failed", "err", err, "booking_id", id)
		http.Error(w, "failed to delete booking", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
