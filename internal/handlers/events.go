// Package handlers is the HTTP surface. Handlers translate between the wire
// and the booking service; no business rules live here.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mjdelacruz/slotbook/internal/booking"
	"github.com/mjdelacruz/slotbook/internal/model"
)

type eventStore interface {
	List(ctx context.Context) ([]model.Event, error)
}

type gridService interface {
	DayGrid(ctx context.Context, eventID, date, timezone string) ([]model.TimeSlot, error)
}

type EventHandler struct {
	events eventStore
	grid   gridService
	logger *slog.Logger
}

func NewEventHandler(events eventStore, grid gridService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, grid: grid, logger: logger}
}

type eventItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		h.logger.Error("event list failed", "err", err)
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}

	items := make([]eventItem, 0, len(events))
	for _, e := range events {
		items = append(items, eventItem{
			ID:              e.ID,
			Name:            e.Name,
			Description:     e.Description,
			DurationMinutes: e.DurationMin,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": items})
}

type slotsResponse struct {
	Date    string           `json:"date"`
	Slots   []model.TimeSlot `json:"slots"`
	Message string           `json:"message,omitempty"`
}

// Slots serves the slot-selection view: the day's grid with each slot
// flagged against local bookings.
func (h *EventHandler) Slots(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimSpace(r.PathValue("id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	timezone := strings.TrimSpace(r.URL.Query().Get("timezone"))
	if timezone == "" {
		timezone = "UTC"
	}
	if eventID == "" || date == "" {
		http.Error(w, "event id and date required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be in YYYY-MM-DD format", http.StatusBadRequest)
		return
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}

	slots, err := h.grid.DayGrid(r.Context(), eventID, date, timezone)
	if err != nil {
		if errors.Is(err, booking.ErrEventNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		h.logger.Error("day grid failed", "err", err, "event_id", eventID)
		http.Error(w, "failed to load slots", http.StatusInternalServerError)
		return
	}

	resp := slotsResponse{Date: date, Slots: slots}
	if resp.Slots == nil {
		resp.Slots = []model.TimeSlot{}
		resp.Message = "no slots available for this date"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
