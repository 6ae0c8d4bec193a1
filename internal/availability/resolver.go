// Package availability decides whether a candidate slot can be booked and,
// when it cannot, computes the next bookable alternatives for the same day.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mjdelacruz/slotbook/internal/calendar"
	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/internal/slotgrid"
)

const (
	maxAlternatives = 3

	// cutoffGrace is the span after the daily close inside which the
	// alternative search gives up and rolls to the next day instead of
	// cramming slots at the boundary.
	cutoffGrace = 59 * time.Minute

	slotLabelFormat = "2006-01-02 15:04"
)

type Resolver struct {
	gateway    calendar.Gateway
	grid       slotgrid.Config
	calendarID string
	logger     *slog.Logger
}

func NewResolver(gateway calendar.Gateway, grid slotgrid.Config, calendarID string, logger *slog.Logger) *Resolver {
	if calendarID == "" {
		calendarID = calendar.DefaultCalendarID
	}
	return &Resolver{
		gateway:    gateway,
		grid:       grid,
		calendarID: calendarID,
		logger:     logger,
	}
}

// Resolve checks the candidate interval [start, start+duration) against the
// external calendar. Expected outcomes (free, conflicting, gateway down) are
// all expressed in the result; gateway failures degrade to unavailable
// rather than surfacing an error, so a dead calendar can never hand out a
// double booking.
func (r *Resolver) Resolve(ctx context.Context, timezone, date, timeOfDay string, durationMin int) model.AvailabilityResult {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		r.logger.Warn("resolve: bad timezone", "timezone", timezone, "err", err)
		return model.AvailabilityResult{Available: false}
	}

	start, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+timeOfDay, loc)
	if err != nil {
		r.logger.Warn("resolve: bad date/time", "date", date, "time", timeOfDay, "err", err)
		return model.AvailabilityResult{Available: false}
	}
	end := start.Add(time.Duration(durationMin) * time.Minute)

	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	events, err := r.gateway.ListEvents(ctx, dayStart, dayStart.AddDate(0, 0, 1), timezone)
	if err != nil {
		r.logger.Warn("resolve: calendar gateway failed; treating slot as unavailable", "err", err)
		return model.AvailabilityResult{Available: false}
	}

	if !anyOverlap(events, start, end) {
		return model.AvailabilityResult{Available: true}
	}

	return r.findNextSlots(ctx, timezone, loc, start, durationMin)
}

// findNextSlots walks forward from the conflicting start looking for up to
// three free half-hour-aligned intervals, using the day's free/busy view.
func (r *Resolver) findNextSlots(ctx context.Context, timezone string, loc *time.Location, from time.Time, durationMin int) model.AvailabilityResult {
	busy, err := r.gateway.ListBusyIntervals(ctx, from, timezone, r.calendarID)
	if err != nil {
		r.logger.Warn("resolve: free/busy query failed; treating slot as unavailable", "err", err)
		return model.AvailabilityResult{Available: false}
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	duration := time.Duration(durationMin) * time.Minute
	_, close := r.grid.Window(from, loc)

	cursor := from.In(loc)
	if r.pastCutoff(cursor, close) {
		return model.AvailabilityResult{Available: false, MovedToNextDay: true}
	}

	// Step out of any busy interval that contains the starting cursor.
	for _, b := range busy {
		if b.End.Before(cursor) {
			continue
		}
		if !cursor.Before(b.Start) && cursor.Before(b.End) {
			cursor = b.End.In(loc)
			if r.pastCutoff(cursor, close) {
				return model.AvailabilityResult{Available: false, MovedToNextDay: true}
			}
		}
	}

	var slots []string
	for len(slots) < maxAlternatives {
		start := slotgrid.RoundUpToHalfHour(cursor)
		end := start.Add(duration)

		if b, conflict := firstOverlap(busy, start, end); conflict {
			cursor = slotgrid.RoundUpToHalfHour(b.End.In(loc))
			continue
		}

		slots = append(slots, fmt.Sprintf("%s to %s", start.Format(slotLabelFormat), end.Format(slotLabelFormat)))
		cursor = end
	}

	return model.AvailabilityResult{Available: false, NextSlots: slots}
}

// pastCutoff reports whether t falls inside [close, close+grace), the window
// in which the search stops and the booking rolls to the next day.
func (r *Resolver) pastCutoff(t, close time.Time) bool {
	return !t.Before(close) && t.Before(close.Add(cutoffGrace))
}

func anyOverlap(intervals []model.BusyInterval, start, end time.Time) bool {
	_, ok := firstOverlap(intervals, start, end)
	return ok
}

func firstOverlap(intervals []model.BusyInterval, start, end time.Time) (model.BusyInterval, bool) {
	for _, iv := range intervals {
		if iv.Overlaps(start, end) {
			return iv, true
		}
	}
	return model.BusyInterval{}, false
}
