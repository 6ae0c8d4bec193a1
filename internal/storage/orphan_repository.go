package storage

import (
	"context"
	"time"

	"github.com/mjdelacruz/slotbook/libs/db"
)

// OrphanEvent records a calendar event that was written externally but whose
// local booking insert failed. The reconciler sweeps these; nothing here
// auto-deletes the external event.
type OrphanEvent struct {
	ID              int64
	CalendarEventID string
	EventID         string
	AttendeeEmail   string
	StartTime       time.Time
	Reason          string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
}

type OrphanRepository struct {
	pool *db.Pool
}

func NewOrphanRepository(pool *db.Pool) *OrphanRepository {
	return &OrphanRepository{pool: pool}
}

func (r *OrphanRepository) Record(ctx context.Context, o OrphanEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orphan_calendar_events
			(calendar_event_id, event_id, attendee_email, start_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, o.CalendarEventID, o.EventID, o.AttendeeEmail, o.StartTime, o.Reason)
	return err
}

func (r *OrphanRepository) ListUnresolved(ctx context.Context, limit int) ([]OrphanEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, calendar_event_id, event_id, attendee_email, start_time, reason, created_at
		FROM orphan_calendar_events
		WHERE resolved_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orphans []OrphanEvent
	for rows.Next() {
		var o OrphanEvent
		if err := rows.Scan(&o.ID, &o.CalendarEventID, &o.EventID, &o.AttendeeEmail, &o.StartTime, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

func (r *OrphanRepository) MarkResolved(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orphan_calendar_events
		SET resolved_at = now()
		WHERE id = $1 AND resolved_at IS NULL
	`, id)
	return err
}
