package storage

import (
	"context"

	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/libs/db"
)

// EventRepository is the read side of the event catalog. Events are managed
// elsewhere; the booking flow only ever looks them up.
type EventRepository struct {
	pool *db.Pool
}

func NewEventRepository(pool *db.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Get(ctx context.Context, id string) (model.Event, error) {
	var e model.Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, duration_minutes, created_at
		FROM events
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Description, &e.DurationMin, &e.CreatedAt)
	if err != nil {
		return model.Event{}, err
	}
	return e, nil
}

func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, duration_minutes, created_at
		FROM events
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.DurationMin, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
