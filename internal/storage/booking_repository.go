package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/libs/db"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// FindOccupiedTimes returns the booked wall-clock start times ("15:04:05")
// for an event on a calendar date. This is the local availability index the
// day grid is checked against; the external calendar is consulted separately.
func (r *BookingRepository) FindOccupiedTimes(ctx context.Context, eventID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_time::text
		FROM bookings
		WHERE event_id = $1 AND booking_date = $2
		ORDER BY booking_time
	`, eventID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (r *BookingRepository) Insert(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(event_id, attendee_name, attendee_email, booking_date, booking_time,
			 booking_timezone, duration_minutes, calendar_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, b.EventID, b.AttendeeName, b.AttendeeEmail, b.BookingDate, b.BookingTime,
		b.BookingTimezone, b.DurationMin, b.CalendarEventID).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, attendee_name, attendee_email,
			booking_date::text, booking_time::text, booking_timezone,
			duration_minutes, COALESCE(calendar_event_id, ''), created_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(
		&b.ID,
		&b.EventID,
		&b.AttendeeName,
		&b.AttendeeEmail,
		&b.BookingDate,
		&b.BookingTime,
		&b.BookingTimezone,
		&b.DurationMin,
		&b.CalendarEventID,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *BookingRepository) List(ctx context.Context, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, attendee_name, attendee_email,
			booking_date::text, booking_time::text, booking_timezone,
			duration_minutes, COALESCE(calendar_event_id, ''), created_at
		FROM bookings
		ORDER BY booking_date DESC, booking_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(
			&b.ID,
			&b.EventID,
			&b.AttendeeName,
			&b.AttendeeEmail,
			&b.BookingDate,
			&b.BookingTime,
			&b.BookingTimezone,
			&b.DurationMin,
			&b.CalendarEventID,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// IsConflict reports a unique-violation on (event_id, booking_date,
// booking_time). The resolver is the primary collision check; this backstop
// only catches two writers racing past it.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
