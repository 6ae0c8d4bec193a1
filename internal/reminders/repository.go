package reminders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mjdelacruz/slotbook/libs/db"
)

// Job is one pending reminder email, due at RemindAt (booking start minus
// the configured lead time).
type Job struct {
	ID        int64
	BookingID string
	Recipient string
	RemindAt  time.Time
	Payload   []byte
	Attempts  int
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTx schedules a reminder inside the booking transaction so a booking
// and its reminder commit or roll back together.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, job Job) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_reminders (booking_id, recipient, remind_at, payload)
		VALUES ($1, $2, $3, $4)
	`, job.BookingID, job.Recipient, job.RemindAt, job.Payload)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id, recipient, remind_at, payload, attempts
		FROM booking_reminders
		WHERE processed_at IS NULL AND remind_at <= now()
		ORDER BY remind_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.BookingID, &j.Recipient, &j.RemindAt, &j.Payload, &j.Attempts); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE booking_reminders
		SET processed_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, nextRunAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_reminders
		SET attempts = $2,
			remind_at = $3
		WHERE id = $1
	`, id, attempts, nextRunAt)
	return err
}
