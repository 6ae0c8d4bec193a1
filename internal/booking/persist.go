package booking

import (
	"context"

	"github.com/mjdelacruz/slotbook/internal/model"
	"github.com/mjdelacruz/slotbook/internal/outbox"
	"github.com/mjdelacruz/slotbook/internal/reminders"
	"github.com/mjdelacruz/slotbook/internal/storage"
	"github.com/mjdelacruz/slotbook/libs/db"
)

// TxPersister commits a booking, its confirmation outbox event, and its
// reminder job in a single transaction.
type TxPersister struct {
	pool      *db.Pool
	bookings  *storage.BookingRepository
	outbox    *outbox.Repository
	reminders *reminders.Repository
}

func NewTxPersister(pool *db.Pool, bookings *storage.BookingRepository, outboxRepo *outbox.Repository, remindersRepo *reminders.Repository) *TxPersister {
	return &TxPersister{
		pool:      pool,
		bookings:  bookings,
		outbox:    outboxRepo,
		reminders: remindersRepo,
	}
}

func (p *TxPersister) PersistBooking(ctx context.Context, b *model.Booking, confirmPayload []byte, reminder *reminders.Job) (string, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := p.bookings.Insert(ctx, tx, b)
	if err != nil {
		return "", err
	}

	if err := p.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   id,
		EventType:     outbox.TopicBookingConfirmed,
		Payload:       confirmPayload,
	}); err != nil {
		return "", err
	}

	if reminder != nil {
		job := *reminder
		job.BookingID = id
		if err := p.reminders.InsertTx(ctx, tx, job); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

var _ Persister = (*TxPersister)(nil)
