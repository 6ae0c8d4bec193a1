package outbox

// Event is a domain event written in the same transaction as the state
// change it announces. The publisher relays it to Kafka after commit.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Topics emitted by the booking flow.
const (
	TopicBookingConfirmed = "booking.confirmed.v1"
	TopicReminderDue      = "booking.reminder.due.v1"
	TopicOrphanDetected   = "booking.orphan.detected.v1"
)
