package notify

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
)

type sentMail struct {
	to      string
	subject string
	body    string
	ics     string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(to, subject, body, ics string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body, ics: ics})
	return nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

const confirmedPayload = `{
	"event_id": "evt-1",
	"event_name": "Intro Call",
	"event_description": "30 minute intro",
	"attendee_name": "Ada Lovelace",
	"attendee_email": "ada@example.com",
	"booking_date": "2026-04-15",
	"booking_time": "10:00:00",
	"booking_timezone": "UTC",
	"duration_minutes": 60,
	"start_time": "2026-04-15T10:00:00Z",
	"end_time": "2026-04-15T11:00:00Z",
	"calendar_event_id": "gcal-123"
}`

func newDispatcher(sender Sender) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewDispatcher(sender, "no-reply@slotbook.local", logger)
}

func TestHandleConfirmation_SendsInvite(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	err := d.HandleConfirmation(context.Background(), kafka.Message{Value: []byte(confirmedPayload)})
	if err != nil {
		t.Fatalf("handle confirmation: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sender.sent))
	}

	mail := sender.sent[0]
	if mail.to != "ada@example.com" {
		t.Fatalf("recipient = %q", mail.to)
	}
	if !strings.Contains(mail.subject, "Intro Call") {
		t.Fatalf("subject must name the event, got %q", mail.subject)
	}
	if !strings.Contains(mail.body, "2026-04-15") || !strings.Contains(mail.body, "10:00:00") {
		t.Fatalf("body must carry the booked date and time, got %q", mail.body)
	}
	if !strings.Contains(mail.ics, "BEGIN:VCALENDAR") {
		t.Fatal("confirmation must attach an iCalendar invite")
	}
	if !strings.Contains(mail.ics, "DTSTART:20260415T100000Z") {
		t.Fatalf("invite must start at the booked instant:\n%s", mail.ics)
	}
	if !strings.Contains(mail.ics, "DTEND:20260415T110000Z") {
		t.Fatalf("invite must end after the event duration:\n%s", mail.ics)
	}
	if !strings.Contains(mail.ics, "SUMMARY:Intro Call") {
		t.Fatalf("invite must carry the event name:\n%s", mail.ics)
	}
}

func TestHandleConfirmation_BadPayload(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	err := d.HandleConfirmation(context.Background(), kafka.Message{Value: []byte("{nope")})
	if err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	if len(sender.sent) != 0 {
		t.Fatal("nothing may be sent for a malformed payload")
	}
}

func TestHandleConfirmation_BadInterval_StillSends(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	payload := strings.Replace(confirmedPayload, "2026-04-15T10:00:00Z", "not-a-time", 1)
	err := d.HandleConfirmation(context.Background(), kafka.Message{Value: []byte(payload)})
	if err != nil {
		t.Fatalf("handle confirmation: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sender.sent))
	}
	if sender.sent[0].ics != "" {
		t.Fatal("unparseable interval must drop the attachment, not fabricate one")
	}
}

func TestHandleReminder_PlainMail(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	err := d.HandleReminder(context.Background(), kafka.Message{Value: []byte(confirmedPayload)})
	if err != nil {
		t.Fatalf("handle reminder: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(sender.sent))
	}

	mail := sender.sent[0]
	if mail.ics != "" {
		t.Fatal("reminders carry no attachment")
	}
	if !strings.Contains(mail.subject, "Reminder") {
		t.Fatalf("subject = %q", mail.subject)
	}
	if !strings.Contains(mail.body, "10:00:00") {
		t.Fatalf("body must carry the start time, got %q", mail.body)
	}
}
