package booking

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")

	// ErrCalendarWrite means the external event could not be created.
	// Nothing was persisted locally; the attempt can simply be retried.
	ErrCalendarWrite = errors.New("could not write to calendar")
)

// UnavailableError carries the resolver's alternatives back to the caller.
// When MovedToNextDay is set the list is empty and the caller should offer
// the following day instead.
type UnavailableError struct {
	NextSlots      []string
	MovedToNextDay bool
}

func (e *UnavailableError) Error() string {
	return "the selected date and time conflicts with an existing event"
}

// PersistError is the bad case: the calendar write went through but the
// local insert did not, leaving an external event with no booking behind
// it. The orphan is recorded for reconciliation; callers must surface this
// distinctly rather than retry blindly.
type PersistError struct {
	CalendarEventID string
	Err             error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("booking persisted to calendar (%s) but not locally: %v", e.CalendarEventID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
