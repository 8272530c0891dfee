package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docbook/docbook/internal/domain/interval"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrAppointmentConflict     = errors.New("appointment time slot is already booked")
	ErrReservationExpired      = errors.New("reservation hold has expired")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrScheduledInPast         = errors.New("cannot book an appointment in the past")
	ErrInvalidDuration         = errors.New("appointment duration must be between 5 and 480 minutes")
)

// ConflictError reports a booking conflict together with the occupied
// intervals so callers can suggest alternatives. It unwraps to
// ErrAppointmentConflict.
type ConflictError struct {
	Conflicts []interval.Interval
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrAppointmentConflict.Error()
	}
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s: %s", ErrAppointmentConflict, strings.Join(parts, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrAppointmentConflict
}
