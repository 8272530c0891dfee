package availability

import "errors"

var (
	ErrRuleNotFound        = errors.New("availability rule not found")
	ErrRuleConflict        = errors.New("availability rule overlaps an existing rule")
	ErrInvalidWindow       = errors.New("start time must be before end time")
	ErrInvalidSlotDuration = errors.New("slot duration must be positive")
	ErrInvalidRecurrence   = errors.New("recurrence must be weekly or a single date override")
	ErrDoctorRequired      = errors.New("doctor id is required")
)
