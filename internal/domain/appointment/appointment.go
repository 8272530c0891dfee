package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/interval"
)

// State transitions possibilities:
//
//	reserved  → scheduled (confirm within the hold TTL)
//	reserved  → cancelled (explicit cancel, or reaper on expiry)
//	scheduled → cancelled
//	scheduled → completed
//	scheduled → no_show
//
// completed, cancelled and no_show are terminal.
type Status string

const (
	StatusReserved  Status = "reserved"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusReserved, StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"-"`

	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`

	StartsAt     time.Time `gorm:"column:starts_at;not null;index" json:"starts_at"`
	DurationMins int       `gorm:"column:duration_mins;not null;default:30" json:"duration_mins"`
	Status       Status    `gorm:"column:status;type:varchar(20);not null;index" json:"status"`

	// Set only while the appointment is a reservation hold.
	ReservationExpiresAt *time.Time `gorm:"column:reservation_expires_at;index" json:"reservation_expires_at,omitempty"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason,omitempty"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
}

func (Appointment) TableName() string {
	return "scheduling.appointments"
}

func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMins) * time.Minute)
}

func (a *Appointment) Interval() interval.Interval {
	return interval.New(a.StartsAt, a.EndsAt())
}

// IsLive reports whether the appointment still occupies its interval: every
// scheduled appointment, plus reservation holds whose TTL has not elapsed.
func (a *Appointment) IsLive(now time.Time) bool {
	switch a.Status {
	case StatusScheduled:
		return true
	case StatusReserved:
		return a.ReservationExpiresAt != nil && now.Before(*a.ReservationExpiresAt)
	}
	return false
}

// HoldExpired reports whether a reservation hold's TTL has elapsed.
func (a *Appointment) HoldExpired(now time.Time) bool {
	return a.Status == StatusReserved &&
		(a.ReservationExpiresAt == nil || !now.Before(*a.ReservationExpiresAt))
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusReserved:  {StatusScheduled, StatusCancelled},
		StatusScheduled: {StatusCancelled, StatusCompleted, StatusNoShow},
		StatusCompleted: {},
		StatusCancelled: {},
		StatusNoShow:    {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// Confirm flips a live hold into a scheduled appointment and clears the
// expiry field. Confirming at or after the TTL instant fails with
// ErrReservationExpired.
func (a *Appointment) Confirm(now time.Time) error {
	if !a.CanTransitionTo(StatusScheduled) {
		return ErrInvalidStatusTransition
	}
	if a.HoldExpired(now) {
		return ErrReservationExpired
	}
	a.Status = StatusScheduled
	a.ReservationExpiresAt = nil
	return nil
}

func (a *Appointment) Cancel(reason string, now time.Time) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.ReservationExpiresAt = nil
	return nil
}

func (a *Appointment) Complete(now time.Time) error {
	if !a.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusCompleted
	a.CompletedAt = &now
	return nil
}

func (a *Appointment) MarkNoShow() error {
	if !a.CanTransitionTo(StatusNoShow) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusNoShow
	return nil
}

type HoldCommand struct {
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	StartsAt     time.Time
	DurationMins int
	// TTL overrides the configured hold TTL when positive.
	TTL       time.Duration
	CreatedBy uuid.UUID
}

type ScheduleCommand struct {
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	StartsAt     time.Time
	DurationMins int
	CreatedBy    uuid.UUID
}

type CancelCommand struct {
	Reason      string
	CancelledBy uuid.UUID
}
