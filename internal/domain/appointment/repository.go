package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/interval"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus persists a lifecycle transition (status, expiry,
	// cancellation and completion fields). The write is a compare-and-swap
	// on from, the status the transition was computed against; a row that
	// moved on meanwhile is left untouched and ErrInvalidStatusTransition
	// is returned.
	UpdateStatus(ctx context.Context, a *Appointment, from Status) error

	// FindLive returns the doctor's appointments that occupy any part of span
	// as of now: scheduled ones plus unexpired reservation holds. excludeID,
	// when non-nil, removes that appointment from its own conflict check.
	FindLive(ctx context.Context, doctorID uuid.UUID, span interval.Interval, now time.Time, excludeID *uuid.UUID) ([]*Appointment, error)

	// FindExpiredHolds returns up to limit reserved appointments whose TTL
	// elapsed at or before asOf. This is the reaper's work queue.
	FindExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, error)

	// ListByDoctor returns the doctor's appointments starting inside span,
	// any status, oldest first.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, span interval.Interval) ([]*Appointment, error)

	// InTx runs fn inside a single storage transaction; the callback receives
	// a context carrying the transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder persists lifecycle events for after-the-fact inspection. Writes
// are asynchronous and best-effort.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// EventStore is the durable side of the event log.
type EventStore interface {
	Create(ctx context.Context, ev *Event) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Event, error)
}

// Event is one lifecycle transition of one appointment.
type Event struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OccurredAt    time.Time  `gorm:"autoCreateTime;index" json:"occurred_at"`
	AppointmentID uuid.UUID  `gorm:"column:appointment_id;type:uuid;not null;index" json:"appointment_id"`
	DoctorID      uuid.UUID  `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`
	PatientID     uuid.UUID  `gorm:"column:patient_id;type:uuid;not null" json:"patient_id"`
	Action        string     `gorm:"column:action;type:varchar(30);not null;index" json:"action"`
	ActorID       *uuid.UUID `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	Detail        string     `gorm:"column:detail;type:text" json:"detail,omitempty"`
}

func (Event) TableName() string {
	return "scheduling.appointment_events"
}
