package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/interval"
)

type appointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) appointment.Repository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Create(ctx context.Context, a *appointment.Appointment) error {
	if err := dbFrom(ctx, r.db).Create(a).Error; err != nil {
		return fmt.Errorf("creating appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := dbFrom(ctx, r.db).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("fetching appointment: %w", err)
	}
	return &a, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, a *appointment.Appointment, from appointment.Status) error {
	res := dbFrom(ctx, r.db).
		Model(&appointment.Appointment{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", a.ID, from).
		Updates(map[string]any{
			"status":                 a.Status,
			"reservation_expires_at": a.ReservationExpiresAt,
			"cancelled_at":           a.CancelledAt,
			"cancellation_reason":    a.CancellationReason,
			"completed_at":           a.CompletedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment status: %w", res.Error)
	}
	// Zero rows means the status moved since it was read (or the row is
	// gone); either way the transition no longer applies.
	if res.RowsAffected == 0 {
		return appointment.ErrInvalidStatusTransition
	}
	return nil
}

func (r *appointmentRepository) FindLive(ctx context.Context, doctorID uuid.UUID, span interval.Interval, now time.Time, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	// Overlap on half-open intervals: an appointment occupies
	// [starts_at, starts_at + duration) and conflicts when each side starts
	// before the other ends.
	q := dbFrom(ctx, r.db).
		Where("doctor_id = ? AND deleted_at IS NULL", doctorID).
		Where("starts_at < ?", span.End).
		Where("starts_at + (duration_mins * interval '1 minute') > ?", span.Start).
		Where(
			"(status = ? OR (status = ? AND reservation_expires_at > ?))",
			appointment.StatusScheduled, appointment.StatusReserved, now,
		)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var appts []*appointment.Appointment
	if err := q.Order("starts_at ASC").Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("finding live appointments: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepository) FindExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]*appointment.Appointment, error) {
	var appts []*appointment.Appointment
	err := dbFrom(ctx, r.db).
		Where("deleted_at IS NULL AND status = ?", appointment.StatusReserved).
		Where("reservation_expires_at <= ?", asOf).
		Order("reservation_expires_at ASC").
		Limit(limit).
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("finding expired holds: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*appointment.Appointment, error) {
	var appts []*appointment.Appointment
	err := dbFrom(ctx, r.db).
		Where("patient_id = ? AND deleted_at IS NULL", patientID).
		Order("starts_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("listing patient appointments: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, span interval.Interval) ([]*appointment.Appointment, error) {
	var appts []*appointment.Appointment
	err := dbFrom(ctx, r.db).
		Where("doctor_id = ? AND deleted_at IS NULL", doctorID).
		Where("starts_at >= ? AND starts_at < ?", span.Start, span.End).
		Order("starts_at ASC").
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("listing doctor appointments: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return dbFrom(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
