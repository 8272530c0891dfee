package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/cache"
	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/interval"
	"github.com/docbook/docbook/pkg/clock"
	"github.com/docbook/docbook/pkg/metrics"
)

const (
	minDurationMins = 5
	maxDurationMins = 480
)

// ReservationService owns the appointment lifecycle: placing reservation
// holds, confirming them into scheduled appointments, direct booking, and
// the terminal transitions.
//
// Every operation that claims an interval runs under the doctor's lock so
// that the conflict check and the insert observe the same state.
type ReservationService struct {
	repo      appointment.Repository
	recorder  appointment.Recorder
	events    appointment.EventStore
	slotCache cache.SlotCache
	locks     *keyedLock
	clock     clock.Clock
	cfg       config.ReservationConfig
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewReservationService(
	repo appointment.Repository,
	recorder appointment.Recorder,
	events appointment.EventStore,
	slotCache cache.SlotCache,
	clk clock.Clock,
	cfg config.ReservationConfig,
	m *metrics.Collector,
	log *zap.Logger,
) *ReservationService {
	return &ReservationService{
		repo:      repo,
		recorder:  recorder,
		events:    events,
		slotCache: slotCache,
		locks:     newKeyedLock(),
		clock:     clk,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// Hold places a reservation on the requested interval. The slot is taken out
// of circulation immediately but must be confirmed before the TTL elapses or
// the reaper releases it.
func (s *ReservationService) Hold(ctx context.Context, cmd *appointment.HoldCommand) (*appointment.Appointment, error) {
	now := s.clock.Now()
	if err := validateBooking(cmd.StartsAt, cmd.DurationMins, now); err != nil {
		return nil, err
	}

	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = s.cfg.HoldTTL
	}
	expiresAt := now.Add(ttl)

	s.locks.Lock(cmd.DoctorID)
	defer s.locks.Unlock(cmd.DoctorID)

	span := interval.FromDuration(cmd.StartsAt, cmd.DurationMins)
	if err := s.checkConflicts(ctx, cmd.DoctorID, span, now, nil); err != nil {
		s.metrics.HoldsTotal.WithLabelValues("conflict").Inc()
		return nil, err
	}

	a := &appointment.Appointment{
		DoctorID:             cmd.DoctorID,
		PatientID:            cmd.PatientID,
		StartsAt:             cmd.StartsAt,
		DurationMins:         cmd.DurationMins,
		Status:               appointment.StatusReserved,
		ReservationExpiresAt: &expiresAt,
		CreatedBy:            cmd.CreatedBy,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.metrics.HoldsTotal.WithLabelValues("error").Inc()
		s.log.Error("failed to create reservation hold", zap.Error(err))
		return nil, fmt.Errorf("creating reservation hold: %w", err)
	}

	s.metrics.HoldsTotal.WithLabelValues("created").Inc()
	s.afterChange(ctx, a, "hold_created", cmd.CreatedBy, fmt.Sprintf("expires at %s", expiresAt.Format(time.RFC3339)))
	return a, nil
}

// Schedule books the interval directly, skipping the hold phase. Used by
// staff entering appointments agreed out of band.
func (s *ReservationService) Schedule(ctx context.Context, cmd *appointment.ScheduleCommand) (*appointment.Appointment, error) {
	now := s.clock.Now()
	if err := validateBooking(cmd.StartsAt, cmd.DurationMins, now); err != nil {
		return nil, err
	}

	s.locks.Lock(cmd.DoctorID)
	defer s.locks.Unlock(cmd.DoctorID)

	span := interval.FromDuration(cmd.StartsAt, cmd.DurationMins)
	if err := s.checkConflicts(ctx, cmd.DoctorID, span, now, nil); err != nil {
		return nil, err
	}

	a := &appointment.Appointment{
		DoctorID:     cmd.DoctorID,
		PatientID:    cmd.PatientID,
		StartsAt:     cmd.StartsAt,
		DurationMins: cmd.DurationMins,
		Status:       appointment.StatusScheduled,
		CreatedBy:    cmd.CreatedBy,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusScheduled)).Inc()
	s.afterChange(ctx, a, "scheduled", cmd.CreatedBy, "")
	return a, nil
}

// Confirm turns a live hold into a scheduled appointment. Confirming an
// expired hold fails even if the reaper has not swept it yet.
func (s *ReservationService) Confirm(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(a.DoctorID)
	defer s.locks.Unlock(a.DoctorID)

	now := s.clock.Now()
	prev := a.Status
	if err := a.Confirm(now); err != nil {
		return nil, err
	}

	// A booking placed while this hold sat in its final TTL moments can
	// occupy the same interval; confirming must not double-book it.
	if err := s.checkConflicts(ctx, a.DoctorID, a.Interval(), now, &a.ID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, a, prev); err != nil {
		return nil, err
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusScheduled)).Inc()
	s.afterChange(ctx, a, "confirmed", actorID, "")
	return a, nil
}

func (s *ReservationService) Cancel(ctx context.Context, id uuid.UUID, cmd *appointment.CancelCommand) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := a.Status
	if err := a.Cancel(cmd.Reason, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a, prev); err != nil {
		return nil, err
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusCancelled)).Inc()
	s.afterChange(ctx, a, "cancelled", cmd.CancelledBy, cmd.Reason)
	return a, nil
}

func (s *ReservationService) Complete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := a.Status
	if err := a.Complete(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a, prev); err != nil {
		return nil, err
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusCompleted)).Inc()
	s.afterChange(ctx, a, "completed", actorID, "")
	return a, nil
}

func (s *ReservationService) MarkNoShow(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := a.Status
	if err := a.MarkNoShow(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a, prev); err != nil {
		return nil, err
	}

	s.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusNoShow)).Inc()
	s.afterChange(ctx, a, "no_show", actorID, "")
	return a, nil
}

// Reschedule moves a live appointment to a new interval. The old appointment
// is cancelled and a fresh hold placed in one transaction; on conflict the
// original stays untouched.
func (s *ReservationService) Reschedule(ctx context.Context, id uuid.UUID, startsAt time.Time, durationMins int, actorID uuid.UUID) (*appointment.Appointment, error) {
	now := s.clock.Now()
	if err := validateBooking(startsAt, durationMins, now); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsLive(now) {
		if a.HoldExpired(now) {
			return nil, appointment.ErrReservationExpired
		}
		return nil, appointment.ErrInvalidStatusTransition
	}

	s.locks.Lock(a.DoctorID)
	defer s.locks.Unlock(a.DoctorID)

	span := interval.FromDuration(startsAt, durationMins)
	if err := s.checkConflicts(ctx, a.DoctorID, span, now, &a.ID); err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.cfg.HoldTTL)
	replacement := &appointment.Appointment{
		DoctorID:             a.DoctorID,
		PatientID:            a.PatientID,
		StartsAt:             startsAt,
		DurationMins:         durationMins,
		Status:               appointment.StatusReserved,
		ReservationExpiresAt: &expiresAt,
		CreatedBy:            actorID,
	}

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		prev := a.Status
		if err := a.Cancel("rescheduled", now); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, a, prev); err != nil {
			return fmt.Errorf("cancelling original appointment: %w", err)
		}
		if err := s.repo.Create(ctx, replacement); err != nil {
			return fmt.Errorf("creating replacement hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, a, "cancelled", actorID, "rescheduled")
	s.afterChange(ctx, replacement, "hold_created", actorID, fmt.Sprintf("rescheduled from %s", id))
	return replacement, nil
}

func (s *ReservationService) GetAppointment(ctx context.Context, id uuid.UUID, callerPatientID *uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Patients can only see their own appointments.
	if callerPatientID != nil && *callerPatientID != a.PatientID {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListDoctorAppointments returns the doctor's appointments starting in
// [from, to), any status.
func (s *ReservationService) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*appointment.Appointment, error) {
	if !to.After(from) {
		return nil, &ValidationError{Fields: []string{"to must be after from"}}
	}
	return s.repo.ListByDoctor(ctx, doctorID, interval.New(from, to))
}

// GetAppointmentHistory returns the appointment's lifecycle events in order.
// Entries written through the async log may lag the transition that produced
// them by a moment.
func (s *ReservationService) GetAppointmentHistory(ctx context.Context, id uuid.UUID, callerPatientID *uuid.UUID) ([]*appointment.Event, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerPatientID != nil && *callerPatientID != a.PatientID {
		return nil, ErrForbidden
	}
	return s.events.ListByAppointment(ctx, a.ID)
}

func (s *ReservationService) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*appointment.Appointment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *ReservationService) checkConflicts(ctx context.Context, doctorID uuid.UUID, span interval.Interval, now time.Time, excludeID *uuid.UUID) error {
	live, err := s.repo.FindLive(ctx, doctorID, span, now, excludeID)
	if err != nil {
		return fmt.Errorf("checking conflicts: %w", err)
	}
	if len(live) == 0 {
		return nil
	}

	s.metrics.BookingConflictsTotal.Inc()
	conflicts := make([]interval.Interval, len(live))
	for i, a := range live {
		conflicts[i] = a.Interval()
	}
	return &appointment.ConflictError{Conflicts: conflicts}
}

func (s *ReservationService) afterChange(ctx context.Context, a *appointment.Appointment, action string, actorID uuid.UUID, detail string) {
	s.slotCache.InvalidateDay(ctx, a.DoctorID, a.StartsAt)

	actor := actorID
	s.recorder.Record(ctx, appointment.Event{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Action:        action,
		ActorID:       &actor,
		Detail:        detail,
	})

	s.log.Info("appointment "+action,
		zap.String("appointment_id", a.ID.String()),
		zap.String("doctor_id", a.DoctorID.String()),
		zap.Time("starts_at", a.StartsAt),
	)
}

func validateBooking(startsAt time.Time, durationMins int, now time.Time) error {
	if startsAt.Before(now) {
		return appointment.ErrScheduledInPast
	}
	if durationMins < minDurationMins || durationMins > maxDurationMins {
		return appointment.ErrInvalidDuration
	}
	return nil
}
