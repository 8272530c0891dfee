package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/service"
	"github.com/docbook/docbook/pkg/auth"
)

type AppointmentHandler struct {
	svc *service.ReservationService
	cfg config.ReservationConfig
}

func NewAppointmentHandler(svc *service.ReservationService, cfg config.ReservationConfig) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, cfg: cfg}
}

type bookingRequest struct {
	DoctorID     uuid.UUID `json:"doctor_id" binding:"required"`
	PatientID    uuid.UUID `json:"patient_id" binding:"required"`
	StartsAt     time.Time `json:"starts_at" binding:"required"`
	DurationMins int       `json:"duration_mins" binding:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type rescheduleRequest struct {
	StartsAt     time.Time `json:"starts_at" binding:"required"`
	DurationMins int       `json:"duration_mins" binding:"required"`
}

// Hold places a reservation on a slot. Staff get a longer TTL since they are
// typically filling in details while a patient waits on the phone.
func (h *AppointmentHandler) Hold(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		respondServiceError(c, service.ErrForbidden)
		return
	}

	var req bookingRequest
	if !bindJSON(c, &req) {
		return
	}

	// Patients can only book for themselves.
	if claims.Role == auth.RolePatient && (claims.PatientID == nil || *claims.PatientID != req.PatientID) {
		respondServiceError(c, service.ErrForbidden)
		return
	}

	cmd := &appointment.HoldCommand{
		DoctorID:     req.DoctorID,
		PatientID:    req.PatientID,
		StartsAt:     req.StartsAt,
		DurationMins: req.DurationMins,
		CreatedBy:    claims.UserID,
	}
	if claims.Role == auth.RoleStaff || claims.Role == auth.RoleAdmin {
		cmd.TTL = h.cfg.StaffHoldTTL
	}

	a, err := h.svc.Hold(c.Request.Context(), cmd)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, a)
}

// Schedule books directly without a hold phase.
func (h *AppointmentHandler) Schedule(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		respondServiceError(c, service.ErrForbidden)
		return
	}

	var req bookingRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Schedule(c.Request.Context(), &appointment.ScheduleCommand{
		DoctorID:     req.DoctorID,
		PatientID:    req.PatientID,
		StartsAt:     req.StartsAt,
		DurationMins: req.DurationMins,
		CreatedBy:    claims.UserID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, a)
}

func (h *AppointmentHandler) Confirm(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	a, err := h.svc.Confirm(c.Request.Context(), id, claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	var req cancelRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Cancel(c.Request.Context(), id, &appointment.CancelCommand{
		Reason:      req.Reason,
		CancelledBy: claims.UserID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	a, err := h.svc.Complete(c.Request.Context(), id, claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	a, err := h.svc.MarkNoShow(c.Request.Context(), id, claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Reschedule(c.Request.Context(), id, req.StartsAt, req.DurationMins, claims.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	var scope *uuid.UUID
	if claims != nil && claims.Role == auth.RolePatient {
		if claims.PatientID == nil {
			respondServiceError(c, service.ErrForbidden)
			return
		}
		scope = claims.PatientID
	}

	a, err := h.svc.GetAppointment(c.Request.Context(), id, scope)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

// History returns the appointment's lifecycle events, oldest first.
func (h *AppointmentHandler) History(c *gin.Context) {
	id, ok := parseUUID(c, "appointmentID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	var scope *uuid.UUID
	if claims != nil && claims.Role == auth.RolePatient {
		if claims.PatientID == nil {
			respondServiceError(c, service.ErrForbidden)
			return
		}
		scope = claims.PatientID
	}

	events, err := h.svc.GetAppointmentHistory(c.Request.Context(), id, scope)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, events)
}

// ListForDoctor serves the doctor's calendar between ?from= and ?to=
// (exclusive), any status.
func (h *AppointmentHandler) ListForDoctor(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorID")
	if !ok {
		return
	}
	from, ok := parseDate(c, "from")
	if !ok {
		return
	}
	to, ok := parseDate(c, "to")
	if !ok {
		return
	}

	appts, err := h.svc.ListDoctorAppointments(c.Request.Context(), doctorID, from, to)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, appts)
}

func (h *AppointmentHandler) ListForPatient(c *gin.Context) {
	patientID, ok := parseUUID(c, "patientID")
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFromContext(c)

	if claims != nil && claims.Role == auth.RolePatient {
		if claims.PatientID == nil || *claims.PatientID != patientID {
			respondServiceError(c, service.ErrForbidden)
			return
		}
	}

	limit := parseQueryInt(c, "limit", 20)
	offset := parseQueryInt(c, "offset", 0)

	appts, err := h.svc.ListPatientAppointments(c.Request.Context(), patientID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, appts)
}
