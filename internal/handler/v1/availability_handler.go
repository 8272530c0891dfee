package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/availability"
	"github.com/docbook/docbook/internal/service"
)

type AvailabilityHandler struct {
	svc *service.AvailabilityService
}

func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc}
}

type ruleRequest struct {
	Kind             string  `json:"kind" binding:"required,oneof=weekly date_override"`
	DayOfWeek        *int    `json:"day_of_week" binding:"omitempty,min=0,max=6"`
	Date             *string `json:"date"`
	StartTime        string  `json:"start_time" binding:"required"`
	EndTime          string  `json:"end_time" binding:"required"`
	SlotDurationMins int     `json:"slot_duration_mins"`
	IsAvailable      *bool   `json:"is_available"`
}

func (req *ruleRequest) toRule(doctorID uuid.UUID) (*availability.Rule, error) {
	startTime, err := availability.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, err
	}
	endTime, err := availability.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, err
	}

	var recurrence availability.Recurrence
	switch availability.RecurrenceKind(req.Kind) {
	case availability.KindWeekly:
		if req.DayOfWeek == nil {
			return nil, availability.ErrInvalidRecurrence
		}
		recurrence = availability.Weekly(time.Weekday(*req.DayOfWeek))
	case availability.KindDateOverride:
		if req.Date == nil {
			return nil, availability.ErrInvalidRecurrence
		}
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return nil, availability.ErrInvalidRecurrence
		}
		recurrence = availability.OnDate(date)
	}

	slotMins := req.SlotDurationMins
	if slotMins == 0 {
		slotMins = 30
	}
	isAvailable := true
	if req.IsAvailable != nil {
		isAvailable = *req.IsAvailable
	}

	return &availability.Rule{
		DoctorID:         doctorID,
		Recurrence:       recurrence,
		StartTime:        startTime,
		EndTime:          endTime,
		SlotDurationMins: slotMins,
		IsAvailable:      isAvailable,
	}, nil
}

func (h *AvailabilityHandler) DefineRule(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorID")
	if !ok {
		return
	}

	var req ruleRequest
	if !bindJSON(c, &req) {
		return
	}

	rule, err := req.toRule(doctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	created, err := h.svc.DefineRule(c.Request.Context(), rule)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, created)
}

func (h *AvailabilityHandler) ListRules(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorID")
	if !ok {
		return
	}

	rules, err := h.svc.ListRules(c.Request.Context(), doctorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rules)
}

func (h *AvailabilityHandler) ReplaceRules(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorID")
	if !ok {
		return
	}

	var reqs []ruleRequest
	if !bindJSON(c, &reqs) {
		return
	}

	rules := make([]*availability.Rule, 0, len(reqs))
	for i := range reqs {
		rule, err := reqs[i].toRule(doctorID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		rules = append(rules, rule)
	}

	if err := h.svc.ReplaceRules(c.Request.Context(), doctorID, rules); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rules)
}

func (h *AvailabilityHandler) RemoveRule(c *gin.Context) {
	id, ok := parseUUID(c, "ruleID")
	if !ok {
		return
	}

	if err := h.svc.RemoveRule(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": id})
}
