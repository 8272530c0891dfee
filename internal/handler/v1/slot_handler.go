package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docbook/docbook/internal/service"
)

type SlotHandler struct {
	svc *service.SlotService
}

func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{svc: svc}
}

// GetSlots serves the bookable grid for a single date (?date=) or an
// inclusive range (?from=&to=).
func (h *SlotHandler) GetSlots(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorID")
	if !ok {
		return
	}

	if c.Query("date") != "" {
		date, ok := parseDate(c, "date")
		if !ok {
			return
		}
		slots, err := h.svc.GetSlots(c.Request.Context(), doctorID, date)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		respondOK(c, slotsPayload(date, slots))
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

	slots, err := h.svc.GetSlotsRange(c.Request.Context(), doctorID, from, to)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse[any]{Data: gin.H{
		"from":  from.Format("2006-01-02"),
		"to":    to.Format("2006-01-02"),
		"slots": slots,
	}})
}

func slotsPayload(date time.Time, slots any) gin.H {
	return gin.H{
		"date":  date.Format("2006-01-02"),
		"slots": slots,
	}
}
