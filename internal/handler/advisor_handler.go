package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cura-emr/scheduling-api/internal/dto"
	"github.com/cura-emr/scheduling-api/internal/service"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
	"github.com/cura-emr/scheduling-api/pkg/response"
)

// AdvisorHandler exposes the recommendation endpoints.
type AdvisorHandler struct {
	advisor *service.AdvisorService
}

// NewAdvisorHandler constructs handler.
func NewAdvisorHandler(advisor *service.AdvisorService) *AdvisorHandler {
	return &AdvisorHandler{advisor: advisor}
}

// Recommend godoc
// @Summary Recommend appointment slots for a provider and date
// @Tags Advisor
// @Produce json
// @Param providerId query int true "Provider ID"
// @Param date query string true "Preferred date (YYYY-MM-DD)"
// @Param duration query int true "Duration in minutes"
// @Param patientId query int false "Patient ID for preference scoring"
// @Success 200 {object} response.Envelope
// @Router /advisor/slots [get]
func (h *AdvisorHandler) Recommend(c *gin.Context) {
	providerID, err := strconv.ParseInt(c.Query("providerId"), 10, 64)
	if err != nil || providerID <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "providerId query parameter is required"))
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration query parameter is required"))
		return
	}
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	patientID, _ := strconv.ParseInt(c.Query("patientId"), 10, 64)

	slots, err := h.advisor.FindOptimalTimeSlots(c.Request.Context(), providerID, duration, date, patientID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Conflicts godoc
// @Summary Dry-run conflict detection for a draft booking
// @Tags Advisor
// @Accept json
// @Produce json
// @Param payload body service.BookingRequest true "Draft booking"
// @Success 200 {object} response.Envelope
// @Router /advisor/conflicts [post]
func (h *AdvisorHandler) Conflicts(c *gin.Context) {
	orgID, err := organizationFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.OrganizationID = orgID

	conflicts, err := h.advisor.DetectSchedulingConflicts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil, map[string]interface{}{"conflict_count": len(conflicts)})
}

// AutoReschedule godoc
// @Summary Automatically move an appointment to the next recommendable slot
// @Tags Advisor
// @Accept json
// @Produce json
// @Param id path int true "Appointment ID"
// @Param payload body dto.RescheduleRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/auto-reschedule [post]
func (h *AdvisorHandler) AutoReschedule(c *gin.Context) {
	orgID, err := organizationFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RescheduleRequest
	_ = c.ShouldBindJSON(&req)

	slot, err := h.advisor.AutoReschedule(c.Request.Context(), id, orgID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AutoRescheduleResponse{Rescheduled: slot != nil, Slot: slot}, nil)
}
