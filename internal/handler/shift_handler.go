package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cura-emr/scheduling-api/internal/service"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
	"github.com/cura-emr/scheduling-api/pkg/response"
)

// ShiftHandler manages provider shift endpoints.
type ShiftHandler struct {
	shifts *service.ShiftService
}

// NewShiftHandler constructs handler.
func NewShiftHandler(shifts *service.ShiftService) *ShiftHandler {
	return &ShiftHandler{shifts: shifts}
}

// ListCustom godoc
// @Summary List custom shifts in a date range
// @Tags Shifts
// @Produce json
// @Param id path int true "Provider ID"
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/shifts [get]
func (h *ShiftHandler) ListCustom(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from and to query parameters are required"))
		return
	}

	shifts, err := h.shifts.ListCustomShifts(c.Request.Context(), providerID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shifts, nil)
}

// UpsertCustom godoc
// @Summary Create or replace a custom shift
// @Tags Shifts
// @Accept json
// @Produce json
// @Param id path int true "Provider ID"
// @Param payload body service.UpsertCustomShiftRequest true "Shift payload"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/shifts [put]
func (h *ShiftHandler) UpsertCustom(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.UpsertCustomShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ProviderID = providerID

	shift, err := h.shifts.UpsertCustomShift(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// DeleteCustom godoc
// @Summary Delete a custom shift, restoring the default for that date
// @Tags Shifts
// @Produce json
// @Param id path int true "Provider ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Router /providers/{id}/shifts/{date} [delete]
func (h *ShiftHandler) DeleteCustom(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.shifts.DeleteCustomShift(c.Request.Context(), providerID, c.Param("date")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetDefault godoc
// @Summary Get a provider's recurring weekly shift
// @Tags Shifts
// @Produce json
// @Param id path int true "Provider ID"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/shifts/default [get]
func (h *ShiftHandler) GetDefault(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	shift, err := h.shifts.GetDefaultShift(c.Request.Context(), providerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// UpsertDefault godoc
// @Summary Create or replace a provider's recurring weekly shift
// @Tags Shifts
// @Accept json
// @Produce json
// @Param id path int true "Provider ID"
// @Param payload body service.UpsertDefaultShiftRequest true "Shift payload"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/shifts/default [put]
func (h *ShiftHandler) UpsertDefault(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req service.UpsertDefaultShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ProviderID = providerID

	shift, err := h.shifts.UpsertDefaultShift(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}
