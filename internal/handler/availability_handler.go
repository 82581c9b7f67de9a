package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cura-emr/scheduling-api/internal/service"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
	"github.com/cura-emr/scheduling-api/pkg/response"
)

// AvailabilityHandler exposes provider availability endpoints.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(availability *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// Day godoc
// @Summary Get a provider's slot availability for a date
// @Tags Availability
// @Produce json
// @Param id path int true "Provider ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /providers/{id}/availability [get]
func (h *AvailabilityHandler) Day(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}

	day, err := h.availability.DayAvailability(c.Request.Context(), providerID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, day, nil)
}

// ListProviders godoc
// @Summary List providers able to take a booking on a date
// @Tags Availability
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start query string false "Start slot (HH:MM)"
// @Param duration query int false "Duration in minutes, required with start"
// @Success 200 {object} response.Envelope
// @Router /availability/providers [get]
func (h *AvailabilityHandler) ListProviders(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}

	start := c.Query("start")
	duration := 0
	if start != "" {
		var convErr error
		duration, convErr = strconv.Atoi(c.Query("duration"))
		if convErr != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration query parameter is required with start"))
			return
		}
	}

	providers, err := h.availability.AvailableProviders(c.Request.Context(), date, start, duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, providers, nil)
}

// Check godoc
// @Summary Check contiguous free time from a start slot
// @Tags Availability
// @Produce json
// @Param id path int true "Provider ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start query string true "Start slot (HH:MM)"
// @Param duration query int true "Duration in minutes"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/availability/check [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	providerID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	date := c.Query("date")
	start := c.Query("start")
	duration, convErr := strconv.Atoi(c.Query("duration"))
	if date == "" || start == "" || convErr != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date, start and duration query parameters are required"))
		return
	}

	result, err := h.availability.CheckSufficientTime(c.Request.Context(), providerID, date, start, duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
