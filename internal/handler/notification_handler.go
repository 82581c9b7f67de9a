package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cura-emr/scheduling-api/internal/service"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
	"github.com/cura-emr/scheduling-api/pkg/response"
)

// NotificationHandler exposes the notification feed.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs handler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary List a user's notifications, newest first
// @Tags Notifications
// @Produce json
// @Param user_id query int true "User ID"
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	organizationID, err := organizationFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, convErr := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if convErr != nil || userID <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "user_id query parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.notifications.ListForUser(c.Request.Context(), organizationID, userID, limit)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications"))
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}
