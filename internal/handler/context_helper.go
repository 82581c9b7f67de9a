package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

// organizationFromContext reads the tenant scope from the X-Organization-ID
// header. Identity and authorization live at the gateway; this service only
// needs the tenant boundary.
func organizationFromContext(c *gin.Context) (int64, error) {
	raw := c.GetHeader("X-Organization-ID")
	if raw == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "missing X-Organization-ID header")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid X-Organization-ID header")
	}
	return id, nil
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" parameter")
	}
	return id, nil
}
