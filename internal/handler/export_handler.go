package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cura-emr/scheduling-api/internal/dto"
	"github.com/cura-emr/scheduling-api/internal/service"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
	"github.com/cura-emr/scheduling-api/pkg/response"
)

// ExportHandler exposes day sheet export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// DaySheet godoc
// @Summary Export a provider's day sheet
// @Tags Exports
// @Produce json
// @Param id path int true "Provider ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {object} response.Envelope
// @Router /providers/{id}/daysheet [post]
func (h *ExportHandler) DaySheet(c *gin.Context) {
	organizationID, err := organizationFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
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
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.exports.GenerateDaySheet(c.Request.Context(), organizationID, providerID, date, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ExportResponse{
		FileName:  result.FileName,
		Format:    string(result.Format),
		SizeBytes: int64(result.SizeBytes),
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt.Format(time.RFC3339),
	}, nil)
}

// Download godoc
// @Summary Download an exported file by signed token
// @Tags Exports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.exports.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "download link is invalid or expired"))
		return
	}

	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exported file no longer exists"))
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read exported file"))
		return
	}

	contentType := "text/csv"
	if filepath.Ext(relPath) == ".pdf" {
		contentType = "application/pdf"
	}
	c.DataFromReader(http.StatusOK, stat.Size(), contentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%s", strconv.Quote(filepath.Base(relPath))),
	})
}
