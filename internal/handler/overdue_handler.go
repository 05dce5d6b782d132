package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
	"github.com/noah-isme/ooak-quotation-api/internal/middleware"
	"github.com/noah-isme/ooak-quotation-api/internal/models"
	"github.com/noah-isme/ooak-quotation-api/internal/service"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
	"github.com/noah-isme/ooak-quotation-api/pkg/response"
)

type overdueService interface {
	Scan(ctx context.Context, now time.Time) ([]models.OverdueQuotation, error)
	Run(ctx context.Context, now time.Time) (*dto.OverdueScanReport, error)
}

type overdueExporter interface {
	OverdueReport(ctx context.Context, now time.Time, format service.ExportFormat) (*service.ExportResult, error)
}

// OverdueHandler exposes the overdue scan and its exports.
type OverdueHandler struct {
	service  overdueService
	exporter overdueExporter
	now      func() time.Time
}

// NewOverdueHandler constructs the handler.
func NewOverdueHandler(service overdueService, exporter overdueExporter) *OverdueHandler {
	return &OverdueHandler{
		service:  service,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List godoc
// @Summary Dry-run the overdue scan
// @Description Evaluates every non-terminal quotation without sending notifications.
// @Tags Workflow
// @Produce json
// @Param as_of query string false "Evaluation instant (RFC3339), defaults to now"
// @Success 200 {object} response.Envelope
// @Router /workflow/overdue [get]
func (h *OverdueHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "overdue service not configured"))
		return
	}
	now, err := h.asOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.Scan(c.Request.Context(), now)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.OverdueQuotation{}
	}
	middleware.SetMeta(c, "as_of", now)
	middleware.SetMeta(c, "count", len(items))
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Scan godoc
// @Summary Run the overdue scan
// @Description Scans, notifies one recipient per overdue quotation and cleans up expired notifications.
// @Tags Workflow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflow/overdue/scan [post]
func (h *OverdueHandler) Scan(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "overdue service not configured"))
		return
	}
	report, err := h.service.Run(c.Request.Context(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export the overdue report
// @Tags Workflow
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /workflow/overdue/export [get]
func (h *OverdueHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	format := service.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(service.ExportFormatCSV)))))
	result, err := h.exporter.OverdueReport(c.Request.Context(), h.now(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}

func (h *OverdueHandler) asOf(c *gin.Context) (time.Time, error) {
	raw := strings.TrimSpace(c.Query("as_of"))
	if raw == "" {
		return h.now(), nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "as_of must be RFC3339")
	}
	return parsed.UTC(), nil
}
