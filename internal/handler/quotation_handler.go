package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
	"github.com/noah-isme/ooak-quotation-api/internal/middleware"
	"github.com/noah-isme/ooak-quotation-api/internal/models"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
	"github.com/noah-isme/ooak-quotation-api/pkg/response"
)

type quotationService interface {
	Create(ctx context.Context, req dto.CreateQuotationRequest, actor *models.JWTClaims) (*models.Quotation, error)
	Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Quotation, error)
	List(ctx context.Context, query dto.QuotationQuery, actor *models.JWTClaims) ([]models.Quotation, *models.Pagination, error)
	ApplyEvent(ctx context.Context, id int64, req dto.WorkflowEventRequest, actor *models.JWTClaims) (*dto.TransitionResult, error)
	Approvals(ctx context.Context, id int64, actor *models.JWTClaims) ([]models.QuotationApproval, error)
	Delete(ctx context.Context, id int64, actor *models.JWTClaims) error
	Summary(ctx context.Context) (*dto.WorkflowSummary, bool, error)
}

// QuotationHandler exposes quotation CRUD and workflow endpoints.
type QuotationHandler struct {
	service quotationService
}

// NewQuotationHandler constructs the handler.
func NewQuotationHandler(service quotationService) *QuotationHandler {
	return &QuotationHandler{service: service}
}

// List godoc
// @Summary List quotations
// @Tags Quotations
// @Produce json
// @Param workflow_status query string false "Comma separated workflow statuses"
// @Param search query string false "Quotation number or client name"
// @Param mine query bool false "Only quotations created by or assigned to the caller"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /quotations [get]
func (h *QuotationHandler) List(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.QuotationQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Mine:     boolQuery(c, "mine"),
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
	}
	if raw := c.Query("workflow_status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				query.WorkflowStatuses = append(query.WorkflowStatuses, models.WorkflowStatus(strings.ToLower(trimmed)))
			}
		}
	}
	items, pagination, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary Draft a quotation
// @Tags Quotations
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuotationRequest true "Quotation payload"
// @Success 201 {object} response.Envelope
// @Router /quotations [post]
func (h *QuotationHandler) Create(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req dto.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid quotation payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	quotation, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quotation)
}

// Get godoc
// @Summary Get quotation detail
// @Tags Quotations
// @Produce json
// @Param id path int true "Quotation ID"
// @Success 200 {object} response.Envelope
// @Router /quotations/{id} [get]
func (h *QuotationHandler) Get(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, err := quotationIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	quotation, err := h.service.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quotation, nil)
}

// Delete godoc
// @Summary Delete a quotation
// @Tags Quotations
// @Param id path int true "Quotation ID"
// @Success 204
// @Router /quotations/{id} [delete]
func (h *QuotationHandler) Delete(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, err := quotationIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ApplyEvent godoc
// @Summary Apply a workflow event to a quotation
// @Tags Quotations
// @Accept json
// @Produce json
// @Param id path int true "Quotation ID"
// @Param payload body dto.WorkflowEventRequest true "Workflow event"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quotations/{id}/events [post]
func (h *QuotationHandler) ApplyEvent(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, err := quotationIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.WorkflowEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid workflow event payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.ApplyEvent(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approvals godoc
// @Summary List approval decisions for a quotation
// @Tags Quotations
// @Produce json
// @Param id path int true "Quotation ID"
// @Success 200 {object} response.Envelope
// @Router /quotations/{id}/approvals [get]
func (h *QuotationHandler) Approvals(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, err := quotationIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	approvals, err := h.service.Approvals(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// Summary godoc
// @Summary Pipeline summary per workflow status
// @Tags Quotations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /quotations/summary [get]
func (h *QuotationHandler) Summary(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	summary, hit, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

func (h *QuotationHandler) ready(c *gin.Context) bool {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "quotation service not configured"))
		return false
	}
	return true
}
