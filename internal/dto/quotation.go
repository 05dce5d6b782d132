package dto

import (
	"time"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

// CreateQuotationRequest payload for drafting a new quotation.
type CreateQuotationRequest struct {
	QuotationNumber string  `json:"quotation_number" validate:"required,max=64"`
	Slug            string  `json:"slug" validate:"omitempty,max=128"`
	ClientName      string  `json:"client_name" validate:"required,max=255"`
	ClientEmail     *string `json:"client_email" validate:"omitempty,email"`
	ClientPhone     *string `json:"client_phone" validate:"omitempty,max=32"`
	TotalAmount     float64 `json:"total_amount" validate:"gte=0"`
	DefaultPackage  *string `json:"default_package"`
	AssignedTo      *string `json:"assigned_to"`
}

// WorkflowEventRequest applies an event to a quotation.
type WorkflowEventRequest struct {
	Event            models.WorkflowEvent `json:"event" validate:"required,workflow_event"`
	Comments         string               `json:"comments" validate:"max=2000"`
	PaymentAmount    *float64             `json:"payment_amount" validate:"omitempty,gt=0"`
	PaymentReference string               `json:"payment_reference" validate:"max=128"`
}

// QuotationQuery mirrors supported listing filters.
type QuotationQuery struct {
	WorkflowStatuses []models.WorkflowStatus
	Search           string
	Mine             bool
	Page             int
	PageSize         int
}

// TransitionResult describes an applied workflow event.
type TransitionResult struct {
	Quotation *models.Quotation    `json:"quotation"`
	Event     models.WorkflowEvent `json:"event"`
	From      models.WorkflowState `json:"from"`
	To        models.WorkflowState `json:"to"`
}

// WorkflowSummary is the pipeline view of all quotations.
type WorkflowSummary struct {
	Stages      []models.WorkflowStageSummary `json:"stages"`
	GeneratedAt time.Time                     `json:"generated_at"`
}
