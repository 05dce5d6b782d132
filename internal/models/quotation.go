package models

import "time"

// WorkflowStatus is the fine-grained stage of a quotation's lifecycle.
type WorkflowStatus string

const (
	WorkflowDraft                     WorkflowStatus = "draft"
	WorkflowPendingClientConfirmation WorkflowStatus = "pending_client_confirmation"
	WorkflowPendingApproval           WorkflowStatus = "pending_approval"
	WorkflowApproved                  WorkflowStatus = "approved"
	WorkflowPaymentReceived           WorkflowStatus = "payment_received"
	WorkflowConfirmed                 WorkflowStatus = "confirmed"
	WorkflowRejected                  WorkflowStatus = "rejected"
	WorkflowCancelled                 WorkflowStatus = "cancelled"
)

// WorkflowStatuses lists every known stage in lifecycle order.
var WorkflowStatuses = []WorkflowStatus{
	WorkflowDraft,
	WorkflowPendingClientConfirmation,
	WorkflowPendingApproval,
	WorkflowApproved,
	WorkflowPaymentReceived,
	WorkflowConfirmed,
	WorkflowRejected,
	WorkflowCancelled,
}

// TerminalWorkflowStatuses never transition further and are never scanned for overdue.
var TerminalWorkflowStatuses = []WorkflowStatus{WorkflowConfirmed, WorkflowRejected, WorkflowCancelled}

// Valid reports whether s is one of the known stages.
func (s WorkflowStatus) Valid() bool {
	for _, known := range WorkflowStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s WorkflowStatus) Terminal() bool {
	for _, terminal := range TerminalWorkflowStatuses {
		if s == terminal {
			return true
		}
	}
	return false
}

// ParseWorkflowStatus converts raw input into a known stage.
func ParseWorkflowStatus(raw string) (WorkflowStatus, bool) {
	s := WorkflowStatus(raw)
	return s, s.Valid()
}

// QuotationStatus is the coarse status shown in list views.
type QuotationStatus string

const (
	QuotationStatusDraft           QuotationStatus = "draft"
	QuotationStatusPendingApproval QuotationStatus = "pending_approval"
	QuotationStatusApproved        QuotationStatus = "approved"
	QuotationStatusRejected        QuotationStatus = "rejected"
	QuotationStatusCancelled       QuotationStatus = "cancelled"
	QuotationStatusConfirmed       QuotationStatus = "confirmed"
)

// WorkflowEvent is an incoming action against a quotation.
type WorkflowEvent string

const (
	EventSubmittedForApproval WorkflowEvent = "submitted_for_approval"
	EventApproved             WorkflowEvent = "approved"
	EventRejected             WorkflowEvent = "rejected"
	EventPaymentReceived      WorkflowEvent = "payment_received"
	EventClientConfirmed      WorkflowEvent = "client_confirmed"
	EventCancelled            WorkflowEvent = "cancelled"
)

// WorkflowEvents lists every accepted event.
var WorkflowEvents = []WorkflowEvent{
	EventSubmittedForApproval,
	EventApproved,
	EventRejected,
	EventPaymentReceived,
	EventClientConfirmed,
	EventCancelled,
}

// Valid reports whether e is a known event.
func (e WorkflowEvent) Valid() bool {
	for _, known := range WorkflowEvents {
		if e == known {
			return true
		}
	}
	return false
}

// WorkflowState is the pair of statuses a transition operates on.
type WorkflowState struct {
	Status         QuotationStatus `json:"status"`
	WorkflowStatus WorkflowStatus  `json:"workflow_status"`
}

// Quotation is a persisted row of the quotations table.
type Quotation struct {
	ID                           int64           `db:"id" json:"id"`
	QuotationNumber              string          `db:"quotation_number" json:"quotation_number"`
	Slug                         string          `db:"slug" json:"slug"`
	ClientName                   string          `db:"client_name" json:"client_name"`
	ClientEmail                  *string         `db:"client_email" json:"client_email,omitempty"`
	ClientPhone                  *string         `db:"client_phone" json:"client_phone,omitempty"`
	TotalAmount                  float64         `db:"total_amount" json:"total_amount"`
	DefaultPackage               *string         `db:"default_package" json:"default_package,omitempty"`
	Status                       QuotationStatus `db:"status" json:"status"`
	WorkflowStatus               WorkflowStatus  `db:"workflow_status" json:"workflow_status"`
	ClientVerbalConfirmationDate *time.Time      `db:"client_verbal_confirmation_date" json:"client_verbal_confirmation_date,omitempty"`
	PaymentReceivedDate          *time.Time      `db:"payment_received_date" json:"payment_received_date,omitempty"`
	PaymentAmount                *float64        `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentReference             *string         `db:"payment_reference" json:"payment_reference,omitempty"`
	CreatedBy                    string          `db:"created_by" json:"created_by"`
	AssignedTo                   *string         `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt                    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                    time.Time       `db:"updated_at" json:"updated_at"`
}

// State returns the quotation's current workflow pair.
func (q *Quotation) State() WorkflowState {
	return WorkflowState{Status: q.Status, WorkflowStatus: q.WorkflowStatus}
}

// Owner returns the employee responsible for follow-up: the assignee, else the creator.
func (q *Quotation) Owner() string {
	if q.AssignedTo != nil && *q.AssignedTo != "" {
		return *q.AssignedTo
	}
	return q.CreatedBy
}

// QuotationFilter constrains listing queries.
type QuotationFilter struct {
	WorkflowStatuses []WorkflowStatus
	CreatedBy        string
	AssignedTo       string
	Search           string
	Page             int
	PageSize         int
}

// ApprovalStatus is the decision recorded on a quotation approval row.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// QuotationApproval records an approval request or decision for a quotation.
type QuotationApproval struct {
	ID             int64          `db:"id" json:"id"`
	QuotationID    int64          `db:"quotation_id" json:"quotation_id"`
	ApproverUserID *string        `db:"approver_user_id" json:"approver_user_id,omitempty"`
	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	ApprovalDate   *time.Time     `db:"approval_date" json:"approval_date,omitempty"`
	Comments       *string        `db:"comments" json:"comments,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// WorkflowStageSummary aggregates quotations sharing a workflow status.
type WorkflowStageSummary struct {
	WorkflowStatus WorkflowStatus `db:"workflow_status" json:"workflow_status"`
	Count          int            `db:"count" json:"count"`
	TotalAmount    float64        `db:"total_amount" json:"total_amount"`
}
