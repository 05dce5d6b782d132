package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationType tags what a notification is about.
type NotificationType string

const (
	NotificationOverdue         NotificationType = "overdue"
	NotificationApprovalNeeded  NotificationType = "approval_needed"
	NotificationPaymentReceived NotificationType = "payment_received"
)

// NotificationPriority orders notifications in the inbox.
type NotificationPriority string

const (
	PriorityUrgent NotificationPriority = "urgent"
	PriorityHigh   NotificationPriority = "high"
	PriorityMedium NotificationPriority = "medium"
	PriorityLow    NotificationPriority = "low"
)

// NotificationRequest is produced by the workflow engine and handed to a sink.
// The engine does not track it after handoff.
type NotificationRequest struct {
	Recipient   string                 `json:"recipient"`
	Type        NotificationType       `json:"type"`
	Priority    NotificationPriority   `json:"priority"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	QuotationID *int64                 `json:"quotation_id,omitempty"`
	ActionURL   string                 `json:"action_url,omitempty"`
	ActionLabel string                 `json:"action_label,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Notification is a persisted row of the notifications table.
type Notification struct {
	ID          string               `db:"id" json:"id"`
	UserID      string               `db:"user_id" json:"user_id"`
	Type        NotificationType     `db:"type" json:"type"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	Title       string               `db:"title" json:"title"`
	Message     string               `db:"message" json:"message"`
	QuotationID *int64               `db:"quotation_id" json:"quotation_id,omitempty"`
	ActionURL   *string              `db:"action_url" json:"action_url,omitempty"`
	ActionLabel *string              `db:"action_label" json:"action_label,omitempty"`
	Metadata    types.JSONText       `db:"metadata" json:"metadata,omitempty"`
	IsRead      bool                 `db:"is_read" json:"is_read"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	ExpiresAt   *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
}

// NotificationFilter constrains inbox listings.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
