package dto

import (
	"time"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

// DeliveryFailure records a notification that the sink rejected.
type DeliveryFailure struct {
	QuotationID int64  `json:"quotation_id"`
	Recipient   string `json:"recipient"`
	Error       string `json:"error"`
}

// OverdueScanReport summarises one scan run including notification fan-out.
type OverdueScanReport struct {
	RanAt           time.Time                 `json:"ran_at"`
	Overdue         []models.OverdueQuotation `json:"overdue"`
	NotificationIDs []string                  `json:"notification_ids"`
	Dispatched      int                       `json:"dispatched"`
	Failed          int                       `json:"failed"`
	Failures        []DeliveryFailure         `json:"failures,omitempty"`
	ExpiredCleaned  int64                     `json:"expired_cleaned"`
	Partial         bool                      `json:"partial"`
	DurationMillis  int64                     `json:"duration_ms"`
}

// NotificationQuery mirrors inbox listing filters.
type NotificationQuery struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}
