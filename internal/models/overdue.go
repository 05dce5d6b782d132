package models

import "time"

// OverdueQuotation is one hit of an overdue scan.
type OverdueQuotation struct {
	QuotationID     int64          `json:"quotation_id"`
	QuotationNumber string         `json:"quotation_number"`
	WorkflowStatus  WorkflowStatus `json:"workflow_status"`
	DaysOverdue     int            `json:"days_overdue"`
	ThresholdDays   int            `json:"threshold_days"`
	StageEnteredAt  time.Time      `json:"stage_entered_at"`
	ClientName      string         `json:"client_name"`
	TotalAmount     float64        `json:"total_amount"`
	Recipient       string         `json:"recipient,omitempty"`
}
