package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

// stageThresholds maps each scanned workflow status to the number of days a
// quotation may sit in it before it counts as overdue.
var stageThresholds = map[models.WorkflowStatus]int{
	models.WorkflowDraft:                     5,
	models.WorkflowPendingClientConfirmation: 3,
	models.WorkflowPendingApproval:           2,
	models.WorkflowApproved:                  7,
	models.WorkflowPaymentReceived:           1,
}

// ThresholdFor returns the overdue threshold in days for status. Statuses
// without a threshold, terminal or unknown, report false and are never overdue.
func ThresholdFor(status models.WorkflowStatus) (int, bool) {
	days, ok := stageThresholds[status]
	return days, ok
}

// ErrInvalidTransition is matched by every InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// InvalidTransitionError reports an event that is not accepted in the current stage.
type InvalidTransitionError struct {
	Stage models.WorkflowStatus
	Event models.WorkflowEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %q is not allowed in workflow stage %q", e.Event, e.Stage)
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Transition computes the next (status, workflow_status) pair for event. It has
// no side effects; an event that already took effect is rejected like any other
// invalid event.
func Transition(current models.WorkflowState, event models.WorkflowEvent) (models.WorkflowState, error) {
	stage := current.WorkflowStatus
	invalid := &InvalidTransitionError{Stage: stage, Event: event}
	if !stage.Valid() || stage.Terminal() {
		return current, invalid
	}

	next := current
	switch event {
	case models.EventClientConfirmed:
		switch stage {
		case models.WorkflowDraft:
			next.WorkflowStatus = models.WorkflowPendingClientConfirmation
		case models.WorkflowPaymentReceived:
			next.Status = models.QuotationStatusConfirmed
			next.WorkflowStatus = models.WorkflowConfirmed
		default:
			return current, invalid
		}
	case models.EventSubmittedForApproval:
		if stage != models.WorkflowDraft && stage != models.WorkflowPendingClientConfirmation {
			return current, invalid
		}
		next.Status = models.QuotationStatusPendingApproval
		next.WorkflowStatus = models.WorkflowPendingApproval
	case models.EventApproved:
		if stage != models.WorkflowPendingApproval {
			return current, invalid
		}
		next.Status = models.QuotationStatusApproved
		next.WorkflowStatus = models.WorkflowApproved
	case models.EventPaymentReceived:
		if stage != models.WorkflowApproved {
			return current, invalid
		}
		next.WorkflowStatus = models.WorkflowPaymentReceived
	case models.EventRejected:
		next.Status = models.QuotationStatusRejected
		next.WorkflowStatus = models.WorkflowRejected
	case models.EventCancelled:
		next.Status = models.QuotationStatusCancelled
		next.WorkflowStatus = models.WorkflowCancelled
	default:
		return current, invalid
	}
	return next, nil
}

type approvalLookup interface {
	LatestByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error)
	ApprovedByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error)
}

// StageEntryResolver finds when a quotation entered its current workflow status.
type StageEntryResolver struct {
	approvals approvalLookup
	logger    *zap.Logger
}

// NewStageEntryResolver constructs a resolver. A nil approvals lookup makes
// approval-driven stages fall back to the creation time.
func NewStageEntryResolver(approvals approvalLookup, logger *zap.Logger) *StageEntryResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageEntryResolver{approvals: approvals, logger: logger}
}

// Resolve returns the best known stage entry time. It never fails: missing
// timestamps, missing approval rows and lookup errors all degrade to created_at.
func (r *StageEntryResolver) Resolve(ctx context.Context, q *models.Quotation) time.Time {
	switch q.WorkflowStatus {
	case models.WorkflowDraft:
		return q.CreatedAt
	case models.WorkflowPendingClientConfirmation:
		if q.ClientVerbalConfirmationDate != nil {
			return *q.ClientVerbalConfirmationDate
		}
		return r.fallback(q, "client verbal confirmation date not set", nil)
	case models.WorkflowPendingApproval:
		if r.approvals == nil {
			return r.fallback(q, "approval lookup unavailable", nil)
		}
		approval, err := r.approvals.LatestByQuotation(ctx, q.ID)
		if err != nil || approval == nil {
			return r.fallback(q, "no approval request found", err)
		}
		return approval.CreatedAt
	case models.WorkflowApproved:
		if r.approvals == nil {
			return r.fallback(q, "approval lookup unavailable", nil)
		}
		approval, err := r.approvals.ApprovedByQuotation(ctx, q.ID)
		if err != nil || approval == nil || approval.ApprovalDate == nil {
			return r.fallback(q, "no approval decision found", err)
		}
		return *approval.ApprovalDate
	case models.WorkflowPaymentReceived:
		if q.PaymentReceivedDate != nil {
			return *q.PaymentReceivedDate
		}
		return r.fallback(q, "payment received date not set", nil)
	default:
		return q.CreatedAt
	}
}

func (r *StageEntryResolver) fallback(q *models.Quotation, reason string, err error) time.Time {
	fields := []zap.Field{
		zap.Int64("quotation_id", q.ID),
		zap.String("workflow_status", string(q.WorkflowStatus)),
		zap.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("stage entry time fell back to creation time", fields...)
	return q.CreatedAt
}

// DaysInStage returns the number of whole days between entry and now, floored.
func DaysInStage(entry, now time.Time) int {
	return int(math.Floor(now.Sub(entry).Hours() / 24))
}

// EvaluateOverdue reports whether q, having entered its stage at entry, is overdue at now.
func EvaluateOverdue(q *models.Quotation, entry, now time.Time) (models.OverdueQuotation, bool) {
	threshold, ok := ThresholdFor(q.WorkflowStatus)
	if !ok {
		return models.OverdueQuotation{}, false
	}
	days := DaysInStage(entry, now)
	if days < threshold {
		return models.OverdueQuotation{}, false
	}
	return models.OverdueQuotation{
		QuotationID:     q.ID,
		QuotationNumber: q.QuotationNumber,
		WorkflowStatus:  q.WorkflowStatus,
		DaysOverdue:     days,
		ThresholdDays:   threshold,
		StageEnteredAt:  entry,
		ClientName:      q.ClientName,
		TotalAmount:     q.TotalAmount,
	}, true
}

// PriorityPolicy picks the priority of an overdue notification.
type PriorityPolicy func(daysOverdue, thresholdDays int) models.NotificationPriority

// DefaultPriorityPolicy escalates to urgent once a quotation has spent twice its
// threshold in the stage.
func DefaultPriorityPolicy(daysOverdue, thresholdDays int) models.NotificationPriority {
	if daysOverdue >= 2*thresholdDays {
		return models.PriorityUrgent
	}
	return models.PriorityHigh
}

// QuotationActionURL links a notification back to the quotation in the CRM.
func QuotationActionURL(id int64) string {
	return fmt.Sprintf("/sales/quotations?focus=%d", id)
}

// BuildOverdueNotification constructs the single notification sent for an overdue hit.
func BuildOverdueNotification(item models.OverdueQuotation, policy PriorityPolicy) models.NotificationRequest {
	if policy == nil {
		policy = DefaultPriorityPolicy
	}
	id := item.QuotationID
	return models.NotificationRequest{
		Recipient:   item.Recipient,
		Type:        models.NotificationOverdue,
		Priority:    policy(item.DaysOverdue, item.ThresholdDays),
		Title:       fmt.Sprintf("Quotation %s is overdue", quotationLabel(item.QuotationNumber, id)),
		Message:     fmt.Sprintf("%s quotation overdue by %d day(s) in %s stage.", item.ClientName, item.DaysOverdue, item.WorkflowStatus),
		QuotationID: &id,
		ActionURL:   QuotationActionURL(id),
		ActionLabel: "View & Take Action",
		Metadata: map[string]interface{}{
			"days_overdue":  item.DaysOverdue,
			"client_name":   item.ClientName,
			"value_at_risk": item.TotalAmount,
		},
	}
}

func quotationLabel(number string, id int64) string {
	if number != "" {
		return number
	}
	return fmt.Sprintf("#%d", id)
}
