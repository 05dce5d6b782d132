package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
	"github.com/noah-isme/ooak-quotation-api/internal/models"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
)

type overdueCandidateStore interface {
	FindOverdueCandidates(ctx context.Context, excluded []models.WorkflowStatus) ([]models.Quotation, error)
}

// NotificationSink accepts notification requests and returns the stored id.
type NotificationSink interface {
	Notify(ctx context.Context, req models.NotificationRequest) (string, error)
}

// ExpiredNotificationCleaner removes notifications past their expiry.
type ExpiredNotificationCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// OverdueService finds quotations that have sat too long in their stage and
// notifies their owners.
type OverdueService struct {
	quotations       overdueCandidateStore
	resolver         *StageEntryResolver
	sink             NotificationSink
	cleaner          ExpiredNotificationCleaner
	audit            auditLogger
	metrics          *MetricsService
	policy           PriorityPolicy
	defaultRecipient string
	finishTimeout    time.Duration
	logger           *zap.Logger
}

// DefaultOverdueFinishTimeout bounds delivery and cleanup once the scan is done.
const DefaultOverdueFinishTimeout = 30 * time.Second

// OverdueServiceOption configures the service.
type OverdueServiceOption func(*OverdueService)

// WithPriorityPolicy replaces DefaultPriorityPolicy.
func WithPriorityPolicy(policy PriorityPolicy) OverdueServiceOption {
	return func(s *OverdueService) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithDefaultRecipient sets who is notified when a quotation has no owner.
func WithDefaultRecipient(recipient string) OverdueServiceOption {
	return func(s *OverdueService) {
		s.defaultRecipient = recipient
	}
}

// WithOverdueMetrics records scan metrics.
func WithOverdueMetrics(metrics *MetricsService) OverdueServiceOption {
	return func(s *OverdueService) {
		s.metrics = metrics
	}
}

// WithOverdueAudit records every completed run in the audit trail.
func WithOverdueAudit(audit auditLogger) OverdueServiceOption {
	return func(s *OverdueService) {
		s.audit = audit
	}
}

// WithFinishTimeout bounds notification delivery, cleanup and the audit write
// that follow the scan. These run detached from the caller's cancellation so a
// scan interrupted part-way still delivers what it found.
func WithFinishTimeout(timeout time.Duration) OverdueServiceOption {
	return func(s *OverdueService) {
		if timeout > 0 {
			s.finishTimeout = timeout
		}
	}
}

// NewOverdueService constructs the service.
func NewOverdueService(quotations overdueCandidateStore, resolver *StageEntryResolver, sink NotificationSink, cleaner ExpiredNotificationCleaner, logger *zap.Logger, opts ...OverdueServiceOption) *OverdueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewStageEntryResolver(nil, logger)
	}
	svc := &OverdueService{
		quotations:    quotations,
		resolver:      resolver,
		sink:          sink,
		cleaner:       cleaner,
		policy:        DefaultPriorityPolicy,
		finishTimeout: DefaultOverdueFinishTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Scan evaluates every non-terminal quotation at now and returns the overdue
// ones ordered by quotation id. When ctx ends mid-scan the hits found so far are
// returned together with the context error.
func (s *OverdueService) Scan(ctx context.Context, now time.Time) ([]models.OverdueQuotation, error) {
	candidates, err := s.quotations.FindOverdueCandidates(ctx, models.TerminalWorkflowStatuses)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overdue candidates")
	}

	overdue := make([]models.OverdueQuotation, 0)
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("overdue scan interrupted",
				zap.Int("evaluated", i),
				zap.Int("candidates", len(candidates)),
				zap.Error(err),
			)
			sortOverdue(overdue)
			return overdue, err
		}
		q := &candidates[i]
		if _, ok := ThresholdFor(q.WorkflowStatus); !ok {
			continue
		}
		entry := s.resolver.Resolve(ctx, q)
		item, isOverdue := EvaluateOverdue(q, entry, now)
		if !isOverdue {
			continue
		}
		item.Recipient = q.Owner()
		if item.Recipient == "" {
			item.Recipient = s.defaultRecipient
		}
		overdue = append(overdue, item)
	}
	sortOverdue(overdue)
	return overdue, nil
}

// Run scans at now, sends one notification per overdue quotation and then runs
// the expired-notification cleanup exactly once. Delivery failures are recorded
// in the report and never stop the batch. If ctx ends mid-scan the hits found so
// far are still delivered and the report is marked partial.
func (s *OverdueService) Run(ctx context.Context, now time.Time) (*dto.OverdueScanReport, error) {
	start := time.Now()
	report := &dto.OverdueScanReport{RanAt: now, NotificationIDs: []string{}}

	overdue, scanErr := s.Scan(ctx, now)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.finishTimeout)
	defer cancel()

	if scanErr != nil && overdue == nil {
		s.cleanup(finishCtx, now)
		return nil, scanErr
	}
	report.Overdue = overdue
	report.Partial = scanErr != nil
	if report.Partial {
		s.logger.Warn("overdue scan partial, delivering hits found so far",
			zap.Int("overdue", len(overdue)),
			zap.Error(scanErr),
		)
	}

	for _, item := range overdue {
		req := BuildOverdueNotification(item, s.policy)
		id, err := s.sink.Notify(finishCtx, req)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, dto.DeliveryFailure{
				QuotationID: item.QuotationID,
				Recipient:   req.Recipient,
				Error:       err.Error(),
			})
			s.logger.Warn("overdue notification delivery failed",
				zap.Int64("quotation_id", item.QuotationID),
				zap.String("workflow_status", string(item.WorkflowStatus)),
				zap.String("recipient", req.Recipient),
				zap.Error(err),
			)
			continue
		}
		report.Dispatched++
		report.NotificationIDs = append(report.NotificationIDs, id)
	}

	report.ExpiredCleaned = s.cleanup(finishCtx, now)
	duration := time.Since(start)
	report.DurationMillis = duration.Milliseconds()
	s.metrics.ObserveOverdueScan(duration, overdue)
	s.recordAudit(finishCtx, report)

	s.logger.Info("overdue scan completed",
		zap.Int("overdue", len(report.Overdue)),
		zap.Int("dispatched", report.Dispatched),
		zap.Int("failed", report.Failed),
		zap.Int64("expired_cleaned", report.ExpiredCleaned),
		zap.Bool("partial", report.Partial),
		zap.Duration("duration", duration),
	)
	return report, nil
}

func (s *OverdueService) cleanup(ctx context.Context, now time.Time) int64 {
	if s.cleaner == nil {
		return 0
	}
	removed, err := s.cleaner.CleanupExpired(ctx, now)
	if err != nil {
		s.logger.Warn("expired notification cleanup failed", zap.Error(err))
		return 0
	}
	return removed
}

func (s *OverdueService) recordAudit(ctx context.Context, report *dto.OverdueScanReport) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"overdue":         len(report.Overdue),
		"dispatched":      report.Dispatched,
		"failed":          report.Failed,
		"expired_cleaned": report.ExpiredCleaned,
		"partial":         report.Partial,
	})
	if err != nil {
		s.logger.Warn("failed to encode overdue audit payload", zap.Error(err))
		return
	}
	entry := &models.AuditLog{
		Action:    models.AuditActionOverdueScan,
		Resource:  "quotation",
		NewValues: payload,
		IPAddress: "system",
		UserAgent: "overdue-scan",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func sortOverdue(items []models.OverdueQuotation) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].QuotationID < items[j].QuotationID
	})
}
