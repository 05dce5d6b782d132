package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
	"github.com/noah-isme/ooak-quotation-api/internal/models"
	"github.com/noah-isme/ooak-quotation-api/internal/repository"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
)

type quotationStore interface {
	Create(ctx context.Context, q *models.Quotation) error
	GetByID(ctx context.Context, id int64) (*models.Quotation, error)
	List(ctx context.Context, filter models.QuotationFilter) ([]models.Quotation, int, error)
	UpdateWorkflow(ctx context.Context, params repository.UpdateWorkflowParams) error
	Delete(ctx context.Context, id int64) error
	SummaryByWorkflow(ctx context.Context) ([]models.WorkflowStageSummary, error)
}

type approvalStore interface {
	Create(ctx context.Context, approval *models.QuotationApproval) error
	ListByQuotation(ctx context.Context, quotationID int64) ([]models.QuotationApproval, error)
	RecordDecision(ctx context.Context, params repository.ApprovalDecisionParams) (*models.QuotationApproval, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// eventRoles lists who may apply each event. Final client confirmation is
// handled separately because it depends on the current stage.
var eventRoles = map[models.WorkflowEvent][]models.UserRole{
	models.EventSubmittedForApproval: {models.RoleAdmin, models.RoleSalesHead, models.RoleSalesRep},
	models.EventApproved:             {models.RoleAdmin, models.RoleSalesHead},
	models.EventRejected:             {models.RoleAdmin, models.RoleSalesHead},
	models.EventPaymentReceived:      {models.RoleAdmin, models.RoleSalesHead, models.RoleSalesRep, models.RoleAccounts},
	models.EventClientConfirmed:      {models.RoleAdmin, models.RoleSalesHead, models.RoleSalesRep},
	models.EventCancelled:            {models.RoleAdmin, models.RoleSalesHead, models.RoleSalesRep},
}

var finalConfirmationRoles = []models.UserRole{models.RoleAdmin, models.RoleConfirmationTeam}

// QuotationService applies workflow events to quotations and serves quotation reads.
type QuotationService struct {
	repo              quotationStore
	approvals         approvalStore
	notifier          NotificationSink
	audit             auditLogger
	cache             *CacheService
	metrics           *MetricsService
	validator         *validator.Validate
	approverRecipient string
	summaryTTL        time.Duration
	logger            *zap.Logger
	now               func() time.Time
}

// QuotationServiceOption configures the service.
type QuotationServiceOption func(*QuotationService)

// WithQuotationNotifier sends approval and payment notifications through sink.
func WithQuotationNotifier(sink NotificationSink) QuotationServiceOption {
	return func(s *QuotationService) {
		s.notifier = sink
	}
}

// WithApproverRecipient sets who receives approval_needed notifications.
func WithApproverRecipient(recipient string) QuotationServiceOption {
	return func(s *QuotationService) {
		s.approverRecipient = strings.TrimSpace(recipient)
	}
}

// WithQuotationCache caches the workflow summary for ttl.
func WithQuotationCache(cache *CacheService, ttl time.Duration) QuotationServiceOption {
	return func(s *QuotationService) {
		s.cache = cache
		s.summaryTTL = ttl
	}
}

// WithQuotationMetrics counts applied and rejected events.
func WithQuotationMetrics(metrics *MetricsService) QuotationServiceOption {
	return func(s *QuotationService) {
		s.metrics = metrics
	}
}

// WithQuotationClock overrides the clock used to stamp transitions.
func WithQuotationClock(now func() time.Time) QuotationServiceOption {
	return func(s *QuotationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewQuotationService constructs the service.
func NewQuotationService(repo quotationStore, approvals approvalStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...QuotationServiceOption) *QuotationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &QuotationService{
		repo:      repo,
		approvals: approvals,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	registerValidation(svc.validator, "workflow_event", func(fl validator.FieldLevel) bool {
		return models.WorkflowEvent(fl.Field().String()).Valid()
	}, logger)
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create drafts a new quotation owned by the actor.
func (s *QuotationService) Create(ctx context.Context, req dto.CreateQuotationRequest, actor *models.JWTClaims) (*models.Quotation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = buildSlug(req.QuotationNumber)
	}
	now := s.now()
	q := &models.Quotation{
		QuotationNumber: strings.TrimSpace(req.QuotationNumber),
		Slug:            slug,
		ClientName:      strings.TrimSpace(req.ClientName),
		ClientEmail:     req.ClientEmail,
		ClientPhone:     req.ClientPhone,
		TotalAmount:     req.TotalAmount,
		DefaultPackage:  req.DefaultPackage,
		Status:          models.QuotationStatusDraft,
		WorkflowStatus:  models.WorkflowDraft,
		CreatedBy:       actor.UserID,
		AssignedTo:      req.AssignedTo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quotation")
	}
	s.emitAudit(ctx, actor, models.AuditActionQuotationCreate, q.ID, nil, q.State())
	s.cache.InvalidateQuotations(ctx)
	return q, nil
}

// Get returns a quotation visible to the actor.
func (s *QuotationService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Quotation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, q) {
		return nil, appErrors.ErrForbidden
	}
	return q, nil
}

// List returns quotations matching query. Sales reps only see their own.
func (s *QuotationService) List(ctx context.Context, query dto.QuotationQuery, actor *models.JWTClaims) ([]models.Quotation, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	for _, status := range query.WorkflowStatuses {
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow status %q", status))
		}
	}
	page, size := normalisePage(query.Page, query.PageSize, 50, 200)
	filter := models.QuotationFilter{
		WorkflowStatuses: query.WorkflowStatuses,
		Search:           query.Search,
		Page:             page,
		PageSize:         size,
	}
	if query.Mine || actor.Role == models.RoleSalesRep {
		filter.CreatedBy = actor.UserID
		filter.AssignedTo = actor.UserID
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quotations")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ApplyEvent runs event against the quotation and persists the result only if
// no concurrent transition changed the quotation in between.
func (s *QuotationService) ApplyEvent(ctx context.Context, id int64, req dto.WorkflowEventRequest, actor *models.JWTClaims) (*dto.TransitionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, q) || !canApply(actor, req.Event, q.WorkflowStatus) {
		s.metrics.RecordTransition(req.Event, "forbidden")
		return nil, appErrors.ErrForbidden
	}

	from := q.State()
	to, err := Transition(from, req.Event)
	if err != nil {
		s.metrics.RecordTransition(req.Event, "invalid")
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, err.Error())
	}

	now := s.now()
	params := repository.UpdateWorkflowParams{
		ID:                     q.ID,
		ExpectedWorkflowStatus: from.WorkflowStatus,
		Status:                 to.Status,
		WorkflowStatus:         to.WorkflowStatus,
		UpdatedAt:              now,
	}
	switch to.WorkflowStatus {
	case models.WorkflowPendingClientConfirmation:
		params.ClientVerbalConfirmationDate = &now
	case models.WorkflowPaymentReceived:
		amount := q.TotalAmount
		if req.PaymentAmount != nil {
			amount = *req.PaymentAmount
		}
		params.PaymentReceivedDate = &now
		params.PaymentAmount = &amount
		params.PaymentReference = optionalString(req.PaymentReference)
	}
	if err := s.repo.UpdateWorkflow(ctx, params); err != nil {
		s.metrics.RecordTransition(req.Event, "error")
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "quotation was modified by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update quotation workflow")
	}

	q.Status = to.Status
	q.WorkflowStatus = to.WorkflowStatus
	q.UpdatedAt = now
	if params.ClientVerbalConfirmationDate != nil {
		q.ClientVerbalConfirmationDate = params.ClientVerbalConfirmationDate
	}
	if params.PaymentReceivedDate != nil {
		q.PaymentReceivedDate = params.PaymentReceivedDate
		q.PaymentAmount = params.PaymentAmount
		if params.PaymentReference != nil {
			q.PaymentReference = params.PaymentReference
		}
	}
	s.metrics.RecordTransition(req.Event, "applied")
	s.logger.Info("quotation workflow transitioned",
		zap.Int64("quotation_id", q.ID),
		zap.String("event", string(req.Event)),
		zap.String("from", string(from.WorkflowStatus)),
		zap.String("to", string(to.WorkflowStatus)),
		zap.String("actor", actor.UserID),
	)

	s.recordApproval(ctx, q, from.WorkflowStatus, req, actor, now)
	s.notifyTransition(ctx, q, req.Event, actor)
	s.emitAudit(ctx, actor, models.AuditActionQuotationTransition, q.ID, from, to)
	s.cache.InvalidateQuotations(ctx)

	return &dto.TransitionResult{Quotation: q, Event: req.Event, From: from, To: to}, nil
}

// Approvals returns the approval history of a quotation visible to the actor.
func (s *QuotationService) Approvals(ctx context.Context, id int64, actor *models.JWTClaims) ([]models.QuotationApproval, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	approvals, err := s.approvals.ListByQuotation(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, nil
}

// Delete hard deletes a quotation.
func (s *QuotationService) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete quotation")
	}
	s.emitAudit(ctx, actor, models.AuditActionQuotationDelete, id, nil, nil)
	s.cache.InvalidateQuotations(ctx)
	return nil
}

// Summary returns count and value per workflow status in lifecycle order. The
// boolean reports a cache hit.
func (s *QuotationService) Summary(ctx context.Context) (*dto.WorkflowSummary, bool, error) {
	var cached dto.WorkflowSummary
	if s.cache.Get(ctx, summaryCacheKey, &cached) {
		return &cached, true, nil
	}
	rows, err := s.repo.SummaryByWorkflow(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise quotations")
	}
	byStatus := make(map[models.WorkflowStatus]models.WorkflowStageSummary, len(rows))
	for _, row := range rows {
		byStatus[row.WorkflowStatus] = row
	}
	summary := &dto.WorkflowSummary{GeneratedAt: s.now()}
	for _, status := range models.WorkflowStatuses {
		stage, ok := byStatus[status]
		if !ok {
			stage = models.WorkflowStageSummary{WorkflowStatus: status}
		}
		summary.Stages = append(summary.Stages, stage)
	}
	s.cache.Set(ctx, summaryCacheKey, summary, s.summaryTTL)
	return summary, false, nil
}

func (s *QuotationService) load(ctx context.Context, id int64) (*models.Quotation, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quotation")
	}
	return q, nil
}

// recordApproval keeps quotation_approvals in step with the workflow. Failures
// are logged only; the transition has already been persisted.
func (s *QuotationService) recordApproval(ctx context.Context, q *models.Quotation, from models.WorkflowStatus, req dto.WorkflowEventRequest, actor *models.JWTClaims, now time.Time) {
	if s.approvals == nil {
		return
	}
	var err error
	switch {
	case req.Event == models.EventSubmittedForApproval:
		err = s.approvals.Create(ctx, &models.QuotationApproval{
			QuotationID:    q.ID,
			ApprovalStatus: models.ApprovalPending,
			Comments:       optionalString(req.Comments),
			CreatedAt:      now,
		})
	case from == models.WorkflowPendingApproval && (req.Event == models.EventApproved || req.Event == models.EventRejected):
		decision := models.ApprovalApproved
		if req.Event == models.EventRejected {
			decision = models.ApprovalRejected
		}
		_, err = s.approvals.RecordDecision(ctx, repository.ApprovalDecisionParams{
			QuotationID: q.ID,
			ApproverID:  actor.UserID,
			Status:      decision,
			DecidedAt:   now,
			Comments:    optionalString(req.Comments),
		})
	default:
		return
	}
	if err != nil {
		s.logger.Warn("failed to record quotation approval",
			zap.Int64("quotation_id", q.ID),
			zap.String("event", string(req.Event)),
			zap.Error(err),
		)
	}
}

func (s *QuotationService) notifyTransition(ctx context.Context, q *models.Quotation, event models.WorkflowEvent, actor *models.JWTClaims) {
	if s.notifier == nil {
		return
	}
	id := q.ID
	var req models.NotificationRequest
	switch event {
	case models.EventSubmittedForApproval:
		if s.approverRecipient == "" {
			return
		}
		req = models.NotificationRequest{
			Recipient:   s.approverRecipient,
			Type:        models.NotificationApprovalNeeded,
			Priority:    models.PriorityHigh,
			Title:       "New quotation pending your approval",
			Message:     fmt.Sprintf("%s - %.2f quotation needs approval", q.ClientName, q.TotalAmount),
			QuotationID: &id,
			ActionURL:   QuotationActionURL(id),
			ActionLabel: "Approve/Reject",
			Metadata: map[string]interface{}{
				"quotation_value": q.TotalAmount,
				"client_name":     q.ClientName,
				"submitted_by":    actor.UserID,
			},
		}
	case models.EventPaymentReceived:
		amount := q.TotalAmount
		if q.PaymentAmount != nil {
			amount = *q.PaymentAmount
		}
		req = models.NotificationRequest{
			Recipient:   q.Owner(),
			Type:        models.NotificationPaymentReceived,
			Priority:    models.PriorityMedium,
			Title:       fmt.Sprintf("Payment received for %s", q.ClientName),
			Message:     fmt.Sprintf("%.2f payment confirmed. Ready for delivery confirmation.", amount),
			QuotationID: &id,
			ActionURL:   QuotationActionURL(id),
			ActionLabel: "Confirm Delivery",
			Metadata: map[string]interface{}{
				"payment_amount": amount,
				"client_name":    q.ClientName,
			},
		}
	default:
		return
	}
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Warn("workflow notification delivery failed",
			zap.Int64("quotation_id", q.ID),
			zap.String("type", string(req.Type)),
			zap.String("recipient", req.Recipient),
			zap.Error(err),
		)
	}
}

func (s *QuotationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, quotationID int64, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	resourceID := fmt.Sprintf("%d", quotationID)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "quotation",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "quotation-service",
	}
	if actor != nil {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if oldValues != nil {
		encoded, err := json.Marshal(oldValues)
		if err != nil {
			s.logger.Warn("failed to encode audit values", zap.String("action", action), zap.String("field", "old_values"), zap.Error(err))
		} else {
			entry.OldValues = encoded
		}
	}
	if newValues != nil {
		encoded, err := json.Marshal(newValues)
		if err != nil {
			s.logger.Warn("failed to encode audit values", zap.String("action", action), zap.String("field", "new_values"), zap.Error(err))
		} else {
			entry.NewValues = encoded
		}
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func registerValidation(v *validator.Validate, tag string, fn validator.Func, logger *zap.Logger) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		logger.Warn("failed to register validation", zap.String("tag", tag), zap.Error(err))
	}
}

func canView(actor *models.JWTClaims, q *models.Quotation) bool {
	if actor.Role != models.RoleSalesRep {
		return true
	}
	return q.CreatedBy == actor.UserID || (q.AssignedTo != nil && *q.AssignedTo == actor.UserID)
}

func canApply(actor *models.JWTClaims, event models.WorkflowEvent, stage models.WorkflowStatus) bool {
	roles := eventRoles[event]
	if event == models.EventClientConfirmed && stage == models.WorkflowPaymentReceived {
		roles = finalConfirmationRoles
	}
	for _, role := range roles {
		if actor.Role == role {
			return true
		}
	}
	return false
}

func buildSlug(number string) string {
	base := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(number), "-"), "-")
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
