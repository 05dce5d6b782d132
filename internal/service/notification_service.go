package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
	"github.com/noah-isme/ooak-quotation-api/internal/models"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NotificationPush forwards persisted notifications to real-time subscribers.
type NotificationPush interface {
	Push(n *models.Notification) error
}

// NotificationService is the notification sink: it persists requests, stamps
// their expiry and optionally pushes them to subscribers.
type NotificationService struct {
	repo    notificationStore
	push    NotificationPush
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NotificationServiceOption configures the service.
type NotificationServiceOption func(*NotificationService)

// WithNotificationPush enables real-time delivery after persistence.
func WithNotificationPush(push NotificationPush) NotificationServiceOption {
	return func(s *NotificationService) {
		s.push = push
	}
}

// WithNotificationMetrics records sink outcomes.
func WithNotificationMetrics(metrics *MetricsService) NotificationServiceOption {
	return func(s *NotificationService) {
		s.metrics = metrics
	}
}

// WithNotificationClock overrides the clock used for created_at and expires_at.
func WithNotificationClock(now func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewNotificationService constructs the service. A non-positive ttl stores
// notifications without expiry.
func NewNotificationService(repo notificationStore, ttl time.Duration, logger *zap.Logger, opts ...NotificationServiceOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Notify persists req and returns the new notification id. Any failure is a
// DELIVERY_FAILED error.
func (s *NotificationService) Notify(ctx context.Context, req models.NotificationRequest) (string, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		s.metrics.RecordNotification(req.Type, "failed")
		return "", appErrors.Clone(appErrors.ErrDeliveryFailed, "notification recipient is required")
	}
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		s.metrics.RecordNotification(req.Type, "failed")
		return "", appErrors.Wrap(err, appErrors.ErrDeliveryFailed.Code, appErrors.ErrDeliveryFailed.Status, "failed to encode notification metadata")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := s.now()
	n := &models.Notification{
		ID:          uuid.NewString(),
		UserID:      recipient,
		Type:        req.Type,
		Priority:    priority,
		Title:       req.Title,
		Message:     req.Message,
		QuotationID: req.QuotationID,
		ActionURL:   optionalString(req.ActionURL),
		ActionLabel: optionalString(req.ActionLabel),
		Metadata:    metadata,
		CreatedAt:   now,
	}
	if s.ttl > 0 {
		expires := now.Add(s.ttl)
		n.ExpiresAt = &expires
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.metrics.RecordNotification(req.Type, "failed")
		return "", appErrors.Wrap(err, appErrors.ErrDeliveryFailed.Code, appErrors.ErrDeliveryFailed.Status, "failed to store notification")
	}
	s.metrics.RecordNotification(req.Type, "delivered")

	if s.push != nil {
		if err := s.push.Push(n); err != nil {
			s.logger.Warn("notification push failed",
				zap.String("notification_id", n.ID),
				zap.String("recipient", n.UserID),
				zap.Error(err),
			)
		}
	}
	return n.ID, nil
}

// CleanupExpired deletes notifications whose expiry is before now.
func (s *NotificationService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up expired notifications")
	}
	if removed > 0 {
		s.logger.Info("expired notifications removed", zap.Int64("count", removed))
	}
	return removed, nil
}

// List returns the actor's own notifications.
func (s *NotificationService) List(ctx context.Context, query dto.NotificationQuery, actor *models.JWTClaims) ([]models.Notification, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page, size := normalisePage(query.Page, query.PageSize, 20, 100)
	items, total, err := s.repo.List(ctx, models.NotificationFilter{
		UserID:     actor.UserID,
		UnreadOnly: query.UnreadOnly,
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead flags one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkRead(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func normalisePage(page, size, defaultSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}
