package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
	"github.com/noah-isme/ooak-quotation-api/pkg/jobs"
)

// MessagePublisher is satisfied by *nats.Conn.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

type notificationEvent struct {
	ID          string                      `json:"id"`
	UserID      string                      `json:"user_id"`
	Type        models.NotificationType     `json:"type"`
	Priority    models.NotificationPriority `json:"priority"`
	Title       string                      `json:"title"`
	Message     string                      `json:"message"`
	QuotationID *int64                      `json:"quotation_id,omitempty"`
	ActionURL   *string                     `json:"action_url,omitempty"`
	Metadata    json.RawMessage             `json:"metadata,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// NotificationPublisher pushes persisted notifications to
// <prefix>.<type> subjects through a retrying background queue.
type NotificationPublisher struct {
	publisher MessagePublisher
	prefix    string
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewNotificationPublisher builds a publisher; Start must be called before Push.
func NewNotificationPublisher(publisher MessagePublisher, prefix string, workers, retries int, logger *zap.Logger) *NotificationPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "notifications.quotations"
	}
	p := &NotificationPublisher{publisher: publisher, prefix: prefix, logger: logger}
	p.queue = jobs.NewQueue("notification-publish", p.handle, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Logger:     logger,
		OnExhausted: func(job jobs.Job, err error) {
			logger.Error("notification publish abandoned", zap.String("notification_id", job.ID), zap.Error(err))
		},
	})
	return p
}

// Start launches the publishing workers.
func (p *NotificationPublisher) Start(ctx context.Context) {
	p.queue.Start(ctx)
}

// Stop halts the workers; undelivered pushes are dropped.
func (p *NotificationPublisher) Stop() {
	p.queue.Stop()
}

// Subject returns the subject a notification type is published on.
func (p *NotificationPublisher) Subject(kind models.NotificationType) string {
	return p.prefix + "." + string(kind)
}

// Push enqueues n for publishing without blocking.
func (p *NotificationPublisher) Push(n *models.Notification) error {
	if n == nil {
		return nil
	}
	event := notificationEvent{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        n.Type,
		Priority:    n.Priority,
		Title:       n.Title,
		Message:     n.Message,
		QuotationID: n.QuotationID,
		ActionURL:   n.ActionURL,
		CreatedAt:   n.CreatedAt,
	}
	if len(n.Metadata) > 0 {
		event.Metadata = json.RawMessage(n.Metadata)
	}
	return p.queue.Enqueue(jobs.Job{ID: n.ID, Type: string(n.Type), Payload: event})
}

func (p *NotificationPublisher) handle(_ context.Context, job jobs.Job) error {
	event, ok := job.Payload.(notificationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", event.ID, err)
	}
	if err := p.publisher.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish notification %s: %w", event.ID, err)
	}
	return nil
}
