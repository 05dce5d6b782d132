package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

func TestMetricsServiceWorkflowCollectors(t *testing.T) {
	m := NewMetricsService()

	m.ObserveOverdueScan(150*time.Millisecond, []models.OverdueQuotation{
		{QuotationID: 1, WorkflowStatus: models.WorkflowDraft},
		{QuotationID: 2, WorkflowStatus: models.WorkflowDraft},
		{QuotationID: 3, WorkflowStatus: models.WorkflowApproved},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.overdueGauge.WithLabelValues("draft")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overdueGauge.WithLabelValues("approved")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.overdueGauge.WithLabelValues("pending_approval")))

	m.ObserveOverdueScan(10*time.Millisecond, nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.overdueGauge.WithLabelValues("draft")))

	m.RecordNotification(models.NotificationOverdue, "delivered")
	m.RecordNotification(models.NotificationOverdue, "failed")
	m.RecordNotification(models.NotificationOverdue, "delivered")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notificationTotal.WithLabelValues("overdue", "delivered")))

	m.RecordTransition(models.EventApproved, "invalid")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionTotal.WithLabelValues("approved", "invalid")))
}

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(m.cacheHitRatio), 0.0001)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.ObserveOverdueScan(time.Second, nil)
		m.RecordNotification(models.NotificationOverdue, "failed")
		m.RecordTransition(models.EventCancelled, "applied")
	})
	assert.NotNil(t, m.Handler())
}
