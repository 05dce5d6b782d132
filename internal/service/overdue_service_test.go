package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
)

type candidateStoreStub struct {
	quotations []models.Quotation
	err        error
	excluded   []models.WorkflowStatus
}

func (s *candidateStoreStub) FindOverdueCandidates(ctx context.Context, excluded []models.WorkflowStatus) ([]models.Quotation, error) {
	s.excluded = excluded
	if s.err != nil {
		return nil, s.err
	}
	return s.quotations, nil
}

type sinkStub struct {
	requests []models.NotificationRequest
	failFor  map[int64]bool
}

func (s *sinkStub) Notify(ctx context.Context, req models.NotificationRequest) (string, error) {
	s.requests = append(s.requests, req)
	if req.QuotationID != nil && s.failFor[*req.QuotationID] {
		return "", appErrors.Clone(appErrors.ErrDeliveryFailed, "sink unavailable")
	}
	return fmt.Sprintf("n-%d", len(s.requests)), nil
}

type cleanerStub struct {
	calls int
	err   error
}

func (c *cleanerStub) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	c.calls++
	return 2, c.err
}

func assignedTo(user string) *string { return &user }

func TestOverdueScanDraftScenario(t *testing.T) {
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 1, ClientName: "Anika", WorkflowStatus: models.WorkflowDraft, Status: models.QuotationStatusDraft, CreatedAt: t0, CreatedBy: "rep-1", TotalAmount: 90000},
	}}
	svc := NewOverdueService(store, NewStageEntryResolver(&approvalLookupStub{}, nil), &sinkStub{}, &cleanerStub{}, nil)

	items, err := svc.Scan(context.Background(), t0.Add(6*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].DaysOverdue)
	assert.Equal(t, "rep-1", items[0].Recipient)
	assert.ElementsMatch(t, models.TerminalWorkflowStatuses, store.excluded)
}

func TestOverdueScanClientConfirmationNotYetOverdue(t *testing.T) {
	q, err := Transition(wfState(models.QuotationStatusDraft, models.WorkflowDraft), models.EventClientConfirmed)
	require.NoError(t, err)
	confirmedAt := t0.Add(24 * time.Hour)
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 2, ClientName: "Rohan", Status: q.Status, WorkflowStatus: q.WorkflowStatus, CreatedAt: t0, ClientVerbalConfirmationDate: &confirmedAt},
	}}
	svc := NewOverdueService(store, nil, &sinkStub{}, &cleanerStub{}, nil)

	items, err := svc.Scan(context.Background(), t0.Add(3*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOverdueScanPendingApprovalBoundary(t *testing.T) {
	now := t0.Add(10 * 24 * time.Hour)
	lookup := &approvalLookupStub{latest: map[int64]*models.QuotationApproval{
		10: {CreatedAt: now.Add(-48 * time.Hour)},
		11: {CreatedAt: now.Add(-47 * time.Hour)},
	}}
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 11, WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0},
		{ID: 10, WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0},
	}}
	svc := NewOverdueService(store, NewStageEntryResolver(lookup, nil), &sinkStub{}, nil, nil)

	items, err := svc.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(10), items[0].QuotationID)
	assert.Equal(t, 2, items[0].DaysOverdue)
}

func TestOverdueScanOrderingRecipientsAndSkips(t *testing.T) {
	now := t0.Add(30 * 24 * time.Hour)
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 9, WorkflowStatus: models.WorkflowApproved, CreatedAt: t0, CreatedBy: "rep-2", AssignedTo: assignedTo("rep-9")},
		{ID: 3, WorkflowStatus: models.WorkflowStatus("on_hold"), CreatedAt: t0, CreatedBy: "rep-3"},
		{ID: 5, WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0},
		{ID: 4, WorkflowStatus: models.WorkflowDraft, CreatedAt: now.Add(-time.Hour), CreatedBy: "rep-4"},
	}}
	lookup := &approvalLookupStub{err: errors.New("approvals table locked")}
	svc := NewOverdueService(store, NewStageEntryResolver(lookup, nil), &sinkStub{}, nil, nil, WithDefaultRecipient("admin"))

	items, err := svc.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(5), items[0].QuotationID)
	assert.Equal(t, "admin", items[0].Recipient)
	assert.Equal(t, 30, items[0].DaysOverdue, "lookup failure falls back to creation time")
	assert.Equal(t, int64(9), items[1].QuotationID)
	assert.Equal(t, "rep-9", items[1].Recipient)
}

func TestOverdueScanCandidateFailure(t *testing.T) {
	svc := NewOverdueService(&candidateStoreStub{err: errors.New("db down")}, nil, &sinkStub{}, nil, nil)
	_, err := svc.Scan(context.Background(), t0)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))
}

func TestOverdueScanCancelledReturnsPartial(t *testing.T) {
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 1, WorkflowStatus: models.WorkflowDraft, CreatedAt: t0},
	}}
	svc := NewOverdueService(store, nil, &sinkStub{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := svc.Scan(ctx, t0.Add(10*24*time.Hour))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestOverdueRunPartialFailureIsolation(t *testing.T) {
	now := t0.Add(20 * 24 * time.Hour)
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 1, ClientName: "A", WorkflowStatus: models.WorkflowDraft, CreatedAt: t0, CreatedBy: "rep-a", TotalAmount: 1000},
		{ID: 2, ClientName: "B", WorkflowStatus: models.WorkflowDraft, CreatedAt: t0, CreatedBy: "rep-b", TotalAmount: 2000},
	}}
	sink := &sinkStub{failFor: map[int64]bool{1: true}}
	cleaner := &cleanerStub{}
	audit := &auditRecorder{}
	svc := NewOverdueService(store, nil, sink, cleaner, nil, WithOverdueMetrics(NewMetricsService()), WithOverdueAudit(audit))

	report, err := svc.Run(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, report.Overdue, 2)
	assert.Len(t, sink.requests, 2)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(1), report.Failures[0].QuotationID)
	assert.Equal(t, []string{"n-2"}, report.NotificationIDs)
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, int64(2), report.ExpiredCleaned)
	assert.False(t, report.Partial)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionOverdueScan, audit.logs[0].Action)

	assert.Equal(t, models.PriorityUrgent, sink.requests[1].Priority)
	assert.Equal(t, "rep-b", sink.requests[1].Recipient)
	assert.Equal(t, "B quotation overdue by 20 day(s) in draft stage.", sink.requests[1].Message)
}

func TestOverdueRunCustomPolicyAndCleanupFailure(t *testing.T) {
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 1, WorkflowStatus: models.WorkflowPaymentReceived, CreatedAt: t0, CreatedBy: "rep-a"},
	}}
	sink := &sinkStub{}
	cleaner := &cleanerStub{err: errors.New("cleanup timeout")}
	svc := NewOverdueService(store, nil, sink, cleaner, nil,
		WithPriorityPolicy(func(int, int) models.NotificationPriority { return models.PriorityLow }))

	report, err := svc.Run(context.Background(), t0.Add(5*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, sink.requests, 1)
	assert.Equal(t, models.PriorityLow, sink.requests[0].Priority)
	assert.Equal(t, 1, cleaner.calls)
	assert.Zero(t, report.ExpiredCleaned)
}

func TestOverdueRunCleanupRunsOnceWhenScanFails(t *testing.T) {
	cleaner := &cleanerStub{}
	svc := NewOverdueService(&candidateStoreStub{err: errors.New("db down")}, nil, &sinkStub{}, cleaner, nil)

	report, err := svc.Run(context.Background(), t0)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 1, cleaner.calls)
}

func TestOverdueRunEmpty(t *testing.T) {
	cleaner := &cleanerStub{}
	sink := &sinkStub{}
	svc := NewOverdueService(&candidateStoreStub{}, nil, sink, cleaner, nil)

	report, err := svc.Run(context.Background(), t0)
	require.NoError(t, err)
	assert.Empty(t, report.Overdue)
	assert.Empty(t, sink.requests)
	assert.Equal(t, 1, cleaner.calls)
	assert.NotNil(t, report.NotificationIDs)
}

type cancellingLookup struct {
	approvalLookupStub
	cancel context.CancelFunc
}

func (l *cancellingLookup) LatestByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error) {
	l.cancel()
	return l.approvalLookupStub.LatestByQuotation(ctx, quotationID)
}

type ctxAwareSink struct {
	sinkStub
}

func (s *ctxAwareSink) Notify(ctx context.Context, req models.NotificationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.sinkStub.Notify(ctx, req)
}

type ctxAwareCleaner struct {
	cleanerStub
}

func (c *ctxAwareCleaner) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.cleanerStub.CleanupExpired(ctx, now)
}

func TestOverdueRunInterruptedScanStillDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := t0.Add(20 * 24 * time.Hour)
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 1, ClientName: "A", WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0, CreatedBy: "rep-a"},
		{ID: 2, ClientName: "B", WorkflowStatus: models.WorkflowDraft, CreatedAt: t0, CreatedBy: "rep-b"},
	}}
	lookup := &cancellingLookup{
		approvalLookupStub: approvalLookupStub{latest: map[int64]*models.QuotationApproval{1: {CreatedAt: t0}}},
		cancel:             cancel,
	}
	sink := &ctxAwareSink{}
	cleaner := &ctxAwareCleaner{}
	audit := &auditRecorder{}
	svc := NewOverdueService(store, NewStageEntryResolver(lookup, nil), sink, cleaner, nil, WithOverdueAudit(audit))

	report, err := svc.Run(ctx, now)
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, report.Partial)
	require.Len(t, report.Overdue, 1)
	assert.Equal(t, int64(1), report.Overdue[0].QuotationID)
	assert.Equal(t, 1, report.Dispatched)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"n-1"}, report.NotificationIDs)
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, int64(2), report.ExpiredCleaned)
	require.Len(t, audit.logs, 1)
}

func TestOverdueRunFinishTimeoutBoundsDelivery(t *testing.T) {
	store := &candidateStoreStub{quotations: []models.Quotation{
		{ID: 1, WorkflowStatus: models.WorkflowDraft, CreatedAt: t0, CreatedBy: "rep-a"},
	}}
	sink := &deadlineSink{}
	svc := NewOverdueService(store, nil, sink, nil, nil, WithFinishTimeout(time.Minute))

	_, err := svc.Run(context.Background(), t0.Add(10*24*time.Hour))
	require.NoError(t, err)
	require.True(t, sink.hadDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), sink.deadline, 5*time.Second)
}

type deadlineSink struct {
	deadline    time.Time
	hadDeadline bool
}

func (s *deadlineSink) Notify(ctx context.Context, req models.NotificationRequest) (string, error) {
	s.deadline, s.hadDeadline = ctx.Deadline()
	return "n-1", nil
}
