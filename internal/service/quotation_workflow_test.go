package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
)

type approvalLookupStub struct {
	latest      map[int64]*models.QuotationApproval
	approved    map[int64]*models.QuotationApproval
	err         error
	latestCalls int
}

func (s *approvalLookupStub) LatestByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error) {
	s.latestCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.latest[quotationID], nil
}

func (s *approvalLookupStub) ApprovedByQuotation(ctx context.Context, quotationID int64) (*models.QuotationApproval, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.approved[quotationID], nil
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func wfState(status models.QuotationStatus, workflow models.WorkflowStatus) models.WorkflowState {
	return models.WorkflowState{Status: status, WorkflowStatus: workflow}
}

func TestThresholdTable(t *testing.T) {
	expected := map[models.WorkflowStatus]int{
		models.WorkflowDraft:                     5,
		models.WorkflowPendingClientConfirmation: 3,
		models.WorkflowPendingApproval:           2,
		models.WorkflowApproved:                  7,
		models.WorkflowPaymentReceived:           1,
	}
	for _, status := range models.WorkflowStatuses {
		days, ok := ThresholdFor(status)
		if status.Terminal() {
			assert.False(t, ok, "terminal status %s must not have a threshold", status)
			continue
		}
		require.True(t, ok, "non-terminal status %s needs a threshold", status)
		assert.Equal(t, expected[status], days)
	}

	_, ok := ThresholdFor(models.WorkflowStatus("on_hold"))
	assert.False(t, ok)
}

func TestTransitionValidEvents(t *testing.T) {
	cases := []struct {
		name    string
		current models.WorkflowState
		event   models.WorkflowEvent
		want    models.WorkflowState
	}{
		{"draft client confirmed", wfState("draft", models.WorkflowDraft), models.EventClientConfirmed, wfState("draft", models.WorkflowPendingClientConfirmation)},
		{"draft submitted", wfState("draft", models.WorkflowDraft), models.EventSubmittedForApproval, wfState("pending_approval", models.WorkflowPendingApproval)},
		{"pcc submitted", wfState("draft", models.WorkflowPendingClientConfirmation), models.EventSubmittedForApproval, wfState("pending_approval", models.WorkflowPendingApproval)},
		{"approved", wfState("pending_approval", models.WorkflowPendingApproval), models.EventApproved, wfState("approved", models.WorkflowApproved)},
		{"payment", wfState("approved", models.WorkflowApproved), models.EventPaymentReceived, wfState("approved", models.WorkflowPaymentReceived)},
		{"final confirm", wfState("approved", models.WorkflowPaymentReceived), models.EventClientConfirmed, wfState("confirmed", models.WorkflowConfirmed)},
		{"reject from draft", wfState("draft", models.WorkflowDraft), models.EventRejected, wfState("rejected", models.WorkflowRejected)},
		{"reject from approval", wfState("pending_approval", models.WorkflowPendingApproval), models.EventRejected, wfState("rejected", models.WorkflowRejected)},
		{"reject after payment", wfState("approved", models.WorkflowPaymentReceived), models.EventRejected, wfState("rejected", models.WorkflowRejected)},
		{"cancel from approved", wfState("approved", models.WorkflowApproved), models.EventCancelled, wfState("cancelled", models.WorkflowCancelled)},
		{"cancel from pcc", wfState("draft", models.WorkflowPendingClientConfirmation), models.EventCancelled, wfState("cancelled", models.WorkflowCancelled)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(tc.current, tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransitionExhaustiveRejections(t *testing.T) {
	allowed := map[models.WorkflowStatus][]models.WorkflowEvent{
		models.WorkflowDraft:                     {models.EventClientConfirmed, models.EventSubmittedForApproval, models.EventRejected, models.EventCancelled},
		models.WorkflowPendingClientConfirmation: {models.EventSubmittedForApproval, models.EventRejected, models.EventCancelled},
		models.WorkflowPendingApproval:           {models.EventApproved, models.EventRejected, models.EventCancelled},
		models.WorkflowApproved:                  {models.EventPaymentReceived, models.EventRejected, models.EventCancelled},
		models.WorkflowPaymentReceived:           {models.EventClientConfirmed, models.EventRejected, models.EventCancelled},
	}
	isAllowed := func(status models.WorkflowStatus, event models.WorkflowEvent) bool {
		for _, e := range allowed[status] {
			if e == event {
				return true
			}
		}
		return false
	}

	for _, status := range models.WorkflowStatuses {
		for _, event := range models.WorkflowEvents {
			current := wfState("draft", status)
			next, err := Transition(current, event)
			if isAllowed(status, event) {
				require.NoError(t, err, "%s -> %s", status, event)
				continue
			}
			require.Error(t, err, "%s -> %s", status, event)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			var invalid *InvalidTransitionError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, status, invalid.Stage)
			assert.Equal(t, event, invalid.Event)
			assert.Contains(t, err.Error(), string(status))
			assert.Contains(t, err.Error(), string(event))
			assert.Equal(t, current, next)
		}
	}
}

func TestTransitionRepeatedEventIsRejected(t *testing.T) {
	next, err := Transition(wfState("pending_approval", models.WorkflowPendingApproval), models.EventApproved)
	require.NoError(t, err)

	_, err = Transition(next, models.EventApproved)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionApprovedFromDraftIsInvalid(t *testing.T) {
	_, err := Transition(wfState("draft", models.WorkflowDraft), models.EventApproved)
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.WorkflowDraft, invalid.Stage)
	assert.Equal(t, models.EventApproved, invalid.Event)
}

func TestTransitionUnknownInputs(t *testing.T) {
	_, err := Transition(wfState("draft", models.WorkflowStatus("on_hold")), models.EventCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Transition(wfState("draft", models.WorkflowDraft), models.WorkflowEvent("archived"))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStageEntryResolver(t *testing.T) {
	verbal := t0.Add(24 * time.Hour)
	paid := t0.Add(72 * time.Hour)
	submitted := t0.Add(36 * time.Hour)
	decided := t0.Add(48 * time.Hour)
	lookup := &approvalLookupStub{
		latest:   map[int64]*models.QuotationApproval{3: {CreatedAt: submitted}},
		approved: map[int64]*models.QuotationApproval{4: {ApprovalDate: &decided}, 5: {}},
	}
	resolver := NewStageEntryResolver(lookup, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		q    models.Quotation
		want time.Time
	}{
		{"draft", models.Quotation{ID: 1, WorkflowStatus: models.WorkflowDraft, CreatedAt: t0}, t0},
		{"pcc stamped", models.Quotation{ID: 2, WorkflowStatus: models.WorkflowPendingClientConfirmation, CreatedAt: t0, ClientVerbalConfirmationDate: &verbal}, verbal},
		{"pcc unstamped", models.Quotation{ID: 2, WorkflowStatus: models.WorkflowPendingClientConfirmation, CreatedAt: t0}, t0},
		{"pending approval row", models.Quotation{ID: 3, WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0}, submitted},
		{"pending approval no rows", models.Quotation{ID: 9, WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0}, t0},
		{"approved row", models.Quotation{ID: 4, WorkflowStatus: models.WorkflowApproved, CreatedAt: t0}, decided},
		{"approved row without date", models.Quotation{ID: 5, WorkflowStatus: models.WorkflowApproved, CreatedAt: t0}, t0},
		{"payment stamped", models.Quotation{ID: 6, WorkflowStatus: models.WorkflowPaymentReceived, CreatedAt: t0, PaymentReceivedDate: &paid}, paid},
		{"payment unstamped", models.Quotation{ID: 6, WorkflowStatus: models.WorkflowPaymentReceived, CreatedAt: t0}, t0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.q
			assert.Equal(t, tc.want, resolver.Resolve(ctx, &q))
		})
	}
}

func TestStageEntryResolverLookupFailureFallsBack(t *testing.T) {
	resolver := NewStageEntryResolver(&approvalLookupStub{err: errors.New("connection reset")}, nil)
	q := &models.Quotation{ID: 1, WorkflowStatus: models.WorkflowPendingApproval, CreatedAt: t0}
	assert.Equal(t, t0, resolver.Resolve(context.Background(), q))

	q.WorkflowStatus = models.WorkflowApproved
	assert.Equal(t, t0, resolver.Resolve(context.Background(), q))

	nilResolver := NewStageEntryResolver(nil, nil)
	assert.Equal(t, t0, nilResolver.Resolve(context.Background(), q))
}

func TestDaysInStageFloors(t *testing.T) {
	assert.Equal(t, 2, DaysInStage(t0, t0.Add(48*time.Hour)))
	assert.Equal(t, 1, DaysInStage(t0, t0.Add(47*time.Hour)))
	assert.Equal(t, 0, DaysInStage(t0, t0.Add(23*time.Hour+59*time.Minute)))
	assert.Equal(t, -1, DaysInStage(t0, t0.Add(-time.Hour)))
}

func TestEvaluateOverdueBoundary(t *testing.T) {
	q := &models.Quotation{ID: 1, WorkflowStatus: models.WorkflowPendingApproval, ClientName: "Anika", TotalAmount: 120000}

	hit, overdue := EvaluateOverdue(q, t0, t0.Add(48*time.Hour))
	require.True(t, overdue)
	assert.Equal(t, 2, hit.DaysOverdue)
	assert.Equal(t, 2, hit.ThresholdDays)

	_, overdue = EvaluateOverdue(q, t0, t0.Add(47*time.Hour))
	assert.False(t, overdue)
}

func TestEvaluateOverdueSkipsStatusesWithoutThreshold(t *testing.T) {
	for _, status := range []models.WorkflowStatus{models.WorkflowConfirmed, models.WorkflowRejected, models.WorkflowCancelled, "on_hold"} {
		q := &models.Quotation{ID: 1, WorkflowStatus: status}
		_, overdue := EvaluateOverdue(q, t0, t0.Add(365*24*time.Hour))
		assert.False(t, overdue, status)
	}
}

func TestDefaultPriorityPolicy(t *testing.T) {
	assert.Equal(t, models.PriorityHigh, DefaultPriorityPolicy(5, 5))
	assert.Equal(t, models.PriorityHigh, DefaultPriorityPolicy(9, 5))
	assert.Equal(t, models.PriorityUrgent, DefaultPriorityPolicy(10, 5))
	assert.Equal(t, models.PriorityUrgent, DefaultPriorityPolicy(3, 1))
}

func TestBuildOverdueNotification(t *testing.T) {
	item := models.OverdueQuotation{
		QuotationID:     12,
		QuotationNumber: "Q-2024-012",
		WorkflowStatus:  models.WorkflowDraft,
		DaysOverdue:     6,
		ThresholdDays:   5,
		ClientName:      "Meera & Arjun",
		TotalAmount:     350000,
		Recipient:       "rep-7",
	}
	req := BuildOverdueNotification(item, nil)
	assert.Equal(t, "rep-7", req.Recipient)
	assert.Equal(t, models.NotificationOverdue, req.Type)
	assert.Equal(t, models.PriorityHigh, req.Priority)
	assert.Equal(t, "Meera & Arjun quotation overdue by 6 day(s) in draft stage.", req.Message)
	require.NotNil(t, req.QuotationID)
	assert.Equal(t, int64(12), *req.QuotationID)
	assert.Equal(t, "/sales/quotations?focus=12", req.ActionURL)
	assert.Equal(t, map[string]interface{}{
		"days_overdue":  6,
		"client_name":   "Meera & Arjun",
		"value_at_risk": 350000.0,
	}, req.Metadata)

	lowPolicy := func(int, int) models.NotificationPriority { return models.PriorityLow }
	assert.Equal(t, models.PriorityLow, BuildOverdueNotification(item, lowPolicy).Priority)
}
