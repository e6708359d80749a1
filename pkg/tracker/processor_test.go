package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []model.Alert
	fail    map[string]bool
	panicOn map[string]bool
}

func (d *fakeDispatcher) SendAlert(_ context.Context, alert model.Alert) map[model.Channel]model.NotificationResult {
	if d.panicOn[alert.BudgetID] {
		panic("transport exploded")
	}
	d.mu.Lock()
	d.sent = append(d.sent, alert)
	d.mu.Unlock()

	email := model.NotificationResult{Channel: model.ChannelEmail, Attempted: true, Success: true}
	if d.fail[alert.BudgetID] {
		email.Success = false
		email.Error = "smtp timeout"
	}
	return map[model.Channel]model.NotificationResult{
		model.ChannelConsole: {Channel: model.ChannelConsole, Attempted: true, Success: true},
		model.ChannelEmail:   email,
	}
}

type countingAggregator struct {
	inner tracker.Aggregator
	calls int
	err   error
}

func (a *countingAggregator) AggregateAllBudgets(ctx context.Context) ([]model.NormalizedBudget, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.inner.AggregateAllBudgets(ctx)
}

type panickingEvaluator struct{}

func (panickingEvaluator) CheckThresholds(context.Context, []model.NormalizedBudget, bool) []model.Alert {
	panic("bad budget shape")
}

type recordedRun struct {
	mode    string
	summary *model.RunSummary
	err     error
}

type fakeRecorder struct {
	runs []recordedRun
}

func (r *fakeRecorder) RecordRun(mode string, summary *model.RunSummary, err error) {
	r.runs = append(r.runs, recordedRun{mode, summary, err})
}

type fakeUsers struct {
	users map[string]*model.User
	calls int
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*model.User, error) {
	f.calls++
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, model.ErrNotFound
}

type processorFixture struct {
	store      *memStore
	costs      *fakeCosts
	aggregator *countingAggregator
	dispatcher *fakeDispatcher
	recorder   *fakeRecorder
	users      *fakeUsers
	processor  *tracker.AlertProcessor
}

func newTestProcessor(t *testing.T, store *memStore, spend map[string]float64) *processorFixture {
	t.Helper()
	f := &processorFixture{
		store:      store,
		costs:      &fakeCosts{spend: spend},
		dispatcher: &fakeDispatcher{},
		recorder:   &fakeRecorder{},
		users: &fakeUsers{users: map[string]*model.User{
			"u-1": {ID: "u-1", Email: "owner@example.com", IsActive: true},
		}},
	}
	f.aggregator = &countingAggregator{inner: newTestAggregator(store, f.costs, nil)}
	engine := tracker.NewAlertEngine(store, testLogger())
	f.processor = tracker.NewAlertProcessor(f.aggregator, engine, f.dispatcher, store, f.users,
		tracker.ProcessorConfig{DispatchConcurrency: 2}, testLogger()).WithRecorder(f.recorder)
	return f
}

func TestRunScheduled_Summary(t *testing.T) {
	store := newMemStore(
		budget("b-1", "u-1", 100, "svc-a"),
		budget("b-2", "u-1", 100, "svc-b"),
		budget("b-3", "u-2", 100, "svc-c"),
	)
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 85, "svc-b": 20, "svc-c": 110})

	summary, err := f.processor.RunScheduled(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.BudgetsProcessed)
	assert.Equal(t, 2, summary.AlertsTriggered)
	assert.Equal(t, 2, summary.NotificationsSent)
	assert.Zero(t, summary.NotificationsFailed)
	assert.GreaterOrEqual(t, summary.ProcessingTimeMs, int64(0))

	// Most severe first.
	require.Len(t, summary.Alerts, 2)
	assert.Equal(t, "b-3", summary.Alerts[0].BudgetID)
	assert.Equal(t, model.SeverityCritical, summary.Alerts[0].Severity)
	assert.Equal(t, "b-1", summary.Alerts[1].BudgetID)
	assert.Equal(t, "owner@example.com", summary.Alerts[1].UserEmail)
	assert.Empty(t, summary.Alerts[0].UserEmail)

	require.Len(t, summary.Budgets, 3)
	assert.True(t, summary.Budgets[0].AlertTriggered)
	assert.False(t, summary.Budgets[1].AlertTriggered)
	assert.Equal(t, model.StatusExceeded, summary.Budgets[2].Status)

	require.Len(t, summary.Notifications, 2)
	assert.Equal(t, model.DeliverySent, summary.Notifications[0].Status)
	assert.Equal(t, map[string]float64{"b-1": 85, "b-2": 20, "b-3": 110}, store.spending)

	require.Len(t, f.recorder.runs, 1)
	assert.Equal(t, tracker.ModeScheduled, f.recorder.runs[0].mode)
	assert.NoError(t, f.recorder.runs[0].err)
}

func TestRunScheduled_TwoPassesSuppressRepeat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &model.BudgetRecord{UserID: "u-1", Name: "Team", MonthlyLimit: 100, AlertThreshold: 80, IsActive: true, Services: []string{"svc-a"}}
	require.NoError(t, store.SetBudget(ctx, rec))

	costs := &fakeCosts{spend: map[string]float64{"svc-a": 0}}
	dispatcher := &fakeDispatcher{}
	agg := tracker.NewBudgetAggregator(store, costs, nil, tracker.AggregatorConfig{}, testLogger())
	p := tracker.NewAlertProcessor(agg, tracker.NewAlertEngine(store, testLogger()), dispatcher, store, store,
		tracker.ProcessorConfig{}, testLogger())

	summary, err := p.RunScheduled(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.AlertsTriggered)

	costs.setSpend("svc-a", 85)
	summary, err = p.RunScheduled(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AlertsTriggered)
	assert.Equal(t, model.AlertThresholdReached, summary.Alerts[0].AlertType)
	assert.Equal(t, model.SeverityMedium, summary.Alerts[0].Severity)

	last, err := store.GetLastAlertSent(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, last)

	summary, err = p.RunScheduled(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.AlertsTriggered)
	assert.Len(t, dispatcher.sent, 1)

	stored, err := store.GetBudget(ctx, "u-1", rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 85.0, stored.TotalSpentThisMonth, 0.001)
}

func TestRunScheduled_AggregationFailure(t *testing.T) {
	f := newTestProcessor(t, newMemStore(), nil)
	f.aggregator.err = errors.New("database is locked")

	summary, err := f.processor.RunScheduled(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "aggregate budgets")

	require.Len(t, f.recorder.runs, 1)
	assert.Error(t, f.recorder.runs[0].err)
}

func TestRunScheduled_EvaluationPanicIsRunError(t *testing.T) {
	store := newMemStore(budget("b-1", "u-1", 100))
	agg := newTestAggregator(store, &fakeCosts{spend: map[string]float64{}}, nil)
	p := tracker.NewAlertProcessor(agg, panickingEvaluator{}, &fakeDispatcher{}, store, nil,
		tracker.ProcessorConfig{}, testLogger())

	_, err := p.RunScheduled(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluate budgets")
}

func TestRunScheduled_DispatchFailuresContinue(t *testing.T) {
	store := newMemStore(
		budget("b-1", "u-1", 100, "svc-a"),
		budget("b-2", "u-1", 100, "svc-b"),
		budget("b-3", "u-1", 100, "svc-c"),
	)
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 90, "svc-b": 90, "svc-c": 90})
	f.dispatcher.panicOn = map[string]bool{"b-1": true}
	f.dispatcher.fail = map[string]bool{"b-2": true}

	summary, err := f.processor.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.AlertsTriggered)
	assert.Equal(t, 1, summary.NotificationsSent)
	assert.Equal(t, 2, summary.NotificationsFailed)

	byBudget := map[string]model.AlertDelivery{}
	for _, d := range summary.Notifications {
		byBudget[d.BudgetID] = d
	}
	assert.Equal(t, model.DeliveryFailed, byBudget["b-1"].Status)
	assert.Contains(t, byBudget["b-1"].Error, "panicked")
	assert.Equal(t, model.DeliveryFailed, byBudget["b-2"].Status)
	assert.Equal(t, "email: smtp timeout", byBudget["b-2"].Error)
	assert.Equal(t, model.DeliverySent, byBudget["b-3"].Status)
}

func TestRunManual_OtherUsersBudgetIsNotFound(t *testing.T) {
	store := newMemStore(budget("b-1", "u-2", 100, "svc-a"))
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 90})

	_, err := f.processor.RunManual(context.Background(), tracker.ManualRequest{BudgetID: "b-1", ForceAlert: true}, "u-1")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Zero(t, f.aggregator.calls)
	assert.Empty(t, f.dispatcher.sent)
}

func TestRunManual_InvalidRequest(t *testing.T) {
	f := newTestProcessor(t, newMemStore(), nil)

	_, err := f.processor.RunManual(context.Background(), tracker.ManualRequest{}, "")
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.processor.RunManual(context.Background(), tracker.ManualRequest{BudgetID: " b-1"}, "u-1")
	require.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Zero(t, f.aggregator.calls)
	assert.Zero(t, f.store.getCalls)
}

func TestRunManual_ForceSingleBudget(t *testing.T) {
	store := newMemStore(
		budget("b-1", "u-1", 100, "svc-a"),
		budget("b-2", "u-1", 100, "svc-b"),
		budget("b-3", "u-2", 100, "svc-c"),
	)
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 10, "svc-b": 10, "svc-c": 99})

	summary, err := f.processor.RunManual(context.Background(), tracker.ManualRequest{BudgetID: "b-1", ForceAlert: true}, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", summary.UserID)
	assert.True(t, summary.ForceAlert)
	assert.Equal(t, 1, summary.BudgetsProcessed)
	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, "b-1", summary.Alerts[0].BudgetID)
	assert.Equal(t, model.SeverityInfo, summary.Alerts[0].Severity)
	assert.Equal(t, 1, summary.NotificationsSent)

	// Forced runs leave suppression state untouched.
	assert.Zero(t, store.records)

	require.Len(t, f.recorder.runs, 1)
	assert.Equal(t, tracker.ModeManual, f.recorder.runs[0].mode)
}

func TestRunManual_AllOwnBudgets(t *testing.T) {
	store := newMemStore(
		budget("b-1", "u-1", 100, "svc-a"),
		budget("b-2", "u-2", 100, "svc-b"),
	)
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 95, "svc-b": 95})

	summary, err := f.processor.RunManual(context.Background(), tracker.ManualRequest{}, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BudgetsProcessed)
	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, "b-1", summary.Alerts[0].BudgetID)
}

func TestRunManual_TestModeSkipsDispatch(t *testing.T) {
	store := newMemStore(budget("b-1", "u-1", 100, "svc-a"))
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 120})

	summary, err := f.processor.RunManual(context.Background(), tracker.ManualRequest{TestMode: true}, "u-1")
	require.NoError(t, err)
	assert.True(t, summary.TestMode)
	assert.Equal(t, 1, summary.AlertsTriggered)
	assert.Empty(t, summary.Notifications)
	assert.Zero(t, summary.NotificationsSent)
	assert.Empty(t, f.dispatcher.sent)
}

func TestRunManual_InactiveBudgetIsNotFound(t *testing.T) {
	inactive := budget("b-1", "u-1", 100, "svc-a")
	inactive.IsActive = false
	f := newTestProcessor(t, newMemStore(inactive), map[string]float64{"svc-a": 90})

	_, err := f.processor.RunManual(context.Background(), tracker.ManualRequest{BudgetID: "b-1"}, "u-1")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 1, f.aggregator.calls)
}

func TestRunScheduled_OwnerLookupCached(t *testing.T) {
	store := newMemStore(
		budget("b-1", "u-1", 100, "svc-a"),
		budget("b-2", "u-1", 100, "svc-b"),
		budget("b-3", "u-9", 100, "svc-c"),
	)
	f := newTestProcessor(t, store, map[string]float64{"svc-a": 90, "svc-b": 90, "svc-c": 90})

	summary, err := f.processor.RunScheduled(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Alerts, 3)
	assert.Equal(t, 2, f.users.calls)
	assert.Equal(t, "owner@example.com", summary.Alerts[0].UserEmail)
	assert.Empty(t, summary.Alerts[2].UserEmail)
}

func TestRunScheduled_ProcessingTime(t *testing.T) {
	store := newMemStore()
	clk := newClock(testNow)
	agg := &steppingAggregator{clock: clk, step: 1500 * time.Millisecond}
	p := tracker.NewAlertProcessor(agg, tracker.NewAlertEngine(store, testLogger()), &fakeDispatcher{}, store, nil,
		tracker.ProcessorConfig{}, testLogger()).WithClock(clk.Now)

	summary, err := p.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1500), summary.ProcessingTimeMs)
}

type steppingAggregator struct {
	clock *clock
	step  time.Duration
}

func (a *steppingAggregator) AggregateAllBudgets(context.Context) ([]model.NormalizedBudget, error) {
	a.clock.Advance(a.step)
	return nil, nil
}

var _ storage.BudgetStore = (*memStore)(nil)
