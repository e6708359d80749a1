package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func measured(id string, limit, spend float64, threshold int) model.NormalizedBudget {
	b := tracker.NormalizeCustom(model.BudgetRecord{
		ID:             id,
		UserID:         "u-1",
		Name:           "Budget " + id,
		MonthlyLimit:   limit,
		AlertThreshold: threshold,
	})
	u := model.ComputeUtilization(spend, limit, threshold)
	b.Utilization = &u
	return b
}

func TestEvaluateBudget_Severity(t *testing.T) {
	tests := []struct {
		name      string
		spend     float64
		threshold int
		severity  model.Severity
		alertType model.AlertType
	}{
		{"at threshold", 80, 80, model.SeverityLow, model.AlertThresholdReached},
		{"medium margin", 85, 80, model.SeverityMedium, model.AlertThresholdReached},
		{"high margin", 96, 80, model.SeverityHigh, model.AlertThresholdReached},
		{"exceeded", 100, 80, model.SeverityCritical, model.AlertBudgetExceeded},
		{"exceeded regardless of threshold", 100, 100, model.SeverityCritical, model.AlertBudgetExceeded},
		{"over limit", 130, 50, model.SeverityCritical, model.AlertBudgetExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := tracker.NewAlertEngine(newMemStore(), testLogger())
			alert, err := engine.EvaluateBudget(context.Background(), measured("b-1", 100, tt.spend, tt.threshold), false)
			require.NoError(t, err)
			require.NotNil(t, alert)
			assert.Equal(t, tt.severity, alert.Severity)
			assert.Equal(t, tt.alertType, alert.AlertType)
		})
	}
}

func TestEvaluateBudget_BelowThreshold(t *testing.T) {
	store := newMemStore()
	engine := tracker.NewAlertEngine(store, testLogger())

	alert, err := engine.EvaluateBudget(context.Background(), measured("b-1", 100, 79.99, 80), false)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Zero(t, store.records)
}

func TestEvaluateBudget_NoUtilization(t *testing.T) {
	b := measured("b-1", 100, 95, 80)
	b.Utilization = nil

	alert, err := tracker.NewAlertEngine(newMemStore(), testLogger()).EvaluateBudget(context.Background(), b, true)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestEvaluateBudget_AlertFields(t *testing.T) {
	clk := newClock(testNow)
	engine := tracker.NewAlertEngine(newMemStore(), testLogger()).WithClock(clk.Now)

	b := measured("b-1", 1000, 860, 80)
	b.Services = []string{"EC2"}
	b.Notifications = model.NotificationConfig{Chat: true, WebhookURL: "https://hooks.example.com/x"}

	alert, err := engine.EvaluateBudget(context.Background(), b, false)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "b-1", alert.BudgetID)
	assert.Equal(t, "Budget b-1", alert.BudgetName)
	assert.Equal(t, model.BudgetTypeCustom, alert.BudgetType)
	assert.Equal(t, 80, alert.Threshold)
	assert.InDelta(t, 86.0, alert.CurrentUtilization, 0.001)
	assert.InDelta(t, 860.0, alert.CurrentSpend, 0.001)
	assert.InDelta(t, 140.0, alert.RemainingBudget, 0.001)
	assert.Equal(t, "u-1", alert.UserID)
	assert.Equal(t, []string{"EC2"}, alert.Services)
	assert.True(t, alert.Notifications.Chat)
	assert.Equal(t, testNow, alert.Timestamp)
}

func TestCheckThresholds_SuppressionWindow(t *testing.T) {
	store := newTestStore(t)
	clk := newClock(testNow)
	engine := tracker.NewAlertEngine(store, testLogger()).WithClock(clk.Now)
	ctx := context.Background()
	budgets := []model.NormalizedBudget{measured("b-1", 100, 85, 80)}

	first := engine.CheckThresholds(ctx, budgets, false)
	require.Len(t, first, 1)

	last, err := store.GetLastAlertSent(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(testNow))

	clk.Advance(time.Hour)
	assert.Empty(t, engine.CheckThresholds(ctx, budgets, false))

	clk.Advance(22*time.Hour + 59*time.Minute)
	assert.Empty(t, engine.CheckThresholds(ctx, budgets, false))

	clk.Advance(time.Minute)
	again := engine.CheckThresholds(ctx, budgets, false)
	require.Len(t, again, 1)

	last, err = store.GetLastAlertSent(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, last.Equal(testNow.Add(24*time.Hour)))
}

func TestCheckThresholds_ForceBypassesSuppression(t *testing.T) {
	store := newMemStore()
	engine := tracker.NewAlertEngine(store, testLogger())
	ctx := context.Background()

	budgets := []model.NormalizedBudget{measured("b-1", 100, 85, 80), measured("b-2", 100, 10, 80)}
	require.Len(t, engine.CheckThresholds(ctx, budgets, false), 1)

	for range 3 {
		forced := engine.CheckThresholds(ctx, budgets, true)
		require.Len(t, forced, 2)
		assert.Equal(t, model.SeverityInfo, forced[1].Severity)
		assert.Equal(t, model.AlertThresholdReached, forced[1].AlertType)
	}

	// Forced alerts are not recorded.
	assert.Equal(t, 1, store.records)
}

func TestCheckThresholds_LostRaceDropsAlert(t *testing.T) {
	store := newMemStore()
	store.recordErr = model.ErrConflict
	engine := tracker.NewAlertEngine(store, testLogger())

	alerts := engine.CheckThresholds(context.Background(), []model.NormalizedBudget{measured("b-1", 100, 90, 80)}, false)
	assert.Empty(t, alerts)
}

func TestCheckThresholds_ConcurrentRunsAlertOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	budgets := []model.NormalizedBudget{measured("b-1", 100, 90, 80)}

	const runs = 6
	results := make(chan int, runs)
	for range runs {
		go func() {
			engine := tracker.NewAlertEngine(store, testLogger())
			results <- len(engine.CheckThresholds(ctx, budgets, false))
		}()
	}

	total := 0
	for range runs {
		total += <-results
	}
	assert.Equal(t, 1, total)
}

func TestCheckThresholds_ReadFailureFailsOpen(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("connection reset")
	store.lastSent["b-1"] = testNow
	engine := tracker.NewAlertEngine(store, testLogger()).WithClock(newClock(testNow).Now)

	alerts := engine.CheckThresholds(context.Background(), []model.NormalizedBudget{measured("b-1", 100, 90, 80)}, false)
	require.Len(t, alerts, 1)
}

func TestCheckThresholds_WriteFailureStillAlerts(t *testing.T) {
	store := newMemStore()
	store.recordErr = errors.New("disk I/O error")
	engine := tracker.NewAlertEngine(store, testLogger())

	alerts := engine.CheckThresholds(context.Background(), []model.NormalizedBudget{measured("b-1", 100, 90, 80)}, false)
	require.Len(t, alerts, 1)
}

func TestCheckThresholds_InvalidBudgetSkipped(t *testing.T) {
	engine := tracker.NewAlertEngine(newMemStore(), testLogger())

	bad := measured("", 100, 95, 80)
	good := measured("b-2", 100, 95, 80)
	alerts := engine.CheckThresholds(context.Background(), []model.NormalizedBudget{bad, good}, false)
	require.Len(t, alerts, 1)
	assert.Equal(t, "b-2", alerts[0].BudgetID)
}
