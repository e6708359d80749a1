package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
)

// SuppressionWindow is the minimum time between two alerts for one budget.
const SuppressionWindow = 24 * time.Hour

// AlertEngine decides which budgets alert and records when they did.
type AlertEngine struct {
	store  storage.BudgetStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAlertEngine creates an alert engine.
func NewAlertEngine(store storage.BudgetStore, logger *slog.Logger) *AlertEngine {
	return &AlertEngine{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source used for suppression and timestamps.
func (e *AlertEngine) WithClock(now func() time.Time) *AlertEngine {
	e.now = now
	return e
}

// CheckThresholds evaluates every budget and returns the alerts to deliver,
// in the order of budgets. A budget that fails evaluation is skipped.
func (e *AlertEngine) CheckThresholds(ctx context.Context, budgets []model.NormalizedBudget, force bool) []model.Alert {
	var out []model.Alert
	for _, b := range budgets {
		alert, err := e.EvaluateBudget(ctx, b, force)
		if err != nil {
			e.logger.Error("evaluate budget", "budget_id", b.ID, "budget", b.Name, "error", err)
			continue
		}
		if alert != nil {
			out = append(out, *alert)
		}
	}

	e.logger.Info("thresholds checked",
		"budgets", len(budgets),
		"alerts", len(out),
		"force", force,
	)
	return out
}

// EvaluateBudget returns the alert for b, or nil when b does not alert.
//
// Unless force is set, the alert is suppressed within SuppressionWindow of the
// previous one, and the send time is recorded before the alert is returned.
// The record is conditional on the previously read send time; when another
// run recorded first, the alert is dropped.
func (e *AlertEngine) EvaluateBudget(ctx context.Context, b model.NormalizedBudget, force bool) (*model.Alert, error) {
	if b.ID == "" {
		return nil, fmt.Errorf("%w: budget has no id", model.ErrInvalidInput)
	}
	if b.Utilization == nil {
		return nil, nil
	}

	util := b.Utilization.Utilization
	if util < float64(b.AlertThreshold) && !force {
		return nil, nil
	}

	alertType := model.AlertThresholdReached
	if util >= 100 {
		alertType = model.AlertBudgetExceeded
	}

	now := e.now()
	var prev *time.Time
	readOK := true
	if !force {
		allowed, last, err := e.ShouldSendAlert(ctx, b.ID)
		if err != nil {
			readOK = false
		}
		if !allowed {
			e.logger.Debug("alert suppressed", "budget_id", b.ID, "last_alert_sent", last)
			return nil, nil
		}
		prev = last
	}

	alert := buildAlert(b, alertType, now)

	if !force {
		err := e.store.RecordAlertSent(ctx, b.ID, alertType, now, prev)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrConflict) && readOK:
			e.logger.Info("alert already recorded by another run", "budget_id", b.ID)
			return nil, nil
		default:
			e.logger.Error("record alert sent", "budget_id", b.ID, "error", err)
		}
	}

	return &alert, nil
}

// ShouldSendAlert reports whether budgetID is outside its suppression window,
// along with the last recorded send time. A failed lookup allows the alert and
// is returned as err.
func (e *AlertEngine) ShouldSendAlert(ctx context.Context, budgetID string) (bool, *time.Time, error) {
	last, err := e.store.GetLastAlertSent(ctx, budgetID)
	if err != nil {
		e.logger.Warn("read last alert sent, allowing alert", "budget_id", budgetID, "error", err)
		return true, nil, err
	}
	if last == nil {
		return true, nil, nil
	}
	return e.now().Sub(*last) >= SuppressionWindow, last, nil
}

func buildAlert(b model.NormalizedBudget, alertType model.AlertType, now time.Time) model.Alert {
	u := b.Utilization
	return model.Alert{
		BudgetID:           b.ID,
		BudgetName:         b.Name,
		BudgetType:         b.Type,
		AlertType:          alertType,
		Threshold:          b.AlertThreshold,
		CurrentUtilization: u.Utilization,
		CurrentSpend:       u.CurrentSpend,
		BudgetLimit:        b.Limit,
		RemainingBudget:    u.RemainingBudget,
		Currency:           b.Currency,
		Severity:           model.SeverityFor(u.Utilization, b.AlertThreshold),
		Services:           b.Services,
		Tags:               b.Tags,
		UserID:             b.OwnerUserID,
		Notifications:      b.Notifications,
		Timestamp:          now.UTC(),
	}
}
