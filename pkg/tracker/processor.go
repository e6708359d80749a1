package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// Run modes reported to a RunRecorder.
const (
	ModeScheduled = "scheduled"
	ModeManual    = "manual"
)

// Aggregator produces the normalized budgets of a run.
type Aggregator interface {
	AggregateAllBudgets(ctx context.Context) ([]model.NormalizedBudget, error)
}

// Evaluator selects the budgets that alert.
type Evaluator interface {
	CheckThresholds(ctx context.Context, budgets []model.NormalizedBudget, force bool) []model.Alert
}

// Dispatcher delivers one alert on its channels.
type Dispatcher interface {
	SendAlert(ctx context.Context, alert model.Alert) map[model.Channel]model.NotificationResult
}

// RunRecorder observes finished runs. err is nil for successful runs.
type RunRecorder interface {
	RecordRun(mode string, summary *model.RunSummary, err error)
}

// ManualRequest is a user-triggered run.
type ManualRequest struct {
	// BudgetID restricts the run to one of the requester's stored budgets.
	BudgetID string `json:"budgetId,omitempty"`
	// ForceAlert bypasses both the threshold and suppression.
	ForceAlert bool `json:"forceAlert,omitempty"`
	// TestMode evaluates without dispatching notifications.
	TestMode bool `json:"testMode,omitempty"`
}

// ValidateManualRequest rejects malformed manual runs before any processing.
func ValidateManualRequest(req ManualRequest, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: requesting user is required", model.ErrInvalidInput)
	}
	if req.BudgetID != strings.TrimSpace(req.BudgetID) {
		return fmt.Errorf("%w: budget id %q has surrounding whitespace", model.ErrInvalidInput, req.BudgetID)
	}
	if len(req.BudgetID) > 256 {
		return fmt.Errorf("%w: budget id too long", model.ErrInvalidInput)
	}
	return nil
}

// ProcessorConfig tunes alert delivery.
type ProcessorConfig struct {
	// DispatchConcurrency bounds alerts delivered at once. Zero or one
	// delivers sequentially.
	DispatchConcurrency int
}

// AlertProcessor runs the aggregate, evaluate and dispatch stages and
// summarizes the outcome.
type AlertProcessor struct {
	aggregator Aggregator
	engine     Evaluator
	dispatcher Dispatcher
	store      storage.BudgetStore
	users      storage.UserDirectory
	recorder   RunRecorder
	cfg        ProcessorConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewAlertProcessor creates a processor. users may be nil, in which case
// alerts carry no owner email.
func NewAlertProcessor(aggregator Aggregator, engine Evaluator, dispatcher Dispatcher, store storage.BudgetStore, users storage.UserDirectory, cfg ProcessorConfig, logger *slog.Logger) *AlertProcessor {
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = 1
	}
	return &AlertProcessor{
		aggregator: aggregator,
		engine:     engine,
		dispatcher: dispatcher,
		store:      store,
		users:      users,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// WithRecorder attaches a run recorder.
func (p *AlertProcessor) WithRecorder(r RunRecorder) *AlertProcessor {
	p.recorder = r
	return p
}

// WithClock replaces the time source used for run timing.
func (p *AlertProcessor) WithClock(now func() time.Time) *AlertProcessor {
	p.now = now
	return p
}

type runOptions struct {
	mode     string
	userID   string
	budgetID string
	force    bool
	testMode bool
}

// RunScheduled processes every active budget.
func (p *AlertProcessor) RunScheduled(ctx context.Context) (*model.RunSummary, error) {
	return p.run(ctx, runOptions{mode: ModeScheduled})
}

// RunManual processes the requester's budgets, or the single budget named by
// req.BudgetID. It returns model.ErrNotFound when that budget does not belong
// to userID, before any budget is aggregated.
func (p *AlertProcessor) RunManual(ctx context.Context, req ManualRequest, userID string) (*model.RunSummary, error) {
	if err := ValidateManualRequest(req, userID); err != nil {
		return nil, err
	}

	if req.BudgetID != "" {
		if _, err := p.store.GetBudget(ctx, userID, req.BudgetID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("budget %q: %w", req.BudgetID, model.ErrNotFound)
			}
			return nil, fmt.Errorf("get budget: %w", err)
		}
	}

	return p.run(ctx, runOptions{
		mode:     ModeManual,
		userID:   userID,
		budgetID: req.BudgetID,
		force:    req.ForceAlert,
		testMode: req.TestMode,
	})
}

func (p *AlertProcessor) run(ctx context.Context, opts runOptions) (summary *model.RunSummary, err error) {
	start := p.now()
	summary = &model.RunSummary{
		RunID:      uuid.NewString(),
		UserID:     opts.userID,
		TestMode:   opts.testMode,
		ForceAlert: opts.force,
		Budgets:    []model.BudgetReport{},
		Alerts:     []model.Alert{},
	}
	defer func() {
		summary.ProcessingTimeMs = p.now().Sub(start).Milliseconds()
		if p.recorder != nil {
			p.recorder.RecordRun(opts.mode, summary, err)
		}
		if err != nil {
			p.logger.Error("alert run failed", "run_id", summary.RunID, "mode", opts.mode, "error", err)
			summary = nil
		}
	}()

	budgets, err := p.aggregator.AggregateAllBudgets(ctx)
	if err != nil {
		return summary, fmt.Errorf("aggregate budgets: %w", err)
	}

	if opts.mode == ModeManual {
		budgets = ownedBudgets(budgets, opts.userID, opts.budgetID)
		if opts.budgetID != "" && len(budgets) == 0 {
			return summary, fmt.Errorf("budget %q is not active: %w", opts.budgetID, model.ErrNotFound)
		}
	}
	summary.BudgetsProcessed = len(budgets)
	p.saveSpending(ctx, budgets)

	alerts, err := p.evaluate(ctx, budgets, opts.force)
	if err != nil {
		return summary, fmt.Errorf("evaluate budgets: %w", err)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.Priority() < alerts[j].Severity.Priority()
	})
	p.attachEmails(ctx, alerts)

	summary.Alerts = alerts
	summary.AlertsTriggered = len(alerts)
	summary.Budgets = budgetReports(budgets, alerts)

	if !opts.testMode {
		summary.Notifications = p.dispatchAll(ctx, alerts)
		for _, d := range summary.Notifications {
			if d.Status == model.DeliverySent {
				summary.NotificationsSent++
			} else {
				summary.NotificationsFailed++
			}
		}
	}

	p.logger.Info("alert run complete",
		"run_id", summary.RunID,
		"mode", opts.mode,
		"budgets", summary.BudgetsProcessed,
		"alerts", summary.AlertsTriggered,
		"sent", summary.NotificationsSent,
		"failed", summary.NotificationsFailed,
		"test_mode", opts.testMode,
	)
	return summary, nil
}

// evaluate turns a panic in the evaluation stage into a run error.
func (p *AlertProcessor) evaluate(ctx context.Context, budgets []model.NormalizedBudget, force bool) (alerts []model.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panicked: %v", r)
		}
	}()
	alerts = p.engine.CheckThresholds(ctx, budgets, force)
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return alerts, nil
}

func ownedBudgets(budgets []model.NormalizedBudget, userID, budgetID string) []model.NormalizedBudget {
	out := make([]model.NormalizedBudget, 0, len(budgets))
	for _, b := range budgets {
		if b.OwnerUserID != userID {
			continue
		}
		if budgetID != "" && b.ID != budgetID {
			continue
		}
		out = append(out, b)
	}
	return out
}

// saveSpending stores the spend snapshot of user-defined budgets.
func (p *AlertProcessor) saveSpending(ctx context.Context, budgets []model.NormalizedBudget) {
	for _, b := range budgets {
		if b.Type != model.BudgetTypeCustom || b.Utilization == nil {
			continue
		}
		u := b.Utilization
		if err := p.store.UpdateBudgetSpending(ctx, b.ID, u.CurrentSpend, u.ProjectedSpend); err != nil {
			p.logger.Warn("save budget spending", "budget_id", b.ID, "error", err)
		}
	}
}

// attachEmails sets each alert's owner email. Lookups are cached per run and
// a failed lookup leaves the email empty.
func (p *AlertProcessor) attachEmails(ctx context.Context, alerts []model.Alert) {
	if p.users == nil {
		return
	}

	emails := map[string]string{}
	for i := range alerts {
		uid := alerts[i].UserID
		if uid == "" {
			continue
		}
		email, ok := emails[uid]
		if !ok {
			user, err := p.users.GetUser(ctx, uid)
			switch {
			case err != nil:
				p.logger.Warn("look up alert owner", "user_id", uid, "error", err)
			case user.IsActive:
				email = user.Email
			}
			emails[uid] = email
		}
		alerts[i].UserEmail = email
	}
}

func budgetReports(budgets []model.NormalizedBudget, alerts []model.Alert) []model.BudgetReport {
	alerted := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		alerted[a.BudgetID] = true
	}

	reports := make([]model.BudgetReport, 0, len(budgets))
	for _, b := range budgets {
		r := model.BudgetReport{
			BudgetID:       b.ID,
			BudgetName:     b.Name,
			BudgetLimit:    b.Limit,
			Threshold:      b.AlertThreshold,
			Status:         model.StatusOnTrack,
			AlertTriggered: alerted[b.ID],
		}
		if u := b.Utilization; u != nil {
			r.CurrentUtilization = u.Utilization
			r.CurrentSpend = u.CurrentSpend
			r.Status = u.Status
		}
		reports = append(reports, r)
	}
	return reports
}

// dispatchAll delivers every alert. Results keep the order of alerts.
func (p *AlertProcessor) dispatchAll(ctx context.Context, alerts []model.Alert) []model.AlertDelivery {
	deliveries := make([]model.AlertDelivery, len(alerts))

	var g errgroup.Group
	g.SetLimit(p.cfg.DispatchConcurrency)
	for i := range alerts {
		g.Go(func() error {
			deliveries[i] = p.deliver(ctx, alerts[i])
			return nil
		})
	}
	_ = g.Wait()

	return deliveries
}

// deliver sends one alert. A delivery fails when the dispatcher panics or
// every attempted channel other than the console fails.
func (p *AlertProcessor) deliver(ctx context.Context, alert model.Alert) (d model.AlertDelivery) {
	d = model.AlertDelivery{
		BudgetID:    alert.BudgetID,
		BudgetName:  alert.BudgetName,
		AlertType:   alert.AlertType,
		Severity:    alert.Severity,
		Utilization: alert.CurrentUtilization,
		Status:      model.DeliverySent,
	}
	defer func() {
		if r := recover(); r != nil {
			d.Status = model.DeliveryFailed
			d.Error = fmt.Sprintf("dispatch panicked: %v", r)
			p.logger.Error("alert dispatch panicked", "budget_id", alert.BudgetID, "panic", r)
		}
	}()

	results := p.dispatcher.SendAlert(ctx, alert)
	d.Channels = results

	var attempted int
	var errs []string
	for ch, res := range results {
		if ch == model.ChannelConsole || !res.Attempted {
			continue
		}
		attempted++
		if !res.Success {
			errs = append(errs, fmt.Sprintf("%s: %s", ch, res.Error))
		}
	}
	sort.Strings(errs)
	d.Error = strings.Join(errs, "; ")
	if attempted > 0 && len(errs) == attempted {
		d.Status = model.DeliveryFailed
	}

	if d.Status == model.DeliveryFailed {
		p.logger.Warn("alert delivery failed", "budget_id", alert.BudgetID, "error", d.Error)
	}
	return d
}
