package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

// Cost report bounds, in calendar months including the current one.
const (
	DefaultReportMonths = 6
	MaxReportMonths     = 12
)

// Budget sources of a cost report.
const (
	ReportBudgetAWS    = "aws_budgets"
	ReportBudgetConfig = "config"
)

// ServiceCost is one service's spend in a cost report.
type ServiceCost struct {
	Service string  `json:"service"`
	Cost    float64 `json:"cost"`
	// Percentage is the service's share of the report total.
	Percentage float64 `json:"percentage,omitempty"`
}

// ReportBudget measures the current month against the account's monthly budget.
type ReportBudget struct {
	Source        string            `json:"source"`
	Name          string            `json:"name,omitempty"`
	Utilization   model.Utilization `json:"utilization"`
	IsOverBudget  bool              `json:"is_over_budget"`
	DaysRemaining int               `json:"days_remaining"`
}

// CostReport is account spend broken down by service over whole months.
type CostReport struct {
	Start              time.Time     `json:"start"`
	End                time.Time     `json:"end"`
	Months             int           `json:"months"`
	Currency           string        `json:"currency"`
	TotalCost          float64       `json:"total_cost"`
	CurrentMonthCost   float64       `json:"current_month_cost"`
	DailyAverage       float64       `json:"daily_average"`
	AverageMonthlyCost float64       `json:"average_monthly_cost"`
	ServiceCount       int           `json:"service_count"`
	Services           []ServiceCost `json:"services"`
	CurrentMonth       []ServiceCost `json:"current_month_services"`
	Budget             *ReportBudget `json:"budget,omitempty"`
}

// ReportConfig tunes the cost report.
type ReportConfig struct {
	// FallbackBudget is the monthly limit used when no native monthly cost
	// budget exists. Zero leaves the report without budget metrics.
	FallbackBudget float64
	QueryTimeout   time.Duration
}

// CostReporter builds spend-by-service reports for dashboards.
type CostReporter struct {
	costs  costsource.CostSource
	native costsource.NativeBudgetSource
	cfg    ReportConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewCostReporter creates a reporter. native may be nil.
func NewCostReporter(costs costsource.CostSource, native costsource.NativeBudgetSource, cfg ReportConfig, logger *slog.Logger) *CostReporter {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &CostReporter{
		costs:  costs,
		native: native,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for the report window.
func (r *CostReporter) WithClock(now func() time.Time) *CostReporter {
	r.now = now
	return r
}

// CostReport returns spend by service for the last months calendar months,
// the current month included, through the end of today.
func (r *CostReporter) CostReport(ctx context.Context, months int) (*CostReport, error) {
	if months == 0 {
		months = DefaultReportMonths
	}
	if months < 1 || months > MaxReportMonths {
		return nil, fmt.Errorf("%w: months must be between 1 and %d", model.ErrInvalidInput, MaxReportMonths)
	}

	now := r.now().UTC()
	monthStart := model.PeriodStart(model.TimeUnitMonthly, now)
	start := monthStart.AddDate(0, -(months - 1), 0)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	series, err := r.costs.GetSpend(queryCtx, costsource.SpendQuery{
		Start:          start,
		End:            end,
		Granularity:    costsource.GranularityMonthly,
		GroupByService: true,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("get spend by service: %w", err)
	}
	if series == nil {
		series = &costsource.CostSeries{Unit: model.DefaultCurrency}
	}

	report := &CostReport{
		Start:     start,
		End:       end,
		Months:    months,
		Currency:  series.Unit,
		TotalCost: model.RoundCents(series.Total),
	}

	all := map[string]float64{}
	current := map[string]float64{}
	for _, b := range series.Buckets {
		inCurrent := !b.Start.Before(monthStart)
		if inCurrent {
			report.CurrentMonthCost += b.Amount
		}
		for svc, cost := range b.ByService {
			all[svc] += cost
			if inCurrent {
				current[svc] += cost
			}
		}
	}
	report.CurrentMonthCost = model.RoundCents(report.CurrentMonthCost)

	report.Services = rankServices(all, series.Total)
	report.CurrentMonth = rankServices(current, 0)
	report.ServiceCount = len(report.CurrentMonth)

	if days := end.Sub(start).Hours() / 24; days > 0 {
		report.DailyAverage = model.RoundCents(series.Total / days)
	}
	if n := len(series.Buckets); n > 0 {
		report.AverageMonthlyCost = model.RoundCents(series.Total / float64(n))
	}

	report.Budget = r.budgetMetrics(ctx, report.CurrentMonthCost, now)

	r.logger.Info("cost report built",
		"months", months,
		"total", report.TotalCost,
		"current_month", report.CurrentMonthCost,
		"services", len(report.Services),
	)
	return report, nil
}

// budgetMetrics measures the current month against the first native MONTHLY
// COST budget, falling back to the configured limit.
func (r *CostReporter) budgetMetrics(ctx context.Context, spend float64, now time.Time) *ReportBudget {
	rb := &ReportBudget{Source: ReportBudgetConfig}
	limit := r.cfg.FallbackBudget

	if r.native != nil {
		listCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
		natives, err := r.native.ListBudgets(listCtx)
		cancel()
		if err != nil {
			r.logger.Warn("list native budgets failed, using configured budget", "error", err)
		} else if n, ok := monthlyCostBudget(natives); ok {
			rb.Source = ReportBudgetAWS
			rb.Name = n.Name
			limit = n.Limit
		}
	}
	if limit <= 0 {
		return nil
	}

	start, end := model.PeriodBounds(model.TimeUnitMonthly, now)
	rb.Utilization = model.ComputeUtilization(spend, limit, model.DefaultAlertThreshold)
	rb.Utilization.ProjectedSpend = model.ProjectSpend(rb.Utilization.CurrentSpend, start, end, now)
	rb.IsOverBudget = rb.Utilization.Utilization > 100
	rb.DaysRemaining = int(end.Sub(now).Hours() / 24)
	return rb
}

func monthlyCostBudget(natives []model.NativeBudget) (model.NativeBudget, bool) {
	for _, n := range natives {
		if n.TimeUnit == model.TimeUnitMonthly && n.BudgetType == "COST" {
			return n, true
		}
	}
	if len(natives) > 0 {
		return natives[0], true
	}
	return model.NativeBudget{}, false
}

// rankServices orders services by descending cost. A positive total sets
// each service's percentage share.
func rankServices(costs map[string]float64, total float64) []ServiceCost {
	out := make([]ServiceCost, 0, len(costs))
	for svc, cost := range costs {
		sc := ServiceCost{Service: svc, Cost: model.RoundCents(cost)}
		if total > 0 {
			sc.Percentage = model.RoundCents(cost / total * 100)
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].Service < out[j].Service
	})
	return out
}
