// Package costsource queries cloud billing APIs for spend and provider-native budgets.
package costsource

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
)

// Granularity is the bucket size of a spend query.
type Granularity string

const (
	GranularityDaily   Granularity = "DAILY"
	GranularityMonthly Granularity = "MONTHLY"
)

// DimensionFilter matches cost whose dimension Key has any of Values.
type DimensionFilter struct {
	Key    string
	Values []string
}

// TagFilter matches cost tagged Key with any of Values.
type TagFilter struct {
	Key    string
	Values []string
}

// Filter is a cost filter expression. Exactly one of And, Dimension or Tag is set.
type Filter struct {
	And       []Filter
	Dimension *DimensionFilter
	Tag       *TagFilter
}

// SpendQuery describes a spend lookup. End is exclusive; a nil Filter means all cost.
type SpendQuery struct {
	Start          time.Time
	End            time.Time
	Granularity    Granularity
	Filter         *Filter
	GroupByService bool
}

// CostBucket is the spend of one time bucket.
type CostBucket struct {
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
	Amount    float64            `json:"amount"`
	Unit      string             `json:"unit"`
	Estimated bool               `json:"estimated"`
	ByService map[string]float64 `json:"by_service,omitempty"`
}

// CostSeries is the result of a spend query. Total is summed from the raw
// reported amounts, not from the rounded buckets.
type CostSeries struct {
	Buckets []CostBucket `json:"buckets"`
	Total   float64      `json:"total"`
	Unit    string       `json:"unit"`
}

// CostSource returns spend for a time range.
type CostSource interface {
	GetSpend(ctx context.Context, q SpendQuery) (*CostSeries, error)
}

// NativeBudgetSource lists budgets defined in the provider's budgeting service.
type NativeBudgetSource interface {
	ListBudgets(ctx context.Context) ([]model.NativeBudget, error)
	PerformanceHistory(ctx context.Context, name string, months int) (*BudgetHistory, error)
}

// HistoryPeriod is one period of a native budget's performance history.
type HistoryPeriod struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Budgeted    float64   `json:"budgeted"`
	Actual      float64   `json:"actual"`
	Unit        string    `json:"unit"`
	Utilization float64   `json:"utilization"`
}

// HistorySummary aggregates a budget's performance history.
type HistorySummary struct {
	TotalBudgeted        float64 `json:"total_budgeted"`
	TotalActual          float64 `json:"total_actual"`
	AverageUtilization   float64 `json:"average_utilization"`
	MaxUtilization       float64 `json:"max_utilization"`
	MinUtilization       float64 `json:"min_utilization"`
	PeriodsOverBudget    int     `json:"periods_over_budget"`
	TotalPeriods         int     `json:"total_periods"`
	OverBudgetPercentage float64 `json:"over_budget_percentage"`
}

// BudgetHistory is the performance history of one native budget.
type BudgetHistory struct {
	BudgetName string          `json:"budget_name"`
	BudgetType string          `json:"budget_type"`
	TimeUnit   string          `json:"time_unit"`
	Limit      float64         `json:"limit"`
	Unit       string          `json:"unit"`
	Periods    []HistoryPeriod `json:"periods"`
	Summary    *HistorySummary `json:"summary,omitempty"`
}

// Summarize computes summary statistics over periods. It returns nil when
// periods is empty.
func Summarize(periods []HistoryPeriod) *HistorySummary {
	if len(periods) == 0 {
		return nil
	}

	s := &HistorySummary{TotalPeriods: len(periods), MinUtilization: 100}
	for _, p := range periods {
		s.TotalBudgeted += p.Budgeted
		s.TotalActual += p.Actual
		if p.Utilization > 100 {
			s.PeriodsOverBudget++
		}
		if p.Utilization > s.MaxUtilization {
			s.MaxUtilization = p.Utilization
		}
		if p.Utilization < s.MinUtilization {
			s.MinUtilization = p.Utilization
		}
	}
	if s.TotalBudgeted > 0 {
		s.AverageUtilization = model.RoundCents(s.TotalActual / s.TotalBudgeted * 100)
	}
	s.TotalBudgeted = model.RoundCents(s.TotalBudgeted)
	s.TotalActual = model.RoundCents(s.TotalActual)
	s.OverBudgetPercentage = model.RoundCents(float64(s.PeriodsOverBudget) / float64(s.TotalPeriods) * 100)
	return s
}
