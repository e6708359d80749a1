package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
	"golang.org/x/sync/semaphore"
)

// Aggregator defaults.
const (
	DefaultQueryConcurrency = 4
	DefaultQueryTimeout     = 30 * time.Second
)

// AggregatorConfig tunes how budgets are collected and measured.
type AggregatorConfig struct {
	// NativeOwner owns every provider-native budget. Native budgets are only
	// listed when a native source is configured.
	NativeOwner string
	Vocabulary  costsource.ServiceVocabulary
	// Concurrency bounds in-flight cost queries.
	Concurrency  int
	QueryTimeout time.Duration
}

// BudgetAggregator merges user-defined and provider-native budgets into one
// normalized list and computes each budget's utilization.
type BudgetAggregator struct {
	store  storage.BudgetStore
	costs  costsource.CostSource
	native costsource.NativeBudgetSource
	cfg    AggregatorConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewBudgetAggregator creates an aggregator. native may be nil.
func NewBudgetAggregator(store storage.BudgetStore, costs costsource.CostSource, native costsource.NativeBudgetSource, cfg AggregatorConfig, logger *slog.Logger) *BudgetAggregator {
	if cfg.Vocabulary == nil {
		cfg.Vocabulary = costsource.DefaultServiceVocabulary()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultQueryConcurrency
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &BudgetAggregator{
		store:  store,
		costs:  costs,
		native: native,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for period boundaries.
func (a *BudgetAggregator) WithClock(now func() time.Time) *BudgetAggregator {
	a.now = now
	return a
}

// AggregateAllBudgets returns every active budget with its utilization set.
// Only a failure to list stored budgets is returned; a budget whose spend
// cannot be determined gets zero utilization.
func (a *BudgetAggregator) AggregateAllBudgets(ctx context.Context) ([]model.NormalizedBudget, error) {
	records, err := a.store.ListActiveBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}

	sources := make([]model.BudgetSource, 0, len(records))
	for _, r := range records {
		sources = append(sources, model.CustomSource(r))
	}
	sources = append(sources, a.nativeSources(ctx)...)

	budgets := make([]model.NormalizedBudget, 0, len(sources))
	for _, src := range sources {
		b, err := Normalize(src, a.cfg.NativeOwner)
		if err != nil {
			a.logger.Warn("skipping budget", "error", err)
			continue
		}
		budgets = append(budgets, b)
	}

	a.measure(ctx, budgets)

	a.logger.Info("budgets aggregated",
		"custom", len(records),
		"total", len(budgets),
	)
	return budgets, nil
}

func (a *BudgetAggregator) nativeSources(ctx context.Context) []model.BudgetSource {
	if a.native == nil {
		return nil
	}

	listCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	natives, err := a.native.ListBudgets(listCtx)
	if err != nil {
		a.logger.Warn("list native budgets failed", "error", err)
		return nil
	}

	sources := make([]model.BudgetSource, 0, len(natives))
	for _, n := range natives {
		sources = append(sources, model.NativeSource(n))
	}
	return sources
}

// measure sets the utilization of every budget in place. Results are written
// by index, so the order of budgets is unchanged.
func (a *BudgetAggregator) measure(ctx context.Context, budgets []model.NormalizedBudget) {
	sem := semaphore.NewWeighted(int64(a.cfg.Concurrency))
	var wg sync.WaitGroup

	for i := range budgets {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(budgets); j++ {
				u := model.ZeroUtilization(budgets[j].Limit, budgets[j].AlertThreshold)
				budgets[j].Utilization = &u
			}
			a.logger.Warn("utilization cancelled", "remaining", len(budgets)-i, "error", err)
			break
		}

		wg.Add(1)
		go func(b *model.NormalizedBudget) {
			defer wg.Done()
			defer sem.Release(1)

			u, err := a.CalculateBudgetUtilization(ctx, *b)
			if err != nil {
				a.logger.Warn("budget utilization failed, using zero spend",
					"budget_id", b.ID,
					"budget", b.Name,
					"error", err,
				)
			}
			b.Utilization = &u
		}(&budgets[i])
	}

	wg.Wait()
}

// CalculateBudgetUtilization computes the utilization of b for its current
// period. On error the returned utilization is the zero-spend substitute.
func (a *BudgetAggregator) CalculateBudgetUtilization(ctx context.Context, b model.NormalizedBudget) (u model.Utilization, err error) {
	defer func() {
		if r := recover(); r != nil {
			u = model.ZeroUtilization(b.Limit, b.AlertThreshold)
			err = fmt.Errorf("utilization panicked: %v", r)
		}
	}()

	now := a.now().UTC()
	start, end := model.PeriodBounds(b.TimeUnit, now)

	var spend float64
	if b.ReportedSpend != nil {
		spend = *b.ReportedSpend
	} else {
		spend, err = a.querySpend(ctx, b, start, end, now)
		if err != nil {
			return model.ZeroUtilization(b.Limit, b.AlertThreshold), err
		}
	}

	u = model.ComputeUtilization(spend, b.Limit, b.AlertThreshold)
	u.ProjectedSpend = model.ProjectSpend(u.CurrentSpend, start, end, now)
	return u, nil
}

func (a *BudgetAggregator) querySpend(ctx context.Context, b model.NormalizedBudget, start, end, now time.Time) (float64, error) {
	if a.costs == nil {
		return 0, fmt.Errorf("no cost source configured")
	}

	// Query through the end of today, bounded by the period.
	through := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if through.After(end) {
		through = end
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	series, err := a.costs.GetSpend(ctx, costsource.SpendQuery{
		Start:       start,
		End:         through,
		Granularity: costsource.GranularityDaily,
		Filter:      costsource.BuildFilter(b.Services, b.Tags, a.cfg.Vocabulary),
	})
	if err != nil {
		return 0, fmt.Errorf("get spend: %w", err)
	}
	if series == nil {
		return 0, nil
	}
	return series.Total, nil
}
